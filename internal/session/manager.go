package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/easytranscription/easy-transcription/internal/metrics"
	"github.com/easytranscription/easy-transcription/internal/transcript"
	"github.com/easytranscription/easy-transcription/internal/workflow"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session ids
	ErrSessionNotFound = errors.New("session not found")

	// ErrUploadAborted is returned when the start-over prompt was not confirmed
	ErrUploadAborted = errors.New("upload aborted: start over not confirmed")

	// ErrNothingUploaded is returned when transcription is requested before an upload
	ErrNothingUploaded = fmt.Errorf("%w: no file uploaded", workflow.ErrInvalidTransition)

	// ErrSpeakerOutOfRange is returned for speaker indexes outside the roster
	ErrSpeakerOutOfRange = errors.New("speaker index out of range")
)

// Session is one visitor's workflow together with its bookkeeping
type Session struct {
	ID           string
	StartTime    time.Time
	LastActivity time.Time

	ctrl      *workflow.Controller
	lastError string
	changed   chan struct{} // closed and replaced whenever a transcription resolves

	// ctx ends when the session is removed or the manager stops
	ctx    context.Context
	cancel context.CancelFunc

	mu sync.Mutex
}

// Info is the JSON view of a session
type Info struct {
	ID                 string                      `json:"id"`
	StartTime          time.Time                   `json:"startTime"`
	LastActivity       time.Time                   `json:"lastActivity"`
	FileRef            string                      `json:"fileRef,omitempty"`
	UploadState        workflow.UploadState        `json:"uploadState"`
	TranscriptionState workflow.TranscriptionState `json:"transcriptionState"`
	Generation         workflow.Generation         `json:"generation"`
	SegmentCount       int                         `json:"segmentCount"`
	Speakers           []transcript.SpeakerProfile `json:"speakers"`
	LastError          string                      `json:"lastError,omitempty"`
}

// Config contains session manager configuration
type Config struct {
	Timeout              time.Duration // idle time before a session is removed
	CleanupInterval      time.Duration
	TranscriptionTimeout time.Duration
}

// Manager manages all live workflow sessions
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *slog.Logger
	config   Config
	metrics  *metrics.Metrics

	uploader    Uploader
	transcriber Transcriber

	// Background work
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
	workers sync.WaitGroup
}

// NewManager creates a session manager and starts its cleanup routine
func NewManager(logger *slog.Logger, config Config, uploader Uploader, transcriber Transcriber, m *metrics.Metrics) *Manager {
	if config.Timeout <= 0 {
		config.Timeout = time.Hour
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 30 * time.Second
	}
	if config.TranscriptionTimeout <= 0 {
		config.TranscriptionTimeout = 15 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	mgr := &Manager{
		sessions:    make(map[string]*Session),
		logger:      logger,
		config:      config,
		metrics:     m,
		uploader:    uploader,
		transcriber: transcriber,
		ctx:         ctx,
		cancel:      cancel,
		cleanup:     make(chan struct{}),
	}

	go mgr.startCleanupRoutine()

	return mgr
}

// CreateSession starts a fresh workflow session
func (m *Manager) CreateSession() *Session {
	now := time.Now()
	ctx, cancel := context.WithCancel(m.ctx)
	session := &Session{
		ID:           uuid.NewString(),
		StartTime:    now,
		LastActivity: now,
		ctrl:         workflow.NewController(),
		changed:      make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	count := len(m.sessions)
	m.mu.Unlock()

	m.metrics.RecordSessionCreated()
	m.metrics.SetActiveSessions(count)

	m.logger.Info("Session created",
		slog.String("session_id", session.ID),
		slog.Int("active_sessions", count),
	)

	return session
}

// GetSession retrieves an existing session
func (m *Manager) GetSession(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	return session, exists
}

// GetActiveSessionCount returns the number of live sessions
func (m *Manager) GetActiveSessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// RemoveSession discards a session and its uploaded file
func (m *Manager) RemoveSession(id string) bool {
	return m.removeSession(id, false)
}

func (m *Manager) removeSession(id string, expired bool) bool {
	m.mu.Lock()
	session, exists := m.sessions[id]
	if exists {
		delete(m.sessions, id)
	}
	count := len(m.sessions)
	m.mu.Unlock()

	if !exists {
		return false
	}

	session.cancel()

	session.mu.Lock()
	fileRef := session.ctrl.Session().UploadedFileRef
	lifetime := time.Since(session.StartTime)
	session.mu.Unlock()

	if err := m.uploader.Remove(fileRef); err != nil {
		m.logger.Warn("Failed to remove uploaded file",
			slog.String("session_id", id),
			slog.String("file_ref", fileRef),
			slog.String("error", err.Error()),
		)
	}

	m.metrics.RecordSessionRemoved(lifetime.Seconds(), expired)
	m.metrics.SetActiveSessions(count)

	m.logger.Info("Session removed",
		slog.String("session_id", id),
		slog.Bool("expired", expired),
		slog.Duration("lifetime", lifetime),
	)

	return true
}

// acquire looks up id, locks the session and refreshes its activity time
func (m *Manager) acquire(id string) (*Session, error) {
	session, exists := m.GetSession(id)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	session.mu.Lock()
	session.LastActivity = time.Now()
	return session, nil
}

// Snapshot returns the current workflow state of a session
func (m *Manager) Snapshot(id string) (workflow.Session, error) {
	session, err := m.acquire(id)
	if err != nil {
		return workflow.Session{}, err
	}
	defer session.mu.Unlock()

	return session.ctrl.Session(), nil
}

// Info returns the JSON view of a session
func (m *Manager) Info(id string) (Info, error) {
	session, err := m.acquire(id)
	if err != nil {
		return Info{}, err
	}
	defer session.mu.Unlock()

	return session.info(), nil
}

func (s *Session) info() Info {
	snap := s.ctrl.Session()
	return Info{
		ID:                 s.ID,
		StartTime:          s.StartTime,
		LastActivity:       s.LastActivity,
		FileRef:            snap.UploadedFileRef,
		UploadState:        snap.UploadState,
		TranscriptionState: snap.TranscriptionState,
		Generation:         snap.Generation,
		SegmentCount:       len(snap.Segments),
		Speakers:           snap.Speakers,
		LastError:          s.lastError,
	}
}

// countingReader counts the bytes read through it
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Upload runs the start-over gate and stores r as the session's file.
// When confirm declines, the blob is not read and ErrUploadAborted is returned.
func (m *Manager) Upload(ctx context.Context, id, name string, r io.Reader, confirm workflow.Confirmer) (workflow.Session, error) {
	session, err := m.acquire(id)
	if err != nil {
		return workflow.Session{}, err
	}
	defer session.mu.Unlock()

	previousRef := session.ctrl.Session().UploadedFileRef

	decision, snap := session.ctrl.RequestUpload(ctx, confirm)
	if decision == workflow.Abort {
		m.metrics.RecordUpload("aborted", 0)
		m.logger.Info("Upload aborted, start over not confirmed",
			slog.String("session_id", id),
			slog.String("file_name", name),
		)
		return snap, ErrUploadAborted
	}

	session.lastError = ""
	if previousRef != "" {
		if err := m.uploader.Remove(previousRef); err != nil {
			m.logger.Warn("Failed to remove replaced upload",
				slog.String("session_id", id),
				slog.String("file_ref", previousRef),
				slog.String("error", err.Error()),
			)
		}
	}

	counter := &countingReader{r: r}
	ref, err := m.uploader.Save(name, counter)
	if err != nil {
		session.ctrl.AbandonUpload()
		session.lastError = "Error uploading the file."
		m.metrics.RecordUpload("failed", counter.n)
		m.logger.Warn("Upload failed",
			slog.String("session_id", id),
			slog.String("file_name", name),
			slog.String("error", err.Error()),
		)
		return session.ctrl.Session(), fmt.Errorf("%w: %w", workflow.ErrUploadFailed, err)
	}

	snap = session.ctrl.CompleteUpload(ref)
	m.metrics.RecordUpload("ok", counter.n)
	m.logger.Info("File uploaded",
		slog.String("session_id", id),
		slog.String("file_ref", ref),
		slog.Int64("size", counter.n),
	)

	return snap, nil
}

// StartTranscription begins a new transcription generation and runs it in the background
func (m *Manager) StartTranscription(id string) (workflow.Generation, error) {
	session, err := m.acquire(id)
	if err != nil {
		return 0, err
	}
	defer session.mu.Unlock()

	if !session.ctrl.CanTranscribe() {
		return 0, ErrNothingUploaded
	}

	gen, snap := session.ctrl.BeginTranscription()
	session.lastError = ""
	session.notify()

	m.metrics.RecordTranscriptionRequest()
	m.logger.Info("Transcription started",
		slog.String("session_id", id),
		slog.String("file_ref", snap.UploadedFileRef),
		slog.Uint64("generation", uint64(gen)),
	)

	m.workers.Add(1)
	go func() {
		defer m.workers.Done()
		m.runTranscription(session, gen, snap.UploadedFileRef)
	}()

	return gen, nil
}

// runTranscription calls the provider and applies its answer under the generation rule
func (m *Manager) runTranscription(session *Session, gen workflow.Generation, fileRef string) {
	ctx, cancel := context.WithTimeout(session.ctx, m.config.TranscriptionTimeout)
	defer cancel()

	startTime := time.Now()
	segments, err := m.transcriber.Transcribe(ctx, fileRef)
	duration := time.Since(startTime)

	session.mu.Lock()
	defer session.mu.Unlock()

	var (
		snap    workflow.Session
		applied bool
	)
	if err != nil {
		snap, applied = session.ctrl.FailTranscription(gen)
	} else {
		snap, applied = session.ctrl.CompleteTranscription(gen, segments)
	}

	if !applied {
		m.metrics.RecordStaleResult()
		m.logger.Debug("Discarding superseded transcription result",
			slog.String("session_id", session.ID),
			slog.Uint64("generation", uint64(gen)),
			slog.Uint64("current_generation", uint64(snap.Generation)),
		)
		return
	}

	if err != nil {
		session.lastError = "Error in transcription."
		m.metrics.RecordTranscriptionFailure(duration.Seconds())
		m.logger.Error("Transcription failed",
			slog.String("session_id", session.ID),
			slog.Uint64("generation", uint64(gen)),
			slog.String("error", fmt.Errorf("%w: %w", workflow.ErrTranscriptionFailed, err).Error()),
			slog.Float64("duration", duration.Seconds()),
		)
	} else {
		m.metrics.RecordTranscriptionSuccess(duration.Seconds(), len(snap.Speakers))
		m.logger.Info("Transcription completed",
			slog.String("session_id", session.ID),
			slog.Uint64("generation", uint64(gen)),
			slog.Int("segments", len(snap.Segments)),
			slog.Int("speakers", len(snap.Speakers)),
			slog.Float64("duration", duration.Seconds()),
		)
	}

	session.notify()
}

// notify wakes every waiter; the caller holds s.mu
func (s *Session) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// WaitTranscription blocks until the session's transcription is no longer in progress
func (m *Manager) WaitTranscription(ctx context.Context, id string) (workflow.Session, error) {
	for {
		session, exists := m.GetSession(id)
		if !exists {
			return workflow.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}

		session.mu.Lock()
		snap := session.ctrl.Session()
		changed := session.changed
		session.mu.Unlock()

		if snap.TranscriptionState != workflow.TranscriptionInProgress {
			return snap, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-session.ctx.Done():
			if err := m.ctx.Err(); err != nil {
				return snap, err
			}
			return snap, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
		}
	}
}

// UpdateSpeaker replaces one speaker profile of a ready transcript
func (m *Manager) UpdateSpeaker(id string, index int, profile transcript.SpeakerProfile) (workflow.Session, error) {
	session, err := m.acquire(id)
	if err != nil {
		return workflow.Session{}, err
	}
	defer session.mu.Unlock()

	if count := session.ctrl.SpeakerCount(); index < 0 || index >= count {
		return session.ctrl.Session(), fmt.Errorf("%w: %d not in [0, %d)", ErrSpeakerOutOfRange, index, count)
	}

	m.metrics.RecordSpeakerUpdate()
	return session.ctrl.UpdateSpeaker(index, profile), nil
}

// Transcript returns the session state with its formatted blocks
func (m *Manager) Transcript(id string) (workflow.Session, []transcript.Block, error) {
	snap, err := m.Snapshot(id)
	if err != nil {
		return workflow.Session{}, nil, err
	}
	return snap, snap.Blocks(), nil
}

// Stop cancels in-flight transcriptions, waits for them and stops the cleanup routine
func (m *Manager) Stop() {
	m.logger.Info("Stopping session manager...")

	m.cancel()
	<-m.cleanup
	m.workers.Wait()

	m.logger.Info("Session manager stopped",
		slog.Int("remaining_sessions", m.GetActiveSessionCount()),
	)
}

// startCleanupRoutine runs in a separate goroutine to clean up expired sessions
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(m.config.CleanupInterval)
	defer ticker.Stop()

	m.logger.Info("Session cleanup routine started",
		slog.Duration("timeout", m.config.Timeout),
		slog.Duration("check_interval", m.config.CleanupInterval),
	)

	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("Session cleanup routine stopping")
			return

		case <-ticker.C:
			m.cleanupExpiredSessions()
		}
	}
}

// cleanupExpiredSessions removes sessions that have been inactive for too long
func (m *Manager) cleanupExpiredSessions() {
	now := time.Now()
	expired := make([]string, 0)

	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.mu.RUnlock()

	for _, session := range sessions {
		// a session busy with an upload is active by definition
		if !session.mu.TryLock() {
			continue
		}
		idle := now.Sub(session.LastActivity)
		session.mu.Unlock()

		if idle > m.config.Timeout {
			expired = append(expired, session.ID)
		}
	}

	if len(expired) > 0 {
		m.logger.Info("Cleaning up expired sessions",
			slog.Int("expired_count", len(expired)),
		)

		for _, id := range expired {
			m.removeSession(id, true)
		}
	}
}
