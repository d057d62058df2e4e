package workflow

import (
	"context"
	"fmt"

	"github.com/easytranscription/easy-transcription/internal/transcript"
)

// Decision is the outcome of RequestUpload
type Decision int

const (
	Proceed Decision = iota
	Abort
)

func (d Decision) String() string {
	if d == Proceed {
		return "proceed"
	}
	return "abort"
}

// Prompt is the start-over question shown before existing work is discarded
type Prompt struct {
	Title string   `json:"title"`
	Lines []string `json:"lines"`
}

// StartOverPrompt is asked when a new upload would discard an existing one
var StartOverPrompt = Prompt{
	Title: "Do you want to start over?",
	Lines: []string{
		"You have already uploaded a file, do you want to start over?",
		"Upon confirmation, existing transcript and changes will be cleared.",
		"Please save the transcript first.",
	},
}

// Confirmer answers the start-over prompt. It may block until the user decides.
type Confirmer interface {
	ConfirmStartOver(ctx context.Context, prompt Prompt) (bool, error)
}

// ConfirmFunc adapts a function to the Confirmer interface
type ConfirmFunc func(ctx context.Context, prompt Prompt) (bool, error)

// ConfirmStartOver calls f
func (f ConfirmFunc) ConfirmStartOver(ctx context.Context, prompt Prompt) (bool, error) {
	return f(ctx, prompt)
}

// Controller owns one Session and is its only writer.
// Calls must be serialized by the caller; the Controller holds no lock.
type Controller struct {
	session       Session
	pendingUpload bool
}

// NewController returns a controller for a fresh session
func NewController() *Controller {
	return &Controller{
		session: Session{Speakers: []transcript.SpeakerProfile{}},
	}
}

// Session returns a snapshot of the current state
func (c *Controller) Session() Session {
	return c.session.clone()
}

// HasExistingUpload reports whether a previous upload completed for this session
func (c *Controller) HasExistingUpload() bool {
	return c.session.UploadedFileRef != ""
}

// CanTranscribe reports whether BeginTranscription is currently legal
func (c *Controller) CanTranscribe() bool {
	return c.session.UploadState == UploadUploaded
}

// SpeakerCount returns the length of the speaker roster
func (c *Controller) SpeakerCount() int {
	return len(c.session.Speakers)
}

// RequestUpload decides whether a new upload may replace the current session.
// Without a previous upload it proceeds without asking. Otherwise it waits on
// confirm; a refusal, an error or a cancelled ctx aborts and leaves the session
// untouched. Proceeding resets the session and arms CompleteUpload.
func (c *Controller) RequestUpload(ctx context.Context, confirm Confirmer) (Decision, Session) {
	if c.HasExistingUpload() {
		if confirm == nil {
			return Abort, c.Session()
		}
		ok, err := confirm.ConfirmStartOver(ctx, StartOverPrompt)
		if err != nil || !ok || ctx.Err() != nil {
			return Abort, c.Session()
		}
	}

	c.reset()
	c.pendingUpload = true
	return Proceed, c.Session()
}

func (c *Controller) reset() {
	c.session = Session{
		Speakers: []transcript.SpeakerProfile{},
		// in-flight results for the discarded file must not land
		Generation: c.session.Generation + 1,
	}
}

// CompleteUpload records the uploaded file. It must follow a Proceed decision.
func (c *Controller) CompleteUpload(fileRef string) Session {
	if !c.pendingUpload {
		panic(fmt.Errorf("%w: upload completed without a proceed decision", ErrInvalidTransition))
	}
	if fileRef == "" {
		panic(fmt.Errorf("%w: empty file reference", ErrInvalidTransition))
	}

	c.pendingUpload = false
	c.session.UploadedFileRef = fileRef
	c.session.UploadState = UploadUploaded
	return c.Session()
}

// AbandonUpload disarms CompleteUpload after the upload itself failed
func (c *Controller) AbandonUpload() Session {
	c.pendingUpload = false
	return c.Session()
}

// BeginTranscription clears any previous transcript and starts a new generation
func (c *Controller) BeginTranscription() (Generation, Session) {
	if !c.CanTranscribe() {
		panic(fmt.Errorf("%w: transcription requested with upload state %s", ErrInvalidTransition, c.session.UploadState))
	}

	c.session.Segments = nil
	c.session.Speakers = []transcript.SpeakerProfile{}
	c.session.TranscriptionState = TranscriptionInProgress
	c.session.Generation++
	return c.session.Generation, c.Session()
}

// CompleteTranscription stores the provider result for generation gen.
// Results for a superseded generation are discarded and applied is false.
func (c *Controller) CompleteTranscription(gen Generation, segments []transcript.Segment) (Session, bool) {
	if !c.current(gen) {
		return c.Session(), false
	}

	maxID := -1
	for _, seg := range segments {
		if seg.SpeakerID < 0 {
			panic(fmt.Sprintf("workflow: negative speaker id %d in transcription result", seg.SpeakerID))
		}
		if seg.SpeakerID > maxID {
			maxID = seg.SpeakerID
		}
	}

	c.session.Segments = append(make([]transcript.Segment, 0, len(segments)), segments...)
	c.session.Speakers = make([]transcript.SpeakerProfile, maxID+1)
	c.session.TranscriptionState = TranscriptionReady
	return c.Session(), true
}

// FailTranscription marks generation gen as failed, leaving no transcript
func (c *Controller) FailTranscription(gen Generation) (Session, bool) {
	if !c.current(gen) {
		return c.Session(), false
	}

	c.session.TranscriptionState = TranscriptionFailed
	return c.Session(), true
}

func (c *Controller) current(gen Generation) bool {
	return c.session.TranscriptionState == TranscriptionInProgress && gen == c.session.Generation
}

// UpdateSpeaker replaces the profile at index
func (c *Controller) UpdateSpeaker(index int, profile transcript.SpeakerProfile) Session {
	if index < 0 || index >= len(c.session.Speakers) {
		panic(fmt.Sprintf("workflow: speaker index %d out of range [0, %d)", index, len(c.session.Speakers)))
	}

	speakers := append([]transcript.SpeakerProfile(nil), c.session.Speakers...)
	speakers[index] = profile
	c.session.Speakers = speakers
	return c.Session()
}
