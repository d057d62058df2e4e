package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrEmptyFile is returned when the uploaded blob has no content
	ErrEmptyFile = errors.New("file cannot be empty")

	// ErrFileTooLarge is returned when the upload exceeds the configured size limit
	ErrFileTooLarge = errors.New("file exceeds maximum upload size")

	// ErrNotFound is returned when a file reference does not resolve to a stored file
	ErrNotFound = errors.New("file does not exist")
)

// refPrefixLen is the length of the uuid prefix plus its separator
const refPrefixLen = 37

// Store saves uploads under a single directory
type Store struct {
	dir     string
	maxSize int64
	logger  *slog.Logger
}

// NewStore creates the upload directory if needed
func NewStore(dir string, maxSize int64, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("upload directory cannot be empty")
	}
	if maxSize <= 0 {
		return nil, fmt.Errorf("max upload size must be positive, got %d", maxSize)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", dir, err)
	}

	return &Store{
		dir:     dir,
		maxSize: maxSize,
		logger:  logger,
	}, nil
}

// Dir returns the upload directory
func (s *Store) Dir() string {
	return s.dir
}

// MaxSize returns the upload size limit in bytes
func (s *Store) MaxSize() int64 {
	return s.maxSize
}

// Save writes r to a new file named after name and returns its reference
func (s *Store) Save(name string, r io.Reader) (string, error) {
	ref := uuid.NewString() + "-" + sanitizeName(name)

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	tmpPath := tmp.Name()

	written, copyErr := io.Copy(tmp, io.LimitReader(r, s.maxSize+1))
	closeErr := tmp.Close()

	switch {
	case copyErr != nil:
		err = fmt.Errorf("failed to write upload: %w", copyErr)
	case closeErr != nil:
		err = fmt.Errorf("failed to close upload file: %w", closeErr)
	case written == 0:
		err = ErrEmptyFile
	case written > s.maxSize:
		err = fmt.Errorf("%w (%d bytes)", ErrFileTooLarge, s.maxSize)
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", err
	}

	if err := os.Rename(tmpPath, filepath.Join(s.dir, ref)); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to store upload: %w", err)
	}

	s.logger.Debug("Upload stored",
		slog.String("file_ref", ref),
		slog.Int64("size", written),
	)

	return ref, nil
}

// Path resolves ref to the path of an existing file
func (s *Store) Path(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return "", fmt.Errorf("%w: invalid reference %q", ErrNotFound, ref)
	}

	path := filepath.Join(s.dir, ref)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return "", fmt.Errorf("failed to stat %s: %w", ref, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", ErrNotFound, ref)
	}

	return path, nil
}

// Remove deletes the file behind ref; missing files are not an error
func (s *Store) Remove(ref string) error {
	if ref == "" || ref != filepath.Base(ref) {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dir, ref)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", ref, err)
	}
	return nil
}

// OriginalName returns the client file name a reference was created from
func OriginalName(ref string) string {
	if len(ref) > refPrefixLen {
		if _, err := uuid.Parse(ref[:refPrefixLen-1]); err == nil {
			return ref[refPrefixLen:]
		}
	}
	return ref
}

// audioTypes covers the common audio/video containers regardless of the host mime database
var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".aac":  "audio/aac",
	".webm": "audio/webm",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
}

// ContentType guesses the mime type from the file extension
func ContentType(ref string) string {
	ext := strings.ToLower(filepath.Ext(ref))
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" || strings.HasPrefix(name, ".") {
		return "upload"
	}
	return name
}
