package workflow

import (
	"fmt"

	"github.com/easytranscription/easy-transcription/internal/transcript"
)

// UploadState reports whether a file has been uploaded for the session
type UploadState int

const (
	UploadNone UploadState = iota
	UploadUploaded
)

func (s UploadState) String() string {
	switch s {
	case UploadNone:
		return "none"
	case UploadUploaded:
		return "uploaded"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state as its string form
func (s UploadState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the string form produced by MarshalText
func (s *UploadState) UnmarshalText(text []byte) error {
	for _, st := range []UploadState{UploadNone, UploadUploaded} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown upload state %q", text)
}

// TranscriptionState is the lifecycle of the session transcript
type TranscriptionState int

const (
	TranscriptionIdle TranscriptionState = iota
	TranscriptionInProgress
	TranscriptionReady
	TranscriptionFailed
)

func (s TranscriptionState) String() string {
	switch s {
	case TranscriptionIdle:
		return "idle"
	case TranscriptionInProgress:
		return "in_progress"
	case TranscriptionReady:
		return "ready"
	case TranscriptionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state as its string form
func (s TranscriptionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the string form produced by MarshalText
func (s *TranscriptionState) UnmarshalText(text []byte) error {
	for _, st := range []TranscriptionState{TranscriptionIdle, TranscriptionInProgress, TranscriptionReady, TranscriptionFailed} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown transcription state %q", text)
}

// Generation tags one BeginTranscription call
type Generation uint64

// Session is the complete state of one user's transcription workflow.
// Values handed out by the Controller are copies and never alias its state.
type Session struct {
	UploadedFileRef    string                      `json:"uploadedFileRef,omitempty"`
	UploadState        UploadState                 `json:"uploadState"`
	TranscriptionState TranscriptionState          `json:"transcriptionState"`
	Segments           []transcript.Segment        `json:"segments,omitempty"`
	Speakers           []transcript.SpeakerProfile `json:"speakers"`
	Generation         Generation                  `json:"generation"`
}

// HasTranscript reports whether segments are present
func (s Session) HasTranscript() bool {
	return s.Segments != nil
}

// Blocks formats the session transcript with the current roster
func (s Session) Blocks() []transcript.Block {
	return transcript.Format(s.Segments, s.Speakers)
}

func (s Session) clone() Session {
	c := s
	if s.Segments != nil {
		// an empty transcript stays non-nil
		c.Segments = append(make([]transcript.Segment, 0, len(s.Segments)), s.Segments...)
	}
	c.Speakers = append([]transcript.SpeakerProfile{}, s.Speakers...)
	return c
}
