package workflow

import "errors"

var (
	// ErrUploadFailed marks an upload that did not complete; the session stays usable
	ErrUploadFailed = errors.New("upload failed")

	// ErrTranscriptionFailed marks a provider failure mapped to FailTranscription
	ErrTranscriptionFailed = errors.New("transcription failed")

	// ErrInvalidTransition is a programming fault: a transition was requested from a state that forbids it
	ErrInvalidTransition = errors.New("invalid state transition")
)
