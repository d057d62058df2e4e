// Package workflow implements the transcription session state machine.
// A Controller owns exactly one Session and gates every transition: the
// start-over confirmation on upload, the transcription lifecycle with
// generation tagging of in-flight requests, and speaker roster edits.
package workflow
