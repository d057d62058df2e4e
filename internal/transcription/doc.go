// Package transcription implements the HTTP client for the Deepgram pre-recorded API.
// It posts an uploaded audio file with diarization enabled and flattens the
// returned paragraphs into speaker-attributed segments. Transient failures are
// retried with exponential backoff under a concurrency and rate limit.
package transcription
