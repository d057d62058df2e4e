// Package session provides workflow session management and lifecycle handling.
// It keeps one workflow controller per visitor and serializes transitions on it.
// Uploads and transcriptions run against the storage and provider collaborators;
// sessions idle for too long are removed together with their file.
package session
