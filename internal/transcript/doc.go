// Package transcript turns diarized segments into speaker blocks.
// It merges consecutive segments of the same speaker, resolves speaker labels
// from the user-edited roster and renders the plain-text and markdown exports.
package transcript
