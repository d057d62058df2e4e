package transcript

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// ErrCopyFailed reports that the export could not be handed to its destination
var ErrCopyFailed = errors.New("transcript copy failed")

// Export joins blocks in the copy-to-clipboard format: "{label}: {text}\n\n" per block
func Export(blocks []Block) string {
	var b strings.Builder
	for _, block := range blocks {
		b.WriteString(block.SpeakerLabel)
		b.WriteString(": ")
		b.WriteString(block.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}

// WriteExport writes the export of blocks to w
func WriteExport(w io.Writer, blocks []Block) error {
	if _, err := io.WriteString(w, Export(blocks)); err != nil {
		return fmt.Errorf("%w: %w", ErrCopyFailed, err)
	}
	return nil
}

// Metadata describes the header of a markdown export
type Metadata struct {
	Title     string
	Source    string
	Model     string
	Generated time.Time
}

// RenderMarkdown renders blocks as a markdown document, one bold speaker label per paragraph
func RenderMarkdown(meta Metadata, blocks []Block) string {
	var b strings.Builder

	if meta.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", meta.Title)
	} else {
		b.WriteString("# Transcript\n\n")
	}
	if meta.Source != "" {
		fmt.Fprintf(&b, "- Source: `%s`\n", meta.Source)
	}
	if meta.Model != "" {
		fmt.Fprintf(&b, "- Model: `%s`\n", meta.Model)
	}
	if !meta.Generated.IsZero() {
		fmt.Fprintf(&b, "- Generated: %s\n", meta.Generated.UTC().Format(time.RFC3339))
	}
	b.WriteString("\n---\n\n")

	for _, block := range blocks {
		fmt.Fprintf(&b, "**%s**: %s\n\n", block.SpeakerLabel, strings.TrimSpace(block.Text))
	}

	return b.String()
}
