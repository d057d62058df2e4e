package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/easytranscription/easy-transcription/internal/transcript"
)

func TestParseSpeakerFlag(t *testing.T) {
	tests := []struct {
		value   string
		want    speakerName
		wantErr bool
	}{
		{value: "0=Dr.|Jane|Doe", want: speakerName{0, transcript.SpeakerProfile{Title: "Dr.", FirstName: "Jane", LastName: "Doe"}}},
		{value: "2=|Bob", want: speakerName{2, transcript.SpeakerProfile{FirstName: "Bob"}}},
		{value: "1=Alice", want: speakerName{1, transcript.SpeakerProfile{FirstName: "Alice"}}},
		{value: " 3 =| Ann | Lee ", want: speakerName{3, transcript.SpeakerProfile{FirstName: "Ann", LastName: "Lee"}}},
		{value: "Alice", wantErr: true},
		{value: "x=Alice", wantErr: true},
		{value: "-1=Alice", wantErr: true},
		{value: "0=a|b|c|d", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseSpeakerFlag(tt.value)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseSpeakerFlag(%q) expected error", tt.value)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseSpeakerFlag(%q) error = %v", tt.value, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseSpeakerFlag(%q) = %+v, want %+v", tt.value, got, tt.want)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestWriteTranscript(t *testing.T) {
	blocks := []transcript.Block{{SpeakerLabel: "Speaker 0", Text: "Hi there "}}
	meta := transcript.Metadata{Source: "talk.mp3", Generated: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}

	var text strings.Builder
	if err := writeTranscript(&text, "text", blocks, meta); err != nil {
		t.Fatalf("writeTranscript(text) error = %v", err)
	}
	if text.String() != "Speaker 0: Hi there \n\n" {
		t.Errorf("text = %q", text.String())
	}

	var md strings.Builder
	if err := writeTranscript(&md, "markdown", blocks, meta); err != nil {
		t.Fatalf("writeTranscript(markdown) error = %v", err)
	}
	if !strings.Contains(md.String(), "**Speaker 0**: Hi there") {
		t.Errorf("markdown = %q", md.String())
	}

	for _, format := range []string{"text", "markdown"} {
		if err := writeTranscript(failingWriter{}, format, blocks, meta); !errors.Is(err, transcript.ErrCopyFailed) {
			t.Errorf("writeTranscript(%s) to failing writer error = %v, want ErrCopyFailed", format, err)
		}
	}
}

func TestResolveFormat(t *testing.T) {
	if got := resolveFormat("json", nil); got != "json" {
		t.Errorf("resolveFormat(json) = %q", got)
	}
	if got := resolveFormat("text", nil); got != "text" {
		t.Errorf("resolveFormat(text) = %q", got)
	}
}
