package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/easytranscription/easy-transcription/internal/transcription"
)

func TestMockSatisfiesClient(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer((&mock{speakers: 3, apiKey: "k", logger: logger}).routes())
	defer srv.Close()

	audio := filepath.Join(t.TempDir(), "a.wav")
	if err := os.WriteFile(audio, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	client, err := transcription.NewClient(transcription.Config{
		Endpoint:     srv.URL + "/v1/listen",
		APIKey:       "k",
		Timeout:      5 * time.Second,
		RetryBackoff: time.Millisecond,
	}, logger, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	result, err := client.Transcribe(context.Background(), audio, "audio/wav")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if len(result.Segments) != len(script) {
		t.Fatalf("segments = %d, want %d", len(result.Segments), len(script))
	}
	for i, seg := range result.Segments {
		if seg.SpeakerID != i%3 || seg.Content != script[i] {
			t.Errorf("segment %d = %+v", i, seg)
		}
	}
}

func TestMockRejectsBadRequests(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer((&mock{speakers: 2, apiKey: "k", logger: logger}).routes())
	defer srv.Close()

	tests := []struct {
		name string
		auth string
		body string
		want int
	}{
		{"wrong key", "Token nope", "RIFF", http.StatusUnauthorized},
		{"empty audio", "Token k", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/listen", strings.NewReader(tt.body))
			req.Header.Set("Authorization", tt.auth)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
