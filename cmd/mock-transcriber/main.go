// Command mock-transcriber is a local stand-in for the pre-recorded
// transcription API. It accepts any audio body and answers with a diarized
// response so the service can run without a provider account.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var script = []string{
	"Thanks for joining the call today.",
	"Happy to be here.",
	"Let's start with the quarterly numbers.",
	"Revenue is up eight percent.",
	"That is better than we planned.",
	"We should talk about hiring next.",
}

type sentence struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type paragraph struct {
	Speaker   int        `json:"speaker"`
	Start     float64    `json:"start"`
	End       float64    `json:"end"`
	Sentences []sentence `json:"sentences"`
}

// mock serves diarized responses
type mock struct {
	speakers int
	delay    time.Duration
	apiKey   string
	logger   *slog.Logger
}

func (m *mock) response(model string) map[string]interface{} {
	paragraphs := make([]paragraph, 0, len(script))
	texts := make([]string, 0, len(script))
	var at float64
	for i, line := range script {
		end := at + float64(len(strings.Fields(line)))*0.4
		paragraphs = append(paragraphs, paragraph{
			Speaker:   i % m.speakers,
			Start:     at,
			End:       end,
			Sentences: []sentence{{Text: line, Start: at, End: end}},
		})
		texts = append(texts, line)
		at = end + 0.5
	}

	return map[string]interface{}{
		"metadata": map[string]interface{}{
			"request_id": uuid.NewString(),
			"duration":   at,
			"channels":   1,
			"models":     []string{model},
		},
		"results": map[string]interface{}{
			"channels": []interface{}{
				map[string]interface{}{
					"alternatives": []interface{}{
						map[string]interface{}{
							"transcript": strings.Join(texts, " "),
							"confidence": 0.98,
							"paragraphs": map[string]interface{}{
								"transcript": strings.Join(texts, "\n\n"),
								"paragraphs": paragraphs,
							},
						},
					},
				},
			},
		},
	}
}

func (m *mock) handleListen(w http.ResponseWriter, r *http.Request) {
	if m.apiKey != "" && r.Header.Get("Authorization") != "Token "+m.apiKey {
		http.Error(w, `{"err_code":"INVALID_AUTH","err_msg":"Invalid credentials."}`, http.StatusUnauthorized)
		return
	}

	size, err := io.Copy(io.Discard, r.Body)
	if err != nil {
		http.Error(w, "Error reading audio", http.StatusBadRequest)
		return
	}
	if size == 0 {
		http.Error(w, `{"err_code":"Bad Request","err_msg":"Empty audio."}`, http.StatusBadRequest)
		return
	}

	model := r.URL.Query().Get("model")
	m.logger.Info("Transcription request received",
		slog.Int64("audio_size", size),
		slog.String("content_type", r.Header.Get("Content-Type")),
		slog.String("model", model),
		slog.String("diarize", r.URL.Query().Get("diarize")),
	)

	select {
	case <-time.After(m.delay):
	case <-r.Context().Done():
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(m.response(model))
}

func (m *mock) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/listen", m.handleListen)
	return mux
}

func main() {
	var (
		port int
		mk   = &mock{logger: slog.New(slog.NewTextHandler(os.Stderr, nil))}
	)

	cmd := &cobra.Command{
		Use:   "mock-transcriber",
		Short: "Serve fake diarized transcriptions on /v1/listen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if mk.speakers < 1 {
				return fmt.Errorf("--speakers must be at least 1")
			}
			addr := fmt.Sprintf(":%d", port)
			mk.logger.Info("Mock transcriber starting",
				slog.String("endpoint", fmt.Sprintf("http://localhost%s/v1/listen", addr)),
				slog.Int("speakers", mk.speakers),
			)
			return http.ListenAndServe(addr, mk.routes())
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 9000, "listen port")
	cmd.Flags().IntVar(&mk.speakers, "speakers", 2, "number of distinct speakers in responses")
	cmd.Flags().DurationVar(&mk.delay, "delay", 500*time.Millisecond, "simulated processing time")
	cmd.Flags().StringVar(&mk.apiKey, "api-key", "", "require this API key (empty accepts any)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
