package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/easytranscription/easy-transcription/internal/config"
	"github.com/easytranscription/easy-transcription/internal/metrics"
	"github.com/easytranscription/easy-transcription/internal/session"
	"github.com/easytranscription/easy-transcription/internal/storage"
	"github.com/easytranscription/easy-transcription/internal/transcript"
)

type transcriberFunc func(ctx context.Context, fileRef string) ([]transcript.Segment, error)

func (f transcriberFunc) Transcribe(ctx context.Context, fileRef string) ([]transcript.Segment, error) {
	return f(ctx, fileRef)
}

func fixedSegments(ctx context.Context, fileRef string) ([]transcript.Segment, error) {
	return []transcript.Segment{
		{SpeakerID: 0, Content: "Hi"},
		{SpeakerID: 0, Content: "there"},
		{SpeakerID: 1, Content: "Hello"},
	}, nil
}

func newTestServer(t *testing.T, tr session.Transcriber) (*httptest.Server, *storage.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	store, err := storage.NewStore(t.TempDir(), 1<<20, logger)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	mgr := session.NewManager(logger, session.Config{}, store, tr, m)
	t.Cleanup(mgr.Stop)

	cfg := config.Default()
	h := NewHTTPServer(cfg.HTTP, logger, cfg, mgr, store, nil, m, reg)

	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func createSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/sessions", "", nil)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status = %d", resp.StatusCode)
	}
	var info session.Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return info.ID
}

// upload posts a multipart form; an empty content omits the file part
func upload(t *testing.T, srv *httptest.Server, id, name, content string, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if name != "" {
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		io.WriteString(fw, content)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	resp, err := http.Post(srv.URL+"/api/sessions/"+id+"/upload", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func do(t *testing.T, method, url string, body io.Reader) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(data)
}

func TestWorkflowEndToEnd(t *testing.T) {
	srv, _ := newTestServer(t, transcriberFunc(fixedSegments))
	id := createSession(t, srv)
	base := srv.URL + "/api/sessions/" + id

	resp := upload(t, srv, id, "talk.mp3", "audio", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var uploaded map[string]string
	json.NewDecoder(resp.Body).Decode(&uploaded)
	if !strings.HasSuffix(uploaded["fileName"], "-talk.mp3") {
		t.Errorf("fileName = %q", uploaded["fileName"])
	}

	resp = do(t, http.MethodPost, base+"/transcribe?wait=true", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("transcribe status = %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var info session.Info
	json.NewDecoder(resp.Body).Decode(&info)
	if info.TranscriptionState.String() != "ready" || len(info.Speakers) != 2 {
		t.Fatalf("session after transcribe = %+v", info)
	}

	resp = do(t, http.MethodPut, base+"/speakers/1",
		strings.NewReader(`{"title":"Dr.","firstname":"Jane","lastname":"Doe"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rename status = %d: %s", resp.StatusCode, readBody(t, resp))
	}

	resp = do(t, http.MethodGet, base+"/transcript?format=text", nil)
	want := "Speaker 0: Hi there \n\nDr. Jane Doe: Hello \n\n"
	if got := readBody(t, resp); got != want {
		t.Errorf("text export = %q, want %q", got, want)
	}

	resp = do(t, http.MethodGet, base+"/transcript", nil)
	var doc struct {
		Blocks []transcript.Block `json:"blocks"`
	}
	json.NewDecoder(resp.Body).Decode(&doc)
	if len(doc.Blocks) != 2 || doc.Blocks[1].SpeakerLabel != "Dr. Jane Doe" {
		t.Errorf("blocks = %+v", doc.Blocks)
	}

	resp = do(t, http.MethodGet, base+"/transcript?format=markdown", nil)
	if body := readBody(t, resp); !strings.Contains(body, "**Dr. Jane Doe**: Hello") || !strings.Contains(body, "`talk.mp3`") {
		t.Errorf("markdown export = %q", body)
	}
}

func TestUploadStartOverRequiresConfirmation(t *testing.T) {
	srv, _ := newTestServer(t, transcriberFunc(fixedSegments))
	id := createSession(t, srv)

	if resp := upload(t, srv, id, "one.mp3", "1", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("first upload status = %d", resp.StatusCode)
	}

	resp := upload(t, srv, id, "two.mp3", "2", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("unconfirmed upload status = %d, want 409", resp.StatusCode)
	}
	if body := readBody(t, resp); !strings.Contains(body, "Do you want to start over?") {
		t.Errorf("409 body lacks the prompt: %s", body)
	}

	resp = upload(t, srv, id, "two.mp3", "2", map[string]string{"confirm": "false"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("declined upload status = %d, want 409", resp.StatusCode)
	}

	resp = upload(t, srv, id, "two.mp3", "2", map[string]string{"confirm": "true"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("confirmed upload status = %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var uploaded map[string]string
	json.NewDecoder(resp.Body).Decode(&uploaded)
	if !strings.HasSuffix(uploaded["fileName"], "-two.mp3") {
		t.Errorf("fileName = %q", uploaded["fileName"])
	}

	resp = upload(t, srv, id, "three.mp3", "3", map[string]string{"confirm": "maybe"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid confirm status = %d, want 400", resp.StatusCode)
	}
}

func TestUploadErrors(t *testing.T) {
	srv, _ := newTestServer(t, transcriberFunc(fixedSegments))
	id := createSession(t, srv)

	tests := []struct {
		name     string
		file     string
		content  string
		wantCode int
	}{
		{"missing file", "", "", http.StatusBadRequest},
		{"empty file", "a.mp3", "", http.StatusBadRequest},
		{"too large", "a.mp3", strings.Repeat("x", 1<<20+1), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := upload(t, srv, id, tt.file, tt.content, nil)
			if resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
		})
	}

	// session stays usable after failed uploads
	if resp := upload(t, srv, id, "ok.mp3", "audio", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("upload after failures status = %d", resp.StatusCode)
	}
}

func TestTranscribeConflicts(t *testing.T) {
	srv, store := newTestServer(t, transcriberFunc(fixedSegments))
	id := createSession(t, srv)
	base := srv.URL + "/api/sessions/" + id

	if resp := do(t, http.MethodPost, base+"/transcribe", nil); resp.StatusCode != http.StatusConflict {
		t.Errorf("transcribe before upload status = %d, want 409", resp.StatusCode)
	}

	resp := upload(t, srv, id, "a.mp3", "audio", nil)
	var uploaded map[string]string
	json.NewDecoder(resp.Body).Decode(&uploaded)

	if err := store.Remove(uploaded["fileName"]); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if resp := do(t, http.MethodPost, base+"/transcribe", nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("transcribe of vanished file status = %d, want 400", resp.StatusCode)
	}
}

func TestTranscribeFailureSurfaces(t *testing.T) {
	srv, _ := newTestServer(t, transcriberFunc(func(ctx context.Context, ref string) ([]transcript.Segment, error) {
		return nil, errors.New("provider down")
	}))
	id := createSession(t, srv)
	upload(t, srv, id, "a.mp3", "audio", nil)

	resp := do(t, http.MethodPost, srv.URL+"/api/sessions/"+id+"/transcribe?wait=1", nil)
	var info session.Info
	json.NewDecoder(resp.Body).Decode(&info)
	if info.TranscriptionState.String() != "failed" || info.LastError != "Error in transcription." {
		t.Errorf("session = %+v", info)
	}
}

func TestSpeakerAndSessionErrors(t *testing.T) {
	srv, _ := newTestServer(t, transcriberFunc(fixedSegments))
	id := createSession(t, srv)
	base := srv.URL + "/api/sessions/" + id

	tests := []struct {
		name     string
		method   string
		url      string
		body     string
		wantCode int
	}{
		{"unknown session", http.MethodGet, srv.URL + "/api/sessions/nope", "", http.StatusNotFound},
		{"speaker before transcript", http.MethodPut, base + "/speakers/0", `{}`, http.StatusBadRequest},
		{"non-numeric index", http.MethodPut, base + "/speakers/x", `{}`, http.StatusBadRequest},
		{"bad profile json", http.MethodPut, base + "/speakers/0", `{`, http.StatusBadRequest},
		{"unknown export format", http.MethodGet, base + "/transcript?format=pdf", "", http.StatusBadRequest},
		{"wrong method", http.MethodGet, base + "/upload", "", http.StatusMethodNotAllowed},
		{"delete", http.MethodDelete, base, "", http.StatusNoContent},
		{"delete again", http.MethodDelete, base, "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			if resp := do(t, tt.method, tt.url, body); resp.StatusCode != tt.wantCode {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantCode)
			}
		})
	}
}

func TestMonitoringEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, transcriberFunc(fixedSegments))
	createSession(t, srv)

	for _, path := range []string{"/", "/health", "/config", "/stats", "/metrics"} {
		resp := do(t, http.MethodGet, srv.URL+path, nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d", path, resp.StatusCode)
		}
	}

	if body := readBody(t, do(t, http.MethodGet, srv.URL+"/config", nil)); strings.Contains(body, "api_key") {
		t.Errorf("config leaks api_key: %s", body)
	}

	body := readBody(t, do(t, http.MethodGet, srv.URL+"/metrics", nil))
	for _, name := range []string{"transcribe_sessions_created_total 1", "transcribe_http_requests_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output lacks %q", name)
		}
	}
}
