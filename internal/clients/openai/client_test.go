package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/studymill/studymill-backend/internal/pkg/errs"
	"github.com/studymill/studymill-backend/internal/pkg/httpx"
	"github.com/studymill/studymill-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, handler http.Handler) (Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", srv.URL)

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	c, err := NewClient(log)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, srv
}

const responsesBody = `{"output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"# Notes"}]}]}`

func TestGenerateTextSingleAttemptPerCall(t *testing.T) {
	var hits atomic.Int64
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.GenerateText(context.Background(), "sys", "user")
	if err == nil {
		t.Fatal("expected error from 500")
	}
	if hits.Load() != 1 {
		t.Fatalf("client made %d requests, want exactly 1", hits.Load())
	}
	if errs.NonRetryable(err) {
		t.Fatalf("500 classified non-retryable: %v", err)
	}
}

func TestGenerateTextClassifiesAuthFailure(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := c.GenerateText(context.Background(), "sys", "user")
	if !errors.Is(err, errs.ErrAuth) {
		t.Fatalf("got %v, want ErrAuth", err)
	}
}

func TestGenerateTextClassifiesBadRequest(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))

	_, err := c.GenerateText(context.Background(), "sys", "user")
	if !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
}

func TestGenerateTextCarriesRetryAfterHint(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.GenerateText(context.Background(), "sys", "user")
	if err == nil {
		t.Fatal("expected error from 429")
	}
	var hinter httpx.RetryAfterHinter
	if !errors.As(err, &hinter) {
		t.Fatalf("error %v does not carry a retry hint", err)
	}
	if got := hinter.RetryAfterHint(); got != 7*time.Second {
		t.Fatalf("hint %v, want 7s", got)
	}
}

func TestGenerateTextExtractsOutputText(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(responsesBody))
	}))

	text, err := c.GenerateText(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "# Notes" {
		t.Fatalf("text %q, want extracted output", text)
	}
}

func writeTestAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunk_0.mp3")
	if err := os.WriteFile(path, []byte("fake audio bytes"), 0o644); err != nil {
		t.Fatalf("write audio fixture: %v", err)
	}
	return path
}

func TestTranscribeFileSendsLanguageField(t *testing.T) {
	var gotModel, gotFormat, gotLanguage string
	var gotFile bool
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		gotFormat = r.FormValue("response_format")
		gotLanguage = r.FormValue("language")
		_, _, ferr := r.FormFile("file")
		gotFile = ferr == nil
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"hallo welt","language":"german","segments":[{"start":0,"end":2.5,"text":" hallo welt"}]}`))
	}))

	res, err := c.TranscribeFile(context.Background(), writeTestAudio(t), "de")
	if err != nil {
		t.Fatalf("TranscribeFile: %v", err)
	}
	if !gotFile {
		t.Fatal("audio file part missing from request")
	}
	if gotModel != "whisper-1" || gotFormat != "verbose_json" {
		t.Fatalf("model=%q format=%q", gotModel, gotFormat)
	}
	if gotLanguage != "de" {
		t.Fatalf("language field %q, want de", gotLanguage)
	}
	if res.Text != "hallo welt" || res.Language != "german" {
		t.Fatalf("decoded %+v", res)
	}
	if len(res.Segments) != 1 || res.Segments[0].EndSec != 2.5 || res.Segments[0].Text != "hallo welt" {
		t.Fatalf("segments %+v", res.Segments)
	}
}

func TestTranscribeFileOmitsEmptyLanguage(t *testing.T) {
	var hadLanguage bool
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		_, hadLanguage = r.MultipartForm.Value["language"]
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"hello","language":"english"}`))
	}))

	if _, err := c.TranscribeFile(context.Background(), writeTestAudio(t), ""); err != nil {
		t.Fatalf("TranscribeFile: %v", err)
	}
	if hadLanguage {
		t.Fatal("language field sent without a hint; autodetect should be left to the model")
	}
}

func TestTranscribeFileClassifiesOversizedUpload(t *testing.T) {
	var hits atomic.Int64
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))

	_, err := c.TranscribeFile(context.Background(), writeTestAudio(t), "")
	if !errors.Is(err, errs.ErrPayloadTooLarge) {
		t.Fatalf("got %v, want ErrPayloadTooLarge", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("client made %d requests, want exactly 1", hits.Load())
	}
}
