package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/studymill/studymill-backend/internal/pkg/ctxutil"
	"github.com/studymill/studymill-backend/internal/pkg/errs"
	"github.com/studymill/studymill-backend/internal/pkg/httpx"
	"github.com/studymill/studymill-backend/internal/platform/logger"
)

// TranscriptionSegment is one timed span of recognized speech as returned by
// the verbose transcription response.
type TranscriptionSegment struct {
	StartSec float64
	EndSec   float64
	Text     string
}

// Transcription is the result of transcribing a single audio file.
type Transcription struct {
	Text     string
	Language string
	Segments []TranscriptionSegment
}

// Client is the OpenAI API client used by the rest of the backend. Every call
// is a single HTTP attempt; the caller's retry policy owns the attempt budget.
type Client interface {
	// Plain text (no schema)
	GenerateText(ctx context.Context, system string, user string) (string, error)

	// Whisper transcription of one audio file. language is an optional
	// ISO-639-1 hint forwarded to the model.
	TranscribeFile(ctx context.Context, path string, language string) (Transcription, error)
}

type client struct {
	log             *logger.Logger
	baseURL         string
	apiKey          string
	model           string
	transcribeModel string
	httpClient      *http.Client
}

func NewClient(log *logger.Logger) (Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}

	baseURL := strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if model == "" {
		model = "gpt-4o"
	}

	transcribeModel := strings.TrimSpace(os.Getenv("OPENAI_TRANSCRIBE_MODEL"))
	if transcribeModel == "" {
		transcribeModel = "whisper-1"
	}

	timeoutSec := 300
	if v := os.Getenv("OPENAI_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	return &client{
		log:             log.With("service", "OpenAIClient"),
		baseURL:         baseURL,
		apiKey:          apiKey,
		model:           model,
		transcribeModel: transcribeModel,
		httpClient:      &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}, nil
}

type openAIHTTPError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *openAIHTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *openAIHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (e *openAIHTTPError) RetryAfterHint() time.Duration {
	if e == nil {
		return 0
	}
	return e.RetryAfter
}

// classifyStatus maps HTTP signatures onto the fail-fast sentinels: credential
// failures, oversized payloads, and requests the API will reject identically
// on every attempt.
func classifyStatus(err error) error {
	he, ok := err.(*openAIHTTPError)
	if !ok {
		return err
	}
	switch {
	case he.StatusCode == http.StatusUnauthorized || he.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %v", errs.ErrAuth, err)
	case he.StatusCode == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %v", errs.ErrPayloadTooLarge, err)
	case he.StatusCode >= 400 && he.StatusCode < 500 && !httpx.IsRetryableHTTPStatus(he.StatusCode):
		return fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	default:
		return err
	}
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	ctx = ctxutil.Default(ctx)

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(&openAIHTTPError{
			StatusCode: resp.StatusCode,
			Body:       string(raw),
			RetryAfter: httpx.ParseRetryAfter(resp.Header),
		})
	}
	if out == nil {
		return nil
	}
	if uErr := json.Unmarshal(raw, out); uErr != nil {
		return fmt.Errorf("openai decode error: %w; raw=%s", uErr, string(raw))
	}
	return nil
}

// -------------------- Responses API (text) --------------------

type responsesRequest struct {
	Model string `json:"model"`

	Input []struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	} `json:"input"`

	Temperature float64 `json:"temperature,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Refusal string `json:"refusal,omitempty"`
}

func extractOutputText(resp responsesResponse) string {
	var out strings.Builder
	for _, item := range resp.Output {
		if item.Type == "message" && item.Role == "assistant" {
			for _, c := range item.Content {
				if c.Type == "output_text" && c.Text != "" {
					out.WriteString(c.Text)
				}
			}
		}
	}
	return out.String()
}

func (c *client) GenerateText(ctx context.Context, system string, user string) (string, error) {
	req := responsesRequest{
		Model: c.model,
		Input: []struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		}{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
	}

	var resp responsesResponse
	if err := c.do(ctx, "POST", "/v1/responses", req, &resp); err != nil {
		return "", err
	}
	if resp.Refusal != "" {
		return "", fmt.Errorf("model refused: %s", resp.Refusal)
	}

	text := extractOutputText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: no output_text in response", errs.ErrEmptyLLMResponse)
	}
	return text, nil
}

// -------------------- Audio transcription (Whisper) --------------------

type verboseTranscription struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (c *client) TranscribeFile(ctx context.Context, path string, language string) (Transcription, error) {
	ctx = ctxutil.Default(ctx)

	f, err := os.Open(path)
	if err != nil {
		return Transcription{}, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return Transcription{}, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return Transcription{}, fmt.Errorf("read audio file: %w", err)
	}
	if err := mw.WriteField("model", c.transcribeModel); err != nil {
		return Transcription{}, err
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return Transcription{}, err
	}
	if lang := strings.TrimSpace(language); lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return Transcription{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return Transcription{}, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return Transcription{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Transcription{}, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return Transcription{}, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Transcription{}, classifyStatus(&openAIHTTPError{
			StatusCode: resp.StatusCode,
			Body:       string(raw),
			RetryAfter: httpx.ParseRetryAfter(resp.Header),
		})
	}

	var decoded verboseTranscription
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Transcription{}, fmt.Errorf("openai decode error: %w; raw=%s", err, string(raw))
	}

	out := Transcription{
		Text:     strings.TrimSpace(decoded.Text),
		Language: strings.TrimSpace(decoded.Language),
		Segments: make([]TranscriptionSegment, 0, len(decoded.Segments)),
	}
	for _, s := range decoded.Segments {
		txt := strings.TrimSpace(s.Text)
		if txt == "" {
			continue
		}
		out.Segments = append(out.Segments, TranscriptionSegment{
			StartSec: s.Start,
			EndSec:   s.End,
			Text:     txt,
		})
	}
	return out, nil
}
