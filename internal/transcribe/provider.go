package transcribe

import (
	"context"
	"fmt"
	"strings"

	"github.com/studymill/studymill-backend/internal/domain"
	"github.com/studymill/studymill-backend/internal/platform/logger"
)

// ChunkResult is one chunk's transcript with timestamps local to the chunk
// (the transcriber re-offsets them onto the full timeline).
type ChunkResult struct {
	Text     string
	Language string
	Segments []domain.TranscriptSegment
}

// Provider transcribes a single prepared audio chunk. languageHint is an
// optional ISO-639-1 code the backend may use to bias recognition; empty
// means autodetect.
type Provider interface {
	Name() string
	Model() string
	TranscribeChunk(ctx context.Context, chunk domain.AudioChunk, languageHint string) (ChunkResult, error)
}

// NewProvider selects a speech backend by name.
func NewProvider(log *logger.Logger, name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "openai", "whisper":
		return NewWhisperProvider(log)
	case "gcp", "google":
		return NewGCPProvider(log)
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", name)
	}
}
