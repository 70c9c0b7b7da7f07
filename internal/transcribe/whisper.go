package transcribe

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/studymill/studymill-backend/internal/clients/openai"
	"github.com/studymill/studymill-backend/internal/domain"
	"github.com/studymill/studymill-backend/internal/platform/logger"
)

type whisperProvider struct {
	log    *logger.Logger
	client openai.Client
	model  string
}

func NewWhisperProvider(log *logger.Logger) (Provider, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	c, err := openai.NewClient(log)
	if err != nil {
		return nil, fmt.Errorf("whisper provider: %w", err)
	}
	model := strings.TrimSpace(os.Getenv("OPENAI_TRANSCRIBE_MODEL"))
	if model == "" {
		model = "whisper-1"
	}
	return &whisperProvider{
		log:    log.With("service", "WhisperProvider"),
		client: c,
		model:  model,
	}, nil
}

func (p *whisperProvider) Name() string  { return "openai_whisper" }
func (p *whisperProvider) Model() string { return p.model }

func (p *whisperProvider) TranscribeChunk(ctx context.Context, chunk domain.AudioChunk, languageHint string) (ChunkResult, error) {
	tr, err := p.client.TranscribeFile(ctx, chunk.FilePath, languageHint)
	if err != nil {
		return ChunkResult{}, err
	}

	out := ChunkResult{
		Text:     tr.Text,
		Language: tr.Language,
		Segments: make([]domain.TranscriptSegment, 0, len(tr.Segments)),
	}
	for _, s := range tr.Segments {
		out.Segments = append(out.Segments, domain.TranscriptSegment{
			StartSec: s.StartSec,
			EndSec:   s.EndSec,
			Text:     s.Text,
		})
	}
	return out, nil
}
