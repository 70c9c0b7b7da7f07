package transcribe

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/studymill/studymill-backend/internal/domain"
	"github.com/studymill/studymill-backend/internal/pkg/ctxutil"
	"github.com/studymill/studymill-backend/internal/pkg/errs"
	"github.com/studymill/studymill-backend/internal/platform/envutil"
	"github.com/studymill/studymill-backend/internal/platform/logger"
	"github.com/studymill/studymill-backend/internal/retry"
)

type TranscriberConfig struct {
	Concurrency    int
	MaxUploadBytes int64
	Retry          retry.Policy
}

func DefaultTranscriberConfig() TranscriberConfig {
	p := retry.Default()
	p.NonRetryable = errs.NonRetryable
	return TranscriberConfig{
		Concurrency:    envutil.Int("TRANSCRIBE_CONCURRENCY", 3),
		MaxUploadBytes: envutil.Int64("TRANSCRIBE_MAX_UPLOAD_BYTES", 25*1024*1024),
		Retry:          p,
	}
}

// Transcriber runs a set of audio chunks through a speech provider and
// reassembles the transcript in chunk order. languageHint is forwarded to the
// provider and becomes the reported language when the provider detects none.
type Transcriber interface {
	Transcribe(ctx context.Context, chunks []domain.AudioChunk, totalDurationSec float64, languageHint string, onChunkDone func(done, total int)) (*domain.TranscriptionResult, string, error)
}

type chunkedTranscriber struct {
	log      *logger.Logger
	provider Provider
	cfg      TranscriberConfig
}

func NewTranscriber(log *logger.Logger, provider Provider, cfg TranscriberConfig) (Transcriber, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if provider == nil {
		return nil, fmt.Errorf("speech provider required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	return &chunkedTranscriber{
		log:      log.With("service", "ChunkedTranscriber"),
		provider: provider,
		cfg:      cfg,
	}, nil
}

// Transcribe returns the assembled result plus the first detected language.
// Chunks may finish in any order; the transcript is always stitched by Index.
func (t *chunkedTranscriber) Transcribe(ctx context.Context, chunks []domain.AudioChunk, totalDurationSec float64, languageHint string, onChunkDone func(done, total int)) (*domain.TranscriptionResult, string, error) {
	ctx = ctxutil.Default(ctx)

	if len(chunks) == 0 {
		return nil, "", fmt.Errorf("no audio chunks to transcribe")
	}

	// Size ceilings are validated before any provider call so an oversized
	// chunk never burns quota on the ones before it.
	if t.cfg.MaxUploadBytes > 0 {
		for _, c := range chunks {
			if c.SizeBytes > t.cfg.MaxUploadBytes {
				return nil, "", fmt.Errorf("%w: chunk %d is %d bytes (limit %d)",
					errs.ErrPayloadTooLarge, c.Index, c.SizeBytes, t.cfg.MaxUploadBytes)
			}
		}
	}

	results := make([]ChunkResult, len(chunks))

	var mu sync.Mutex
	done := 0
	total := len(chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Concurrency)

	for i := range chunks {
		chunk := chunks[i]
		g.Go(func() error {
			var res ChunkResult
			err := t.cfg.Retry.Do(gctx, func() error {
				var cerr error
				res, cerr = t.provider.TranscribeChunk(gctx, chunk, languageHint)
				return cerr
			})
			if err != nil {
				return fmt.Errorf("transcribe chunk %d: %w", chunk.Index, err)
			}

			// Provider timestamps are chunk-local; shift onto the source
			// timeline before reassembly.
			for j := range res.Segments {
				res.Segments[j].StartSec += chunk.StartSec
				res.Segments[j].EndSec += chunk.StartSec
			}

			mu.Lock()
			results[chunk.Index] = res
			done++
			d := done
			mu.Unlock()

			if onChunkDone != nil {
				onChunkDone(d, total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, "", err
	}

	var full strings.Builder
	var segments []domain.TranscriptSegment
	language := ""

	for i := range results {
		txt := strings.TrimSpace(results[i].Text)
		if txt != "" {
			if full.Len() > 0 {
				full.WriteString(" ")
			}
			full.WriteString(txt)
		}
		segments = append(segments, results[i].Segments...)
		if language == "" && results[i].Language != "" {
			language = results[i].Language
		}
	}

	sort.SliceStable(segments, func(a, b int) bool {
		return segments[a].StartSec < segments[b].StartSec
	})

	if language == "" {
		language = strings.TrimSpace(languageHint)
	}

	return &domain.TranscriptionResult{
		Text:        full.String(),
		Segments:    segments,
		DurationSec: totalDurationSec,
		Provider:    t.provider.Name(),
		Model:       t.provider.Model(),
	}, language, nil
}
