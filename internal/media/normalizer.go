package media

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/studymill/studymill-backend/internal/domain"
	"github.com/studymill/studymill-backend/internal/pkg/ctxutil"
	"github.com/studymill/studymill-backend/internal/pkg/errs"
	"github.com/studymill/studymill-backend/internal/platform/logger"
)

// videoExtensions is the known set of video container extensions. Uploads
// matching it must carry an audio stream or the job fails up front.
var videoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
	".avi":  true,
	".m4v":  true,
	".wmv":  true,
	".flv":  true,
}

func IsVideoFilename(name string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(name))]
}

// ChunkSpan is one planned slice of the normalized audio timeline.
type ChunkSpan struct {
	Index    int
	StartSec float64
	EndSec   float64
}

// PlanChunks splits [0, durationSec) into ceil(duration/chunk) contiguous
// spans. The final span covers the remainder.
func PlanChunks(durationSec, chunkSec float64) []ChunkSpan {
	if durationSec <= 0 || chunkSec <= 0 {
		return nil
	}
	count := int(math.Ceil(durationSec / chunkSec))
	spans := make([]ChunkSpan, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * chunkSec
		end := start + chunkSec
		if end > durationSec {
			end = durationSec
		}
		spans = append(spans, ChunkSpan{Index: i, StartSec: start, EndSec: end})
	}
	return spans
}

// NormalizedAudio is the audio path's intermediate product: speech-ready
// chunk files inside the run's workspace.
type NormalizedAudio struct {
	Chunks           []domain.AudioChunk
	TotalDurationSec float64
}

type NormalizerConfig struct {
	ChunkSeconds float64
	// SampleRateHz / Channels / BitrateKbps are the canonical speech format:
	// quality is deliberately traded for upload-size efficiency.
	SampleRateHz int
	Channels     int
	BitrateKbps  int
}

func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{
		ChunkSeconds: 300,
		SampleRateHz: 16000,
		Channels:     1,
		BitrateKbps:  32,
	}
}

type Normalizer interface {
	Normalize(ctx context.Context, ws *Workspace, inputPath, originalName string) (*NormalizedAudio, error)
}

type ffmpegNormalizer struct {
	log        *logger.Logger
	prober     Prober
	ffmpegPath string
	cfg        NormalizerConfig
	timeout    time.Duration
}

func NewNormalizer(log *logger.Logger, prober Prober, cfg NormalizerConfig) Normalizer {
	if cfg.ChunkSeconds <= 0 {
		cfg = DefaultNormalizerConfig()
	}
	return &ffmpegNormalizer{
		log:        log.With("service", "AudioNormalizer"),
		prober:     prober,
		ffmpegPath: "ffmpeg",
		cfg:        cfg,
		timeout:    10 * time.Minute,
	}
}

func (n *ffmpegNormalizer) Normalize(ctx context.Context, ws *Workspace, inputPath, originalName string) (*NormalizedAudio, error) {
	ctx = ctxutil.Default(ctx)

	info, err := n.prober.Probe(ctx, inputPath)
	if err != nil {
		return nil, fmt.Errorf("probe input: %w", err)
	}
	if IsVideoFilename(originalName) || info.HasVideo {
		if !info.HasAudio {
			return nil, fmt.Errorf("%w: %s", errs.ErrNoAudioTrack, originalName)
		}
	}
	if info.DurationSec <= 0 {
		return nil, fmt.Errorf("%w: could not determine duration of %s", errs.ErrTranscodeFailed, originalName)
	}

	audioDir, err := ws.Mkdir("audio")
	if err != nil {
		return nil, err
	}
	normalizedPath := filepath.Join(audioDir, "normalized.mp3")
	if err := n.transcode(ctx, inputPath, normalizedPath); err != nil {
		return nil, err
	}

	duration := info.DurationSec

	// Short clips skip the split entirely: one chunk spanning the whole file
	// avoids a second encode pass.
	if duration <= 0.8*n.cfg.ChunkSeconds {
		size := fileSize(normalizedPath)
		return &NormalizedAudio{
			TotalDurationSec: duration,
			Chunks: []domain.AudioChunk{{
				Index:     0,
				StartSec:  0,
				EndSec:    duration,
				FilePath:  normalizedPath,
				SizeBytes: size,
			}},
		}, nil
	}

	spans := PlanChunks(duration, n.cfg.ChunkSeconds)
	chunks := make([]domain.AudioChunk, 0, len(spans))
	for _, span := range spans {
		chunkPath := filepath.Join(audioDir, fmt.Sprintf("chunk_%04d.mp3", span.Index))
		if err := n.cut(ctx, normalizedPath, chunkPath, span); err != nil {
			return nil, err
		}
		chunks = append(chunks, domain.AudioChunk{
			Index:     span.Index,
			StartSec:  span.StartSec,
			EndSec:    span.EndSec,
			FilePath:  chunkPath,
			SizeBytes: fileSize(chunkPath),
		})
	}

	return &NormalizedAudio{Chunks: chunks, TotalDurationSec: duration}, nil
}

// transcode produces the canonical speech-ready format: mono, 16 kHz, low
// bitrate mp3.
func (n *ffmpegNormalizer) transcode(ctx context.Context, inputPath, outPath string) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", strconv.Itoa(n.cfg.Channels),
		"-ar", strconv.Itoa(n.cfg.SampleRateHz),
		"-b:a", fmt.Sprintf("%dk", n.cfg.BitrateKbps),
		"-f", "mp3",
		outPath,
	}
	cmd := exec.CommandContext(ctx, n.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: ffmpeg: %v; out=%s", errs.ErrTranscodeFailed, err, tail(string(out), 600))
	}
	if _, err := os.Stat(outPath); err != nil {
		return fmt.Errorf("%w: ffmpeg completed but output missing at %s", errs.ErrTranscodeFailed, outPath)
	}
	return nil
}

// cut slices one chunk out of the already-normalized audio with stream copy,
// so no second encode happens.
func (n *ffmpegNormalizer) cut(ctx context.Context, inputPath, outPath string, span ChunkSpan) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-ss", formatSeconds(span.StartSec),
		"-t", formatSeconds(span.EndSec - span.StartSec),
		"-i", inputPath,
		"-c", "copy",
		outPath,
	}
	cmd := exec.CommandContext(ctx, n.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: ffmpeg chunk %d: %v; out=%s", errs.ErrTranscodeFailed, span.Index, err, tail(string(out), 600))
	}
	if _, err := os.Stat(outPath); err != nil {
		return fmt.Errorf("%w: chunk %d output missing", errs.ErrTranscodeFailed, span.Index)
	}
	return nil
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func tail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
