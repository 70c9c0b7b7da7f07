package gcp

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/studymill/studymill-backend/internal/pkg/ctxutil"
	"github.com/studymill/studymill-backend/internal/pkg/errs"
	"github.com/studymill/studymill-backend/internal/platform/logger"
)

type Speech interface {
	TranscribeAudioBytes(ctx context.Context, audio []byte, mimeType string, cfg SpeechConfig) (*SpeechResult, error)
	Close() error
}

type SpeechConfig struct {
	LanguageCode string
	Model        string

	EnableAutomaticPunctuation bool
	EnableWordTimeOffsets      bool

	SampleRateHertz   int
	AudioChannelCount int

	Encoding speechpb.RecognitionConfig_AudioEncoding
}

// SpeechSegment is a timed span of recognized speech.
type SpeechSegment struct {
	StartSec float64
	EndSec   float64
	Text     string
}

type SpeechResult struct {
	PrimaryText string
	Language    string
	Segments    []SpeechSegment
}

type speechService struct {
	log    *logger.Logger
	client *speech.Client
}

func NewSpeech(log *logger.Logger) (Speech, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.Speech")

	ctx := context.Background()
	opts := ClientOptionsFromEnv()

	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}

	return &speechService{
		log:    slog,
		client: c,
	}, nil
}

func (s *speechService) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *speechService) TranscribeAudioBytes(ctx context.Context, audio []byte, mimeType string, cfg SpeechConfig) (*SpeechResult, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	if len(audio) == 0 {
		return &SpeechResult{}, nil
	}

	rcfg := buildSpeechRecognitionConfig(mimeType, cfg)
	req := &speechpb.LongRunningRecognizeRequest{
		Config: rcfg,
		Audio:  &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: audio}},
	}

	// Single attempt: the caller's retry policy owns the attempt budget.
	op, err := s.client.LongRunningRecognize(ctx, req)
	var resp *speechpb.LongRunningRecognizeResponse
	if err == nil {
		resp, err = op.Wait(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("speech longrunningrecognize: %w", classifyRPC(err))
	}

	return parseSpeechResponse(resp), nil
}

// classifyRPC maps grpc signatures onto the fail-fast sentinels so the retry
// allowlist sees credential and malformed-input failures for what they are.
func classifyRPC(err error) error {
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %v", errs.ErrAuth, err)
	case codes.InvalidArgument, codes.OutOfRange:
		return fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	default:
		return err
	}
}

func buildSpeechRecognitionConfig(mimeType string, cfg SpeechConfig) *speechpb.RecognitionConfig {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}

	enc := cfg.Encoding
	if enc == speechpb.RecognitionConfig_ENCODING_UNSPECIFIED {
		enc = inferSpeechEncoding(mimeType)
	}

	return &speechpb.RecognitionConfig{
		LanguageCode:               cfg.LanguageCode,
		Model:                      cfg.Model,
		EnableAutomaticPunctuation: cfg.EnableAutomaticPunctuation,
		EnableWordTimeOffsets:      cfg.EnableWordTimeOffsets,
		Encoding:                   enc,
		SampleRateHertz:            int32(max0(cfg.SampleRateHertz)),
		AudioChannelCount:          int32(max0(cfg.AudioChannelCount)),
	}
}

func inferSpeechEncoding(mimeType string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	ext := strings.ToLower(filepath.Ext(m))

	switch {
	case strings.Contains(m, "wav") || ext == ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "flac") || ext == ".flac":
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "mp3") || ext == ".mp3":
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "ogg") || ext == ".ogg" || ext == ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

func parseSpeechResponse(resp *speechpb.LongRunningRecognizeResponse) *SpeechResult {
	out := &SpeechResult{}
	if resp == nil || len(resp.Results) == 0 {
		return out
	}

	var full strings.Builder
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		alt := r.Alternatives[0]
		txt := strings.TrimSpace(alt.Transcript)
		if txt == "" {
			continue
		}
		if full.Len() > 0 {
			full.WriteString(" ")
		}
		full.WriteString(txt)

		if out.Language == "" && r.LanguageCode != "" {
			out.Language = r.LanguageCode
		}

		seg := SpeechSegment{Text: txt, EndSec: durToSec(r.ResultEndTime)}
		if len(alt.Words) > 0 && alt.Words[0] != nil {
			seg.StartSec = durToSec(alt.Words[0].StartTime)
			if last := alt.Words[len(alt.Words)-1]; last != nil {
				seg.EndSec = durToSec(last.EndTime)
			}
		}
		out.Segments = append(out.Segments, seg)
	}

	out.PrimaryText = strings.TrimSpace(full.String())
	return out
}

func durToSec(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}

func max0(x int) int {
	if x < 0 {
		return 0
	}
	return x
}
