package transcribe

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/studymill/studymill-backend/internal/clients/gcp"
	"github.com/studymill/studymill-backend/internal/domain"
	"github.com/studymill/studymill-backend/internal/platform/envutil"
	"github.com/studymill/studymill-backend/internal/platform/logger"
)

type gcpProvider struct {
	log    *logger.Logger
	speech gcp.Speech
	model  string
	lang   string
}

func NewGCPProvider(log *logger.Logger) (Provider, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	sp, err := gcp.NewSpeech(log)
	if err != nil {
		return nil, fmt.Errorf("gcp speech provider: %w", err)
	}
	return &gcpProvider{
		log:    log.With("service", "GCPSpeechProvider"),
		speech: sp,
		model:  envutil.Str("GCP_SPEECH_MODEL", "latest_long"),
		lang:   envutil.Str("GCP_SPEECH_LANGUAGE", "en-US"),
	}, nil
}

func (p *gcpProvider) Name() string  { return "gcp_speech" }
func (p *gcpProvider) Model() string { return p.model }

// speechLanguageCode turns a bare ISO-639-1 hint into the BCP-47 code the
// speech API expects. Regioned hints pass through untouched.
var speechLanguageCodes = map[string]string{
	"en": "en-US",
	"es": "es-ES",
	"fr": "fr-FR",
	"de": "de-DE",
	"pt": "pt-BR",
	"it": "it-IT",
	"pl": "pl-PL",
	"ru": "ru-RU",
	"ja": "ja-JP",
	"ko": "ko-KR",
	"zh": "cmn-Hans-CN",
	"ar": "ar-EG",
	"el": "el-GR",
	"he": "iw-IL",
}

func speechLanguageCode(hint, fallback string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return fallback
	}
	if strings.Contains(hint, "-") {
		return hint
	}
	if code, ok := speechLanguageCodes[strings.ToLower(hint)]; ok {
		return code
	}
	return fallback
}

func (p *gcpProvider) TranscribeChunk(ctx context.Context, chunk domain.AudioChunk, languageHint string) (ChunkResult, error) {
	audio, err := os.ReadFile(chunk.FilePath)
	if err != nil {
		return ChunkResult{}, fmt.Errorf("read chunk %d: %w", chunk.Index, err)
	}

	res, err := p.speech.TranscribeAudioBytes(ctx, audio, "audio/mpeg", gcp.SpeechConfig{
		LanguageCode:               speechLanguageCode(languageHint, p.lang),
		Model:                      p.model,
		EnableAutomaticPunctuation: true,
		EnableWordTimeOffsets:      true,
		SampleRateHertz:            16000,
		AudioChannelCount:          1,
	})
	if err != nil {
		return ChunkResult{}, err
	}

	out := ChunkResult{
		Text:     res.PrimaryText,
		Language: strings.TrimSpace(res.Language),
		Segments: make([]domain.TranscriptSegment, 0, len(res.Segments)),
	}
	for _, s := range res.Segments {
		out.Segments = append(out.Segments, domain.TranscriptSegment{
			StartSec: s.StartSec,
			EndSec:   s.EndSec,
			Text:     s.Text,
		})
	}
	return out, nil
}
