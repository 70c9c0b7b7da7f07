package structurer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/studymill/studymill-backend/internal/clients/openai"
	"github.com/studymill/studymill-backend/internal/pkg/ctxutil"
	"github.com/studymill/studymill-backend/internal/pkg/errs"
	"github.com/studymill/studymill-backend/internal/platform/envutil"
	"github.com/studymill/studymill-backend/internal/platform/logger"
	"github.com/studymill/studymill-backend/internal/retry"
)

// TruncationMarker is appended whenever input is cut at the character
// ceiling, so the loss is visible rather than silent.
const TruncationMarker = "\n\n[... input truncated ...]"

const systemPrompt = `You organize raw lecture transcripts and extracted document text into clean, structured Markdown study notes.

Rules:
- Use # and ## headings to organize topics and subtopics.
- Use bullet lists for enumerations and key points.
- Use Markdown tables where the source presents tabular data.
- Preserve all factual content; do not summarize away details.
- Preserve slide or page boundaries when the source marks them.
- Write in the same language as the source text.
- Output only the structured notes. No preamble, no commentary, no explanation of what you did.`

// Result is the output of the structuring stage.
type Result struct {
	StructuredText   string
	DetectedLanguage string
	Truncated        bool
}

type Structurer interface {
	Structure(ctx context.Context, rawText, title, languageHint string) (*Result, error)
}

type llmStructurer struct {
	log           *logger.Logger
	client        openai.Client
	maxInputChars int
	retry         retry.Policy
}

func NewStructurer(log *logger.Logger, client openai.Client) (Structurer, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if client == nil {
		return nil, fmt.Errorf("llm client required")
	}
	p := retry.Default()
	p.NonRetryable = errs.NonRetryable
	return &llmStructurer{
		log:           log.With("service", "TextStructurer"),
		client:        client,
		maxInputChars: envutil.Int("LLM_MAX_INPUT_CHARS", 30000),
		retry:         p,
	}, nil
}

func (s *llmStructurer) Structure(ctx context.Context, rawText, title, languageHint string) (*Result, error) {
	ctx = ctxutil.Default(ctx)

	rawText = strings.TrimSpace(rawText)
	if rawText == "" {
		return nil, fmt.Errorf("%w: nothing to structure", errs.ErrEmptyExtraction)
	}

	input, truncated := TruncateInput(rawText, s.maxInputChars)

	language := strings.TrimSpace(languageHint)
	if language == "" {
		language = DetectLanguage(rawText)
	}

	var user strings.Builder
	if t := strings.TrimSpace(title); t != "" {
		user.WriteString(fmt.Sprintf("Title: %s\n", t))
	}
	if language != "" {
		user.WriteString(fmt.Sprintf("Source language: %s\n", language))
	}
	user.WriteString("\n")
	user.WriteString(input)

	if truncated {
		s.log.Warn("structuring input truncated at ceiling",
			"raw_chars", len(rawText),
			"ceiling", s.maxInputChars,
		)
	}

	var text string
	err := s.retry.Do(ctx, func() error {
		var cerr error
		text, cerr = s.client.GenerateText(ctx, systemPrompt, user.String())
		return cerr
	})
	if err != nil {
		return nil, fmt.Errorf("structure text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: model returned blank output", errs.ErrEmptyLLMResponse)
	}

	return &Result{
		StructuredText:   strings.TrimSpace(text),
		DetectedLanguage: language,
		Truncated:        truncated,
	}, nil
}

// TruncateInput cuts text at the ceiling and appends the truncation marker.
// The cut backs off to a rune boundary so the submitted text stays valid
// UTF-8 for non-ASCII sources.
func TruncateInput(text string, maxChars int) (string, bool) {
	if maxChars <= 0 || len(text) <= maxChars {
		return text, false
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + TruncationMarker, true
}
