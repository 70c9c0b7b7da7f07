package extract

import (
	"regexp"
	"strings"

	"github.com/studymill/studymill-backend/internal/domain"
	"github.com/studymill/studymill-backend/internal/platform/envutil"
)

// QualityThresholds are the tunable knobs of the text quality heuristic. The
// defaults are uncalibrated starting points, so every cutoff is configuration
// rather than a constant.
type QualityThresholds struct {
	// Words at or below ShortWordLen, or above LongWordLen, count as gibberish.
	ShortWordLen int
	LongWordLen  int

	// OCRBelowConfidence triggers the OCR fallback; ReviewBelowConfidence
	// flags the result for manual review.
	OCRBelowConfidence    float64
	ReviewBelowConfidence float64

	// MinAcceptLength is the shortest text accepted without review.
	// CompleteLength is the length at which completeness saturates at 1.
	MinAcceptLength int
	CompleteLength  int
}

func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		ShortWordLen:          1,
		LongWordLen:           20,
		OCRBelowConfidence:    envutil.Float("QUALITY_OCR_CONFIDENCE", 0.4),
		ReviewBelowConfidence: envutil.Float("QUALITY_REVIEW_CONFIDENCE", 0.6),
		MinAcceptLength:       envutil.Int("QUALITY_MIN_ACCEPT_LENGTH", 50),
		CompleteLength:        envutil.Int("QUALITY_COMPLETE_LENGTH", 500),
	}
}

var (
	headingLineRe = regexp.MustCompile(`(?m)^(#{1,6}\s+\S|[A-Z][A-Z0-9 .,'&-]{3,}$|(?:Chapter|Section|Unit|Lecture|Slide)\s+\d)`)
	listLineRe    = regexp.MustCompile(`(?m)^\s*([-*•]\s+\S|\d+[.)]\s+\S)`)
	tableLineRe   = regexp.MustCompile(`(?m)^.*\|.*\|.*$`)
)

// QualityAssessor scores extracted text. Assess is pure and deterministic:
// it gates a potentially expensive OCR re-run, so identical input must always
// produce identical output.
type QualityAssessor struct {
	th QualityThresholds
}

func NewQualityAssessor(th QualityThresholds) *QualityAssessor {
	if th.LongWordLen <= 0 {
		th = DefaultQualityThresholds()
	}
	return &QualityAssessor{th: th}
}

func (a *QualityAssessor) Assess(text string) domain.Quality {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return domain.Quality{RecommendedAction: domain.ActionOCR}
	}

	words := strings.Fields(trimmed)
	gibberish := 0
	for _, w := range words {
		n := len([]rune(strings.Trim(w, ".,;:!?()[]{}\"'")))
		if n <= a.th.ShortWordLen || n > a.th.LongWordLen {
			gibberish++
		}
	}
	confidence := 1.0
	if len(words) > 0 {
		confidence = 1.0 - float64(gibberish)/float64(len(words))
	}

	structure := 0.2
	if headingLineRe.MatchString(trimmed) {
		structure += 0.3
	}
	if listLineRe.MatchString(trimmed) {
		structure += 0.2
	}
	if tableLineRe.MatchString(trimmed) {
		structure += 0.3
	}

	length := len(trimmed)
	completeness := float64(length) / float64(a.th.CompleteLength)
	if completeness > 1 {
		completeness = 1
	}

	action := domain.ActionProcess
	switch {
	case confidence < a.th.OCRBelowConfidence:
		action = domain.ActionOCR
	case confidence < a.th.ReviewBelowConfidence || length < a.th.MinAcceptLength:
		action = domain.ActionManualReview
	}

	return domain.Quality{
		TextConfidence:    confidence,
		StructureScore:    structure,
		Completeness:      completeness,
		RecommendedAction: action,
	}
}

// HasTables reports whether the text contains pipe-delimited table rows. The
// pipeline records it as structural metadata for downstream consumers.
func HasTables(text string) bool {
	return tableLineRe.MatchString(text)
}
