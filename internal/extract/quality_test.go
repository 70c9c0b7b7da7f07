package extract

import (
	"strings"
	"testing"

	"github.com/studymill/studymill-backend/internal/domain"
)

func defaultAssessor() *QualityAssessor {
	return NewQualityAssessor(QualityThresholds{
		ShortWordLen:          1,
		LongWordLen:           20,
		OCRBelowConfidence:    0.4,
		ReviewBelowConfidence: 0.6,
		MinAcceptLength:       50,
		CompleteLength:        500,
	})
}

func TestAssessIsPure(t *testing.T) {
	a := defaultAssessor()
	text := "# Photosynthesis\n\nPlants convert light into chemical energy through a series of reactions."
	first := a.Assess(text)
	for i := 0; i < 10; i++ {
		if got := a.Assess(text); got != first {
			t.Fatalf("assess not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestAssessEmptyText(t *testing.T) {
	a := defaultAssessor()
	for _, text := range []string{"", "   ", "\n\t"} {
		q := a.Assess(text)
		if q.TextConfidence != 0 {
			t.Fatalf("empty text confidence %v, want 0", q.TextConfidence)
		}
		if q.RecommendedAction != domain.ActionOCR {
			t.Fatalf("empty text action %v, want ocr", q.RecommendedAction)
		}
	}
}

func TestAssessShortCleanTextNeedsReview(t *testing.T) {
	a := defaultAssessor()
	q := a.Assess("Short but perfectly clean text here")
	if q.RecommendedAction != domain.ActionManualReview {
		t.Fatalf("short text action %v, want manual_review", q.RecommendedAction)
	}
}

func TestAssessGibberishTriggersOCR(t *testing.T) {
	a := defaultAssessor()
	// Mostly one-letter tokens: classic shredded-OCR output.
	text := strings.Repeat("a b c d e f g h ", 20)
	q := a.Assess(text)
	if q.TextConfidence >= 0.4 {
		t.Fatalf("gibberish confidence %v, want < 0.4", q.TextConfidence)
	}
	if q.RecommendedAction != domain.ActionOCR {
		t.Fatalf("gibberish action %v, want ocr", q.RecommendedAction)
	}
}

func TestAssessCleanLongTextProcesses(t *testing.T) {
	a := defaultAssessor()
	text := strings.Repeat("The mitochondria is the powerhouse of the cell and produces energy. ", 12)
	q := a.Assess(text)
	if q.RecommendedAction != domain.ActionProcess {
		t.Fatalf("clean text action %v, want process (confidence %v)", q.RecommendedAction, q.TextConfidence)
	}
	if q.Completeness != 1 {
		t.Fatalf("long text completeness %v, want 1", q.Completeness)
	}
}

func TestAssessStructureScore(t *testing.T) {
	a := defaultAssessor()

	plain := a.Assess(strings.Repeat("plain prose sentence with ordinary words here. ", 10))
	if plain.StructureScore != 0.2 {
		t.Fatalf("plain structure %v, want 0.2", plain.StructureScore)
	}

	withHeadings := a.Assess("# Title\n" + strings.Repeat("normal prose content about biology today. ", 10))
	if withHeadings.StructureScore != 0.5 {
		t.Fatalf("heading structure %v, want 0.5", withHeadings.StructureScore)
	}

	full := a.Assess("# Title\n- item one\n- item two\n| col | col |\n" +
		strings.Repeat("normal prose content about biology today. ", 10))
	if full.StructureScore < 0.99 {
		t.Fatalf("full structure %v, want ~1.0", full.StructureScore)
	}
}

func TestAssessCompletenessScalesWithLength(t *testing.T) {
	a := defaultAssessor()
	q := a.Assess(strings.Repeat("ab cd ", 50)) // 300 chars
	if q.Completeness <= 0.5 || q.Completeness >= 0.7 {
		t.Fatalf("completeness %v, want ~0.6", q.Completeness)
	}
}
