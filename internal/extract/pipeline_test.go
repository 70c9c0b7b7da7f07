package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/studymill/studymill-backend/internal/domain"
	"github.com/studymill/studymill-backend/internal/media"
	"github.com/studymill/studymill-backend/internal/pkg/errs"
	"github.com/studymill/studymill-backend/internal/platform/logger"
	"github.com/studymill/studymill-backend/internal/retry"
)

type fakeExtractor struct {
	calls   atomic.Int64
	extract func(kind domain.SourceKind) (string, int, error)
}

func (f *fakeExtractor) Extract(ctx context.Context, data []byte, kind domain.SourceKind) (string, int, error) {
	f.calls.Add(1)
	return f.extract(kind)
}

type fakeOCR struct {
	calls atomic.Int64
	text  string
	pages int
	err   error
}

func (f *fakeOCR) ExtractPDF(ctx context.Context, ws *media.Workspace, data []byte, onProgress func(frac float64)) (string, int, error) {
	f.calls.Add(1)
	if onProgress != nil {
		for p := 1; p <= f.pages; p++ {
			onProgress(float64(p) / float64(f.pages))
		}
	}
	return f.text, f.pages, f.err
}

func (f *fakeOCR) ExtractImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	return f.text, f.err
}

func docTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

func docTestConfig() DocumentPipelineConfig {
	return DocumentPipelineConfig{
		MaxDocumentBytes: 1 << 20,
		ExtractRetry: retry.Policy{
			MaxRetries:   1,
			BaseDelay:    time.Millisecond,
			MaxDelay:     time.Millisecond,
			NonRetryable: errs.NonRetryable,
			Sleep:        func(time.Duration) {},
		},
	}
}

func newTestPipeline(t *testing.T, extractor DocumentExtractor, ocr OCREngine) *DocumentPipeline {
	t.Helper()
	p, err := NewDocumentPipeline(docTestLogger(t), extractor, ocr, defaultAssessor(), docTestConfig())
	if err != nil {
		t.Fatalf("NewDocumentPipeline: %v", err)
	}
	return p
}

func cleanText(words int) string {
	return strings.TrimSpace(strings.Repeat("meaningful lecture content describing cellular respiration processes. ", words))
}

func TestProcessAcceptsCleanPrimaryExtraction(t *testing.T) {
	text := cleanText(12)
	extractor := &fakeExtractor{extract: func(domain.SourceKind) (string, int, error) {
		return text, 3, nil
	}}
	ocr := &fakeOCR{text: "ocr text"}

	doc, err := newTestPipeline(t, extractor, ocr).Process(context.Background(), nil, []byte("%PDF"), domain.SourcePDF, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if doc.UsedOCR {
		t.Fatal("clean extraction should not trigger OCR")
	}
	if ocr.calls.Load() != 0 {
		t.Fatalf("OCR called %d times for clean text", ocr.calls.Load())
	}
	if doc.Text != text {
		t.Fatalf("text altered: %q", doc.Text)
	}
	if doc.PageCount != 3 {
		t.Fatalf("page count %d, want 3", doc.PageCount)
	}
}

func TestProcessEmptyPrimaryFallsBackToOCR(t *testing.T) {
	extractor := &fakeExtractor{extract: func(domain.SourceKind) (string, int, error) {
		return "", 0, fmt.Errorf("%w: scanned pdf", errs.ErrEmptyExtraction)
	}}
	ocrText := cleanText(10)
	ocr := &fakeOCR{text: ocrText, pages: 2}

	doc, err := newTestPipeline(t, extractor, ocr).Process(context.Background(), nil, []byte("%PDF"), domain.SourcePDF, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !doc.UsedOCR {
		t.Fatal("usedOCR should be true when OCR output was selected")
	}
	if doc.Text != ocrText {
		t.Fatalf("final text is not the OCR output: %q", doc.Text)
	}
	if ocr.calls.Load() != 1 {
		t.Fatalf("OCR called %d times, want 1", ocr.calls.Load())
	}
	if doc.PageCount != 2 {
		t.Fatalf("page count %d, want 2", doc.PageCount)
	}
}

func TestProcessKeepsPrimaryWhenOCRIsWorse(t *testing.T) {
	primary := cleanText(12)
	extractor := &fakeExtractor{extract: func(domain.SourceKind) (string, int, error) {
		// Clean but short enough to be flagged for review; OCR gets a chance.
		return primary[:40], 1, nil
	}}
	ocr := &fakeOCR{text: "a b c d e", pages: 1}

	doc, err := newTestPipeline(t, extractor, ocr).Process(context.Background(), nil, []byte("%PDF"), domain.SourcePDF, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ocr.calls.Load() != 1 {
		t.Fatalf("OCR called %d times, want 1", ocr.calls.Load())
	}
	if doc.UsedOCR {
		t.Fatal("worse OCR output should not replace primary text")
	}
	if doc.Text != primary[:40] {
		t.Fatalf("primary text lost: %q", doc.Text)
	}
}

func TestProcessRejectsOversizedDocument(t *testing.T) {
	extractor := &fakeExtractor{extract: func(domain.SourceKind) (string, int, error) {
		return "unreachable", 0, nil
	}}

	big := make([]byte, (1<<20)+1)
	_, err := newTestPipeline(t, extractor, &fakeOCR{}).Process(context.Background(), nil, big, domain.SourcePDF, nil)
	if !errors.Is(err, errs.ErrDocumentTooLarge) {
		t.Fatalf("got %v, want ErrDocumentTooLarge", err)
	}
	if extractor.calls.Load() != 0 {
		t.Fatalf("extractor ran %d times before size guard", extractor.calls.Load())
	}
}

func TestProcessUnsupportedFormatFailsFast(t *testing.T) {
	extractor := &fakeExtractor{extract: func(domain.SourceKind) (string, int, error) {
		return "", 0, fmt.Errorf("%w: legacy .ppt", errs.ErrUnsupportedFormat)
	}}
	ocr := &fakeOCR{text: "should not run"}

	_, err := newTestPipeline(t, extractor, ocr).Process(context.Background(), nil, []byte("data"), domain.SourcePPTX, nil)
	if !errors.Is(err, errs.ErrUnsupportedFormat) {
		t.Fatalf("got %v, want ErrUnsupportedFormat", err)
	}
	if extractor.calls.Load() != 1 {
		t.Fatalf("unsupported format retried: %d attempts", extractor.calls.Load())
	}
	if ocr.calls.Load() != 0 {
		t.Fatal("OCR attempted for unsupported format")
	}
}

func TestProcessFailsWhenOCRFailsWithNoPrimaryText(t *testing.T) {
	extractor := &fakeExtractor{extract: func(domain.SourceKind) (string, int, error) {
		return "", 0, fmt.Errorf("%w", errs.ErrEmptyExtraction)
	}}
	ocr := &fakeOCR{err: errors.New("vision unreachable")}

	_, err := newTestPipeline(t, extractor, ocr).Process(context.Background(), nil, []byte("%PDF"), domain.SourcePDF, nil)
	if err == nil {
		t.Fatal("expected failure with no usable text")
	}
}

func TestProcessRetriesPrimaryExtractionOnce(t *testing.T) {
	text := cleanText(12)
	extractor := &fakeExtractor{}
	extractor.extract = func(domain.SourceKind) (string, int, error) {
		if extractor.calls.Load() == 1 {
			return "", 0, errors.New("transient mmap failure")
		}
		return text, 1, nil
	}

	doc, err := newTestPipeline(t, extractor, &fakeOCR{}).Process(context.Background(), nil, []byte("%PDF"), domain.SourcePDF, nil)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if extractor.calls.Load() != 2 {
		t.Fatalf("got %d extraction attempts, want 2", extractor.calls.Load())
	}
	if doc.Text != text {
		t.Fatalf("text %q", doc.Text)
	}
}

func TestProcessProgressIsMonotonic(t *testing.T) {
	extractor := &fakeExtractor{extract: func(domain.SourceKind) (string, int, error) {
		return "", 0, fmt.Errorf("%w", errs.ErrEmptyExtraction)
	}}
	ocr := &fakeOCR{text: cleanText(10), pages: 4}

	var last float64 = -1
	_, err := newTestPipeline(t, extractor, ocr).Process(context.Background(), nil, []byte("%PDF"), domain.SourcePDF, func(frac float64) {
		if frac < last {
			t.Fatalf("progress regressed: %v -> %v", last, frac)
		}
		if frac < 0 || frac > 1 {
			t.Fatalf("progress out of range: %v", frac)
		}
		last = frac
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
}
