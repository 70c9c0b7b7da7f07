package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/studymill/studymill-backend/internal/domain"
	"github.com/studymill/studymill-backend/internal/media"
	"github.com/studymill/studymill-backend/internal/pkg/ctxutil"
	"github.com/studymill/studymill-backend/internal/pkg/errs"
	"github.com/studymill/studymill-backend/internal/platform/envutil"
	"github.com/studymill/studymill-backend/internal/platform/logger"
	"github.com/studymill/studymill-backend/internal/retry"
)

type DocumentPipelineConfig struct {
	MaxDocumentBytes int64
	// ExtractRetry bounds the primary-extraction retry. One retry covers
	// transient local resource contention; anything persistent defers to OCR.
	ExtractRetry retry.Policy
}

func DefaultDocumentPipelineConfig() DocumentPipelineConfig {
	return DocumentPipelineConfig{
		MaxDocumentBytes: envutil.Int64("DOCUMENT_MAX_BYTES", 50*1024*1024),
		ExtractRetry: retry.Policy{
			MaxRetries:   1,
			BaseDelay:    250 * time.Millisecond,
			MaxDelay:     time.Second,
			NonRetryable: errs.NonRetryable,
		},
	}
}

// DocumentPipeline runs extraction, quality assessment, and the OCR fallback,
// and produces one normalized text blob plus quality metadata.
type DocumentPipeline struct {
	log       *logger.Logger
	extractor DocumentExtractor
	ocr       OCREngine
	assessor  *QualityAssessor
	cfg       DocumentPipelineConfig
}

func NewDocumentPipeline(log *logger.Logger, extractor DocumentExtractor, ocr OCREngine, assessor *QualityAssessor, cfg DocumentPipelineConfig) (*DocumentPipeline, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("document extractor required")
	}
	if assessor == nil {
		return nil, fmt.Errorf("quality assessor required")
	}
	if cfg.MaxDocumentBytes <= 0 {
		cfg = DefaultDocumentPipelineConfig()
	}
	return &DocumentPipeline{
		log:       log.With("service", "DocumentPipeline"),
		extractor: extractor,
		ocr:       ocr,
		assessor:  assessor,
		cfg:       cfg,
	}, nil
}

// Process extracts text for one document job. onProgress receives monotonic
// fractions in [0,1] local to this stage.
func (p *DocumentPipeline) Process(ctx context.Context, ws *media.Workspace, data []byte, kind domain.SourceKind, onProgress func(frac float64)) (*domain.ExtractedDocument, error) {
	ctx = ctxutil.Default(ctx)

	if int64(len(data)) > p.cfg.MaxDocumentBytes {
		return nil, fmt.Errorf("%w: document is %d bytes (limit %d)",
			errs.ErrDocumentTooLarge, len(data), p.cfg.MaxDocumentBytes)
	}

	report := func(frac float64) {
		if onProgress != nil {
			onProgress(frac)
		}
	}
	report(0.05)

	primaryText, pageCount, primaryErr := p.extractPrimary(ctx, data, kind)
	if primaryErr != nil {
		// Unsupported formats have no fallback; everything else defers to OCR.
		if errors.Is(primaryErr, errs.ErrUnsupportedFormat) {
			return nil, primaryErr
		}
		p.log.Warn("primary extraction failed; deferring to OCR", "kind", kind, "error", primaryErr)
		primaryText = ""
	}
	report(0.3)

	primaryQuality := p.assessor.Assess(primaryText)

	text := primaryText
	quality := primaryQuality
	usedOCR := false

	needsOCR := primaryText == "" || primaryQuality.RecommendedAction != domain.ActionProcess
	if needsOCR && kind == domain.SourcePDF && p.ocr != nil {
		ocrText, ocrPages, ocrErr := p.ocr.ExtractPDF(ctx, ws, data, func(frac float64) {
			// OCR covers the 0.3-0.9 band of this stage.
			report(0.3 + 0.6*frac)
		})
		if ocrErr != nil {
			if primaryText == "" {
				return nil, fmt.Errorf("ocr fallback failed with no primary text: %w", ocrErr)
			}
			p.log.Warn("ocr fallback failed; keeping primary extraction", "error", ocrErr)
		} else {
			ocrQuality := p.assessor.Assess(ocrText)
			if selectOCR(primaryText, primaryQuality, ocrText, ocrQuality) {
				text = ocrText
				quality = ocrQuality
				usedOCR = true
				if ocrPages > pageCount {
					pageCount = ocrPages
				}
			}
		}
	} else if needsOCR && primaryText == "" {
		if primaryErr != nil {
			return nil, primaryErr
		}
		return nil, fmt.Errorf("%w: no text extracted from %s", errs.ErrEmptyExtraction, kind)
	}

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: no text extracted from %s", errs.ErrEmptyExtraction, kind)
	}
	report(1.0)

	return &domain.ExtractedDocument{
		Text:      text,
		Quality:   quality,
		UsedOCR:   usedOCR,
		HasImages: usedOCR,
		HasTables: HasTables(text),
		PageCount: pageCount,
	}, nil
}

// extractPrimary attempts standard extraction with one bounded retry.
func (p *DocumentPipeline) extractPrimary(ctx context.Context, data []byte, kind domain.SourceKind) (string, int, error) {
	var text string
	var pages int
	err := p.cfg.ExtractRetry.Do(ctx, func() error {
		var eerr error
		text, pages, eerr = p.extractor.Extract(ctx, data, kind)
		return eerr
	})
	return text, pages, err
}

// selectOCR keeps the OCR output only when it is strictly better than the
// primary extraction: more text and at least as confident, or more confident
// outright.
func selectOCR(primaryText string, primaryQ domain.Quality, ocrText string, ocrQ domain.Quality) bool {
	if strings.TrimSpace(ocrText) == "" {
		return false
	}
	if strings.TrimSpace(primaryText) == "" {
		return true
	}
	if ocrQ.TextConfidence > primaryQ.TextConfidence && len(ocrText) >= len(primaryText) {
		return true
	}
	if ocrQ.TextConfidence >= primaryQ.TextConfidence && len(ocrText) > len(primaryText) {
		return true
	}
	return false
}
