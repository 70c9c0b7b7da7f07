package extract

import (
	"context"
	"fmt"

	"github.com/studymill/studymill-backend/internal/domain"
	"github.com/studymill/studymill-backend/internal/pkg/errs"
	"github.com/studymill/studymill-backend/internal/platform/logger"
)

// DocumentExtractor pulls raw text out of a structured document using a
// format-specific parser.
type DocumentExtractor interface {
	Extract(ctx context.Context, data []byte, kind domain.SourceKind) (text string, pageCount int, err error)
}

type documentExtractor struct {
	log *logger.Logger
}

func NewDocumentExtractor(log *logger.Logger) (DocumentExtractor, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &documentExtractor{log: log.With("service", "DocumentExtractor")}, nil
}

func (e *documentExtractor) Extract(ctx context.Context, data []byte, kind domain.SourceKind) (string, int, error) {
	if len(data) == 0 {
		return "", 0, fmt.Errorf("%w: empty document", errs.ErrEmptyExtraction)
	}

	switch kind {
	case domain.SourcePDF:
		return extractPDFText(data)
	case domain.SourcePPTX:
		// Legacy binary .ppt shares the MIME prefix but not the zip container.
		if !isZipArchive(data) {
			return "", 0, fmt.Errorf("%w: legacy .ppt files are not supported; re-save as .pptx", errs.ErrUnsupportedFormat)
		}
		text, slides, err := extractPPTXText(data)
		return text, slides, err
	case domain.SourceDOCX:
		if !isZipArchive(data) {
			return "", 0, fmt.Errorf("%w: legacy .doc files are not supported; re-save as .docx", errs.ErrUnsupportedFormat)
		}
		text, err := extractDOCXText(data)
		return text, 0, err
	default:
		return "", 0, fmt.Errorf("%w: no document parser for kind %q", errs.ErrUnsupportedFormat, kind)
	}
}

func isZipArchive(data []byte) bool {
	return len(data) >= 4 && data[0] == 'P' && data[1] == 'K' && data[2] == 0x03 && data[3] == 0x04
}
