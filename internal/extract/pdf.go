package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/studymill/studymill-backend/internal/pkg/errs"
)

// extractPDFText reads the embedded text layer page by page. A scanned or
// image-only PDF yields ErrEmptyExtraction, which is the signal for the OCR
// fallback rather than a hard failure.
func extractPDFText(data []byte) (string, int, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}

	total := r.NumPage()
	var out strings.Builder

	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not discard the rest.
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if out.Len() > 0 {
			out.WriteString("\n\n")
		}
		out.WriteString(text)
	}

	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", total, fmt.Errorf("%w: pdf has no extractable text layer", errs.ErrEmptyExtraction)
	}
	return text, total, nil
}
