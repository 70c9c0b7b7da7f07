package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/studymill/studymill-backend/internal/clients/gcp"
	"github.com/studymill/studymill-backend/internal/media"
	"github.com/studymill/studymill-backend/internal/pkg/ctxutil"
	"github.com/studymill/studymill-backend/internal/pkg/errs"
	"github.com/studymill/studymill-backend/internal/platform/envutil"
	"github.com/studymill/studymill-backend/internal/platform/logger"
)

// OCREngine recovers text from scanned or image-only documents by
// rasterizing pages and running each through the vision backend.
type OCREngine interface {
	ExtractPDF(ctx context.Context, ws *media.Workspace, data []byte, onProgress func(frac float64)) (text string, pages int, err error)
	ExtractImage(ctx context.Context, data []byte, mimeType string) (string, error)
}

type ocrEngine struct {
	log          *logger.Logger
	vision       gcp.Vision
	pdftoppmPath string
	maxPages     int
	dpi          int
	pageTimeout  time.Duration
}

func NewOCREngine(log *logger.Logger, vision gcp.Vision) (OCREngine, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if vision == nil {
		return nil, fmt.Errorf("vision client required")
	}
	return &ocrEngine{
		log:          log.With("service", "OCREngine"),
		vision:       vision,
		pdftoppmPath: "pdftoppm",
		maxPages:     envutil.Int("OCR_MAX_PAGES", 25),
		dpi:          envutil.Int("OCR_RASTER_DPI", 150),
		pageTimeout:  2 * time.Minute,
	}, nil
}

func (e *ocrEngine) ExtractImage(ctx context.Context, data []byte, mimeType string) (string, error) {
	res, err := e.vision.OCRImageBytes(ctxutil.Default(ctx), data, mimeType)
	if err != nil {
		return "", err
	}
	return res.PrimaryText, nil
}

// ExtractPDF rasterizes pages one at a time and OCRs each. Processing stops
// at the page cap, and a per-page failure ends the loop with whatever pages
// succeeded so far: a partial result beats none.
func (e *ocrEngine) ExtractPDF(ctx context.Context, ws *media.Workspace, data []byte, onProgress func(frac float64)) (string, int, error) {
	ctx = ctxutil.Default(ctx)

	totalPages := pdfPageCount(data)
	limit := e.maxPages
	if totalPages > 0 && totalPages < limit {
		limit = totalPages
	}

	ocrDir, err := ws.Mkdir("ocr")
	if err != nil {
		return "", 0, err
	}
	pdfPath, err := ws.WriteFile("ocr/source.pdf", data)
	if err != nil {
		return "", 0, err
	}

	var out strings.Builder
	pagesDone := 0

	for page := 1; page <= limit; page++ {
		if ctx.Err() != nil {
			return "", pagesDone, ctx.Err()
		}

		img, err := e.rasterizePage(ctx, pdfPath, ocrDir, page)
		if err != nil {
			// Rasterization failing is how we learn the document ended
			// earlier than the page count suggested.
			e.log.Warn("page rasterization stopped OCR loop", "page", page, "error", err)
			break
		}
		if len(img) == 0 {
			break
		}

		res, err := e.vision.OCRImageBytes(ctx, img, "image/png")
		if err != nil {
			e.log.Warn("page OCR failed; keeping partial result", "page", page, "error", err)
			break
		}

		text := strings.TrimSpace(res.PrimaryText)
		if text != "" {
			if out.Len() > 0 {
				out.WriteString("\n\n")
			}
			out.WriteString(fmt.Sprintf("--- Page %d ---\n", page))
			out.WriteString(text)
		}
		pagesDone = page

		if onProgress != nil {
			onProgress(float64(page) / float64(limit))
		}
	}

	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", pagesDone, fmt.Errorf("%w: OCR produced no text", errs.ErrEmptyExtraction)
	}
	if notice := capNotice(pagesDone, limit, totalPages); notice != "" {
		text += "\n\n" + notice
	}
	return text, pagesDone, nil
}

// capNotice reports when the page cap, not the document's end, stopped the
// loop. An unreadable page count still gets the notice: consuming the whole
// cap with the total unknown may have left pages behind, and that must never
// be silent.
func capNotice(pagesDone, limit, totalPages int) string {
	if pagesDone < limit {
		return ""
	}
	if totalPages > limit {
		return fmt.Sprintf("[OCR stopped after %d of %d pages]", limit, totalPages)
	}
	if totalPages == 0 {
		return fmt.Sprintf("[OCR stopped after %d pages]", limit)
	}
	return ""
}

func (e *ocrEngine) rasterizePage(ctx context.Context, pdfPath, outDir string, page int) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.pageTimeout)
	defer cancel()

	prefix := fmt.Sprintf("%s/page_%04d", outDir, page)
	args := []string{
		"-png",
		"-r", strconv.Itoa(e.dpi),
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-singlefile",
		pdfPath,
		prefix,
	}
	cmd := exec.CommandContext(ctx, e.pdftoppmPath, args...)
	combined, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm page %d: %v; out=%s", page, err, strings.TrimSpace(string(combined)))
	}

	img, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("read rasterized page %d: %w", page, err)
	}
	_ = os.Remove(prefix + ".png")
	return img, nil
}

func pdfPageCount(data []byte) int {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return r.NumPage()
}
