package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/studymill/studymill-backend/internal/pkg/errs"
)

var (
	slideNameRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	notesNameRe = regexp.MustCompile(`^ppt/notesSlides/notesSlide(\d+)\.xml$`)
)

// extractPPTXText renders each slide as a labeled section so downstream
// structuring can keep slide boundaries, with speaker notes appended when
// present.
func extractPPTXText(data []byte) (string, int, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("open pptx archive: %w", err)
	}

	slides := map[int]string{}
	notes := map[int]string{}

	for _, f := range zr.File {
		if m := slideNameRe.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			text, err := drawingTextFromZipFile(f)
			if err != nil {
				continue
			}
			slides[n] = text
		} else if m := notesNameRe.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			text, err := drawingTextFromZipFile(f)
			if err != nil {
				continue
			}
			notes[n] = text
		}
	}

	if len(slides) == 0 {
		return "", 0, fmt.Errorf("%w: pptx contains no slides", errs.ErrEmptyExtraction)
	}

	nums := make([]int, 0, len(slides))
	for n := range slides {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	var out strings.Builder
	for _, n := range nums {
		body := strings.TrimSpace(slides[n])
		note := strings.TrimSpace(notes[n])
		if body == "" && note == "" {
			continue
		}
		if out.Len() > 0 {
			out.WriteString("\n\n")
		}
		out.WriteString(fmt.Sprintf("## Slide %d\n", n))
		if body != "" {
			out.WriteString(body)
		}
		if note != "" {
			if body != "" {
				out.WriteString("\n")
			}
			out.WriteString("Notes: ")
			out.WriteString(note)
		}
	}

	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", len(slides), fmt.Errorf("%w: pptx slides contain no text", errs.ErrEmptyExtraction)
	}
	return text, len(slides), nil
}

// drawingTextFromZipFile collects the text runs (<a:t> elements) of one
// DrawingML part, one line per paragraph.
func drawingTextFromZipFile(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return drawingText(rc)
}

func drawingText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)

	var out strings.Builder
	var line strings.Builder
	inText := false

	flushLine := func() {
		txt := strings.TrimSpace(line.String())
		line.Reset()
		if txt == "" {
			return
		}
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		out.WriteString(txt)
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse slide xml: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case "p":
				flushLine()
			}
		case xml.CharData:
			if inText {
				line.WriteString(string(el))
			}
		}
	}
	flushLine()
	return out.String(), nil
}
