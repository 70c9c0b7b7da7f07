package domain

// AudioChunk is one bounded-duration slice of normalized audio. Chunks cover
// [0, totalDuration) contiguously; Index defines reassembly order.
type AudioChunk struct {
	Index     int     `json:"index"`
	StartSec  float64 `json:"start_sec"`
	EndSec    float64 `json:"end_sec"`
	FilePath  string  `json:"file_path"`
	SizeBytes int64   `json:"size_bytes"`
}

func (c AudioChunk) DurationSec() float64 { return c.EndSec - c.StartSec }

// TranscriptSegment is a time-aligned span of recognized speech. Offsets are
// relative to the whole source after chunk re-offsetting.
type TranscriptSegment struct {
	Text     string  `json:"text"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
}

type TranscriptionResult struct {
	Text        string              `json:"text"`
	Segments    []TranscriptSegment `json:"segments,omitempty"`
	DurationSec float64             `json:"duration_sec"`
	Provider    string              `json:"provider"`
	Model       string              `json:"model"`
}

type RecommendedAction string

const (
	ActionProcess      RecommendedAction = "process"
	ActionOCR          RecommendedAction = "ocr"
	ActionManualReview RecommendedAction = "manual_review"
)

// Quality scores extracted text. All scores are in [0,1].
type Quality struct {
	TextConfidence    float64           `json:"text_confidence"`
	StructureScore    float64           `json:"structure_score"`
	Completeness      float64           `json:"completeness"`
	RecommendedAction RecommendedAction `json:"recommended_action"`
}

// ExtractedDocument is the output of the document path.
type ExtractedDocument struct {
	Text      string  `json:"text"`
	Quality   Quality `json:"quality"`
	UsedOCR   bool    `json:"used_ocr"`
	HasImages bool    `json:"has_images"`
	HasTables bool    `json:"has_tables"`
	PageCount int     `json:"page_count,omitempty"`
}
