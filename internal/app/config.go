package app

import (
	"github.com/studymill/studymill-backend/internal/platform/envutil"
	"github.com/studymill/studymill-backend/internal/platform/logger"
)

// Config is the explicit runtime configuration snapshot, read once at boot.
type Config struct {
	HTTPAddr string

	ChunkMinutes        int
	TranscribeProvider  string
	TranscribeModel     string
	TranscribeWorkers   int
	MaxUploadAudioBytes int64

	LLMMaxInputChars int
	OCRMaxPages      int

	MaxMediaBytes    int64
	MaxDocumentBytes int64
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		HTTPAddr: envutil.Str("HTTP_ADDR", ":8080"),

		ChunkMinutes:        envutil.Int("AUDIO_CHUNK_MINUTES", 5),
		TranscribeProvider:  envutil.Str("TRANSCRIBE_PROVIDER", "openai"),
		TranscribeModel:     envutil.Str("OPENAI_TRANSCRIBE_MODEL", "whisper-1"),
		TranscribeWorkers:   envutil.Int("TRANSCRIBE_CONCURRENCY", 3),
		MaxUploadAudioBytes: envutil.Int64("TRANSCRIBE_MAX_UPLOAD_BYTES", 25*1024*1024),

		LLMMaxInputChars: envutil.Int("LLM_MAX_INPUT_CHARS", 30000),
		OCRMaxPages:      envutil.Int("OCR_MAX_PAGES", 25),

		MaxMediaBytes:    envutil.Int64("MEDIA_MAX_BYTES", 500*1024*1024),
		MaxDocumentBytes: envutil.Int64("DOCUMENT_MAX_BYTES", 50*1024*1024),
	}

	log.Info("configuration loaded",
		"http_addr", cfg.HTTPAddr,
		"chunk_minutes", cfg.ChunkMinutes,
		"transcribe_provider", cfg.TranscribeProvider,
		"transcribe_model", cfg.TranscribeModel,
		"transcribe_workers", cfg.TranscribeWorkers,
		"llm_max_input_chars", cfg.LLMMaxInputChars,
		"ocr_max_pages", cfg.OCRMaxPages,
	)
	return cfg
}
