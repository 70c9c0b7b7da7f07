package errs

import "errors"

// Sentinels for the pipeline's failure taxonomy. Stage code wraps these with
// fmt.Errorf("...: %w", ...) so callers can classify with errors.Is.
var (
	// User-facing input problems. Never retried.
	ErrNoAudioTrack      = errors.New("media file has no audio track")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrPayloadTooLarge   = errors.New("audio payload exceeds provider size limit")
	ErrDocumentTooLarge  = errors.New("document exceeds size limit")
	ErrInvalidInput      = errors.New("provider rejected the request input")

	// Local tooling failures.
	ErrTranscodeFailed = errors.New("audio transcode failed")
	ErrWorkspace       = errors.New("workspace error")

	// Provider failures.
	ErrAuth             = errors.New("provider authentication failed")
	ErrEmptyExtraction  = errors.New("extraction produced no text")
	ErrEmptyLLMResponse = errors.New("model returned empty response")
)

// NonRetryable is the allowlist of error signatures that must fail fast
// instead of entering the backoff loop.
func NonRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrAuth),
		errors.Is(err, ErrNoAudioTrack),
		errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrPayloadTooLarge),
		errors.Is(err, ErrDocumentTooLarge),
		errors.Is(err, ErrInvalidInput):
		return true
	default:
		return false
	}
}
