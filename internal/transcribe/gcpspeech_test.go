package transcribe

import "testing"

func TestSpeechLanguageCode(t *testing.T) {
	cases := []struct {
		hint     string
		fallback string
		want     string
	}{
		{"", "en-US", "en-US"},
		{"de", "en-US", "de-DE"},
		{"ES", "en-US", "es-ES"},
		{"zh", "en-US", "cmn-Hans-CN"},
		{"pt-PT", "en-US", "pt-PT"},
		{"xx", "en-US", "en-US"},
		{"  fr  ", "en-US", "fr-FR"},
	}
	for _, tc := range cases {
		if got := speechLanguageCode(tc.hint, tc.fallback); got != tc.want {
			t.Fatalf("speechLanguageCode(%q, %q) = %q, want %q", tc.hint, tc.fallback, got, tc.want)
		}
	}
}
