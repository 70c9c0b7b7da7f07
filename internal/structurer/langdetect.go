package structurer

import (
	"strings"
	"unicode"
)

// DetectLanguage is a cheap heuristic: script ranges decide non-Latin
// languages outright, and stop-word frequency separates the common
// Latin-script ones. It only needs to be good enough to bias the
// structuring prompt, not to be a real classifier.
func DetectLanguage(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	var cyrillic, cjk, arabic, hangul, greek, hebrew, latin int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r):
			cjk++
		case unicode.Is(unicode.Arabic, r):
			arabic++
		case unicode.Is(unicode.Hangul, r):
			hangul++
		case unicode.Is(unicode.Greek, r):
			greek++
		case unicode.Is(unicode.Hebrew, r):
			hebrew++
		case unicode.IsLetter(r) && r < 0x250:
			latin++
		}
	}

	letters := cyrillic + cjk + arabic + hangul + greek + hebrew + latin
	if letters == 0 {
		return ""
	}
	dominant := func(n int) bool { return float64(n)/float64(letters) > 0.3 }
	switch {
	case dominant(cyrillic):
		return "ru"
	case dominant(hangul):
		return "ko"
	case dominant(cjk):
		// Kana presence separates Japanese from Chinese.
		if containsKana(text) {
			return "ja"
		}
		return "zh"
	case dominant(arabic):
		return "ar"
	case dominant(greek):
		return "el"
	case dominant(hebrew):
		return "he"
	}

	return latinLanguageByStopWords(text)
}

func containsKana(text string) bool {
	for _, r := range text {
		if unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) {
			return true
		}
	}
	return false
}

var latinStopWords = map[string][]string{
	"en": {"the", "and", "of", "to", "is", "in", "that", "for", "with", "are"},
	"es": {"el", "la", "de", "que", "los", "las", "una", "por", "para", "con"},
	"fr": {"le", "la", "les", "des", "est", "une", "dans", "que", "pour", "avec"},
	"de": {"der", "die", "das", "und", "ist", "von", "mit", "für", "den", "nicht"},
	"pt": {"de", "que", "não", "uma", "para", "com", "dos", "mais", "como", "isso"},
	"it": {"di", "che", "la", "il", "per", "una", "sono", "con", "del", "questo"},
	"pl": {"nie", "się", "jest", "na", "do", "że", "jak", "ale", "tak", "przez"},
}

func latinLanguageByStopWords(text string) string {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return ""
	}
	limit := len(words)
	if limit > 2000 {
		limit = 2000
	}

	counts := map[string]int{}
	for _, w := range words[:limit] {
		w = strings.Trim(w, ".,;:!?()[]{}\"'«»¿¡")
		for lang, stops := range latinStopWords {
			for _, s := range stops {
				if w == s {
					counts[lang]++
				}
			}
		}
	}

	best := ""
	bestN := 0
	for lang, n := range counts {
		if n > bestN || (n == bestN && lang < best) {
			best = lang
			bestN = n
		}
	}
	// Too few hits means we are guessing; default to English rather than
	// asserting a wrong language to the model.
	if bestN*50 < limit {
		return "en"
	}
	return best
}
