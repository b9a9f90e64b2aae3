package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/RadhiFadlillah/whatlanggo"
)

const (
	bodySampleWindow  = 1023
	bodySampleOffset  = 512
	bodySampleDivisor = 3
)

// detectLanguage follows the spec's two-path rule: a lang attribute
// anywhere on the page wins outright; otherwise a window of visible
// body text is classified by guesser.
func detectLanguage(doc *goquery.Document, guesser LanguageGuesser) (string, bool) {
	if lang, ok := langFromAttribute(doc); ok {
		return lang, true
	}

	text := strings.TrimSpace(doc.Find("body").Text())
	if text == "" {
		return "", false
	}

	start := 0
	if third := len(text) / bodySampleDivisor; third > bodySampleOffset {
		start = third - bodySampleOffset
	}
	end := start + bodySampleWindow
	if end > len(text) {
		end = len(text)
	}

	return guesser.Guess(text[start:end])
}

func langFromAttribute(doc *goquery.Document) (string, bool) {
	var value string
	var found bool

	doc.Find("[lang]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v, exists := s.Attr("lang")
		if exists && v != "" {
			value = v
			found = true
			return false
		}
		return true
	})

	if !found {
		return "", false
	}
	prefix, _, _ := strings.Cut(value, "-")
	return strings.ToLower(prefix), true
}

// WhatlangGuesser classifies text with whatlanggo, a pure-Go language
// identifier that needs no external model file. ModelPath is unused
// here; it exists so a model-file-backed LanguageGuesser could be
// swapped in later without any caller change.
type WhatlangGuesser struct {
	ModelPath string
}

// Guess implements LanguageGuesser.
func (g WhatlangGuesser) Guess(sample string) (string, bool) {
	info := whatlanggo.Detect(sample)
	code := info.Lang.Iso6391()
	if code == "" {
		return "", false
	}
	return code, true
}
