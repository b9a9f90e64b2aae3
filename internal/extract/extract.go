// Package extract turns a fetched HTML response into a cleaned
// document, a language verdict, and the set of links worth following,
// applying a fixed sanitizer ruleset and a bilingual (en/de) acceptance
// test along the way.
package extract

import (
	"bytes"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/0xhtml/crawler/internal/urlkey"
)

// SkipReason names why a fetched page was not indexed. Every branch
// that drops a page surfaces one of these so the caller can log it.
type SkipReason string

const (
	SkipNonHTML        SkipReason = "non_html_content_type"
	SkipLanguageHeader SkipReason = "content_language_header_mismatch"
	SkipRobotsTag      SkipReason = "x_robots_tag_nofollow"
	SkipParseFailure   SkipReason = "html_parse_failure"
	SkipLanguageBody   SkipReason = "language_mismatch"
)

// Result is what a successfully accepted page contributes to the crawl:
// the cleaned HTML to store and the links discovered on the page.
type Result struct {
	Lang      string
	CleanHTML string
	Links     map[string]urlkey.URL
}

// LanguageGuesser classifies a short text sample into an ISO 639-1
// language code. ModelPath exists on concrete implementations (not on
// this interface) only for API parity with a fastText-backed guesser
// that could replace the default one without touching callers.
type LanguageGuesser interface {
	Guess(sample string) (lang string, ok bool)
}

var newlineRuns = regexp.MustCompile(`\n{2,}`)

// HeaderGuard applies the header-level accept/reject rules that must
// run before any DOM parsing happens. It returns ("", true) when the
// response should proceed to body parsing.
func HeaderGuard(header http.Header) (SkipReason, bool) {
	contentType := header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "text/html") {
		return SkipNonHTML, false
	}

	if cl := header.Get("Content-Language"); cl != "" {
		if !containsLanguageWord(cl, "en") && !containsLanguageWord(cl, "de") {
			return SkipLanguageHeader, false
		}
	}

	if strings.Contains(strings.ToLower(header.Get("X-Robots-Tag")), "nofollow") {
		return SkipRobotsTag, false
	}

	return "", true
}

var wordBoundaryCache = map[string]*regexp.Regexp{
	"en": regexp.MustCompile(`(?i)\ben\b`),
	"de": regexp.MustCompile(`(?i)\bde\b`),
}

func containsLanguageWord(header, want string) bool {
	re, ok := wordBoundaryCache[want]
	if !ok {
		return false
	}
	return re.MatchString(header)
}

// Extract parses body, sanitizes the DOM, guesses the language, and
// harvests links. pageURL is used to resolve relative hrefs.
func Extract(pageURL urlkey.URL, body []byte, guesser LanguageGuesser) (*Result, SkipReason, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil || doc == nil || doc.Find("html").Length() == 0 {
		return nil, SkipParseFailure, false
	}

	sanitize(doc)

	lang, ok := detectLanguage(doc, guesser)
	if !ok || (lang != "en" && lang != "de") {
		return nil, SkipLanguageBody, false
	}

	links := harvestLinks(doc, pageURL)

	rendered, err := doc.Html()
	if err != nil {
		return nil, SkipParseFailure, false
	}
	clean := newlineRuns.ReplaceAllString(rendered, "\n")

	return &Result{Lang: lang, CleanHTML: clean, Links: links}, "", true
}
