package extract

import (
	"net/http"
	"strings"
	"testing"

	"github.com/0xhtml/crawler/internal/urlkey"
)

// fixedGuesser always reports lang for any sample, so tests that only
// care about DOM/link behavior don't depend on whatlanggo's heuristics.
type fixedGuesser struct {
	lang string
	ok   bool
}

func (g fixedGuesser) Guess(string) (string, bool) { return g.lang, g.ok }

func TestHeaderGuardRejectsNonHTML(t *testing.T) {
	h := http.Header{"Content-Type": []string{"application/json"}}
	reason, ok := HeaderGuard(h)
	if ok || reason != SkipNonHTML {
		t.Errorf("HeaderGuard = %v, %v; want SkipNonHTML, false", reason, ok)
	}
}

func TestHeaderGuardAcceptsAbsentContentLanguage(t *testing.T) {
	h := http.Header{"Content-Type": []string{"text/html; charset=utf-8"}}
	_, ok := HeaderGuard(h)
	if !ok {
		t.Error("HeaderGuard ok = false, want true when Content-Language absent")
	}
}

func TestHeaderGuardRejectsOtherContentLanguage(t *testing.T) {
	h := http.Header{
		"Content-Type":     []string{"text/html"},
		"Content-Language": []string{"fr"},
	}
	reason, ok := HeaderGuard(h)
	if ok || reason != SkipLanguageHeader {
		t.Errorf("HeaderGuard = %v, %v; want SkipLanguageHeader, false", reason, ok)
	}
}

func TestHeaderGuardRejectsNofollowRobotsTag(t *testing.T) {
	h := http.Header{
		"Content-Type": []string{"text/html"},
		"X-Robots-Tag": []string{"noindex, nofollow"},
	}
	reason, ok := HeaderGuard(h)
	if ok || reason != SkipRobotsTag {
		t.Errorf("HeaderGuard = %v, %v; want SkipRobotsTag, false", reason, ok)
	}
}

func TestExtractUsesLangAttributeFastPath(t *testing.T) {
	body := []byte(`<html lang="de-DE"><body><p>hallo</p></body></html>`)
	page, err := urlkey.Parse("https://example.com/")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	result, reason, ok := Extract(page, body, fixedGuesser{lang: "fr", ok: true})
	if !ok {
		t.Fatalf("Extract rejected: %v", reason)
	}
	if result.Lang != "de" {
		t.Errorf("Lang = %q, want de (from lang attribute, not guesser)", result.Lang)
	}
}

func TestExtractRejectsNonAcceptedLanguage(t *testing.T) {
	body := []byte(`<html><body><p>bonjour le monde</p></body></html>`)
	page, err := urlkey.Parse("https://example.com/")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	_, reason, ok := Extract(page, body, fixedGuesser{lang: "fr", ok: true})
	if ok || reason != SkipLanguageBody {
		t.Errorf("Extract = %v, %v; want SkipLanguageBody, false", reason, ok)
	}
}

func TestExtractSanitizesAndHarvestsLinks(t *testing.T) {
	body := []byte(`<html lang="en"><body>
		<div class="wrap" onclick="evil()">
			<span>hello</span>
			<style>body{color:red}</style>
			<noscript>fallback</noscript>
			<a href="/next" rel="nofollow">skip me</a>
			<a href="page2.html">follow me</a>
		</div>
	</body></html>`)
	page, err := urlkey.Parse("https://example.com/dir/")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	result, reason, ok := Extract(page, body, fixedGuesser{})
	if !ok {
		t.Fatalf("Extract rejected: %v", reason)
	}

	if strings.Contains(result.CleanHTML, "<div") || strings.Contains(result.CleanHTML, "<span") {
		t.Errorf("CleanHTML still has div/span wrappers: %s", result.CleanHTML)
	}
	if strings.Contains(result.CleanHTML, "<style") {
		t.Errorf("CleanHTML still has <style>: %s", result.CleanHTML)
	}
	if strings.Contains(result.CleanHTML, "noscript") {
		t.Errorf("CleanHTML still has <noscript>: %s", result.CleanHTML)
	}
	if strings.Contains(result.CleanHTML, "onclick") {
		t.Errorf("CleanHTML still has non-allow-listed attribute: %s", result.CleanHTML)
	}

	if _, ok := result.Links["https://example.com/next"]; ok {
		t.Error("nofollow link was harvested")
	}
	if _, ok := result.Links["https://example.com/dir/page2.html"]; !ok {
		t.Errorf("expected relative link to be resolved and harvested, got %v", result.Links)
	}
}
