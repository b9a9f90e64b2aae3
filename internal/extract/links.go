package extract

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/0xhtml/crawler/internal/urlkey"
)

// Harvest re-derives outbound links from a document already stored by a
// prior Extract call, so a cold start can rebuild the frontier from
// store.IterAll without re-fetching every page.
func Harvest(pageURL urlkey.URL, storedHTML string) map[string]urlkey.URL {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(storedHTML)))
	if err != nil {
		return nil
	}
	return harvestLinks(doc, pageURL)
}

// harvestLinks resolves every <a href> on the page against pageURL,
// dropping anchors marked rel="nofollow" and anything that fails to
// resolve to an http(s) URL. Invalid joins are silently dropped, per
// spec — a page with a stray "javascript:" or malformed href must not
// abort the whole harvest.
func harvestLinks(doc *goquery.Document, pageURL urlkey.URL) map[string]urlkey.URL {
	links := make(map[string]urlkey.URL)

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if rel, ok := s.Attr("rel"); ok && strings.TrimSpace(rel) == "nofollow" {
			return
		}
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		resolved, err := pageURL.Join(href)
		if err != nil {
			return
		}
		canonical := resolved.Normalize()
		links[canonical.String()] = canonical
	})

	return links
}
