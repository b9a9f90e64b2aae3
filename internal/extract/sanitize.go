package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// allowedAttrs is the fixed attribute allow-list; everything else is
// stripped from every surviving element.
var allowedAttrs = map[string]bool{
	"alt": true, "charset": true, "content": true, "href": true,
	"id": true, "lang": true, "media": true, "name": true,
	"property": true, "rel": true, "src": true, "target": true,
	"title": true, "type": true,
}

// sanitize removes <style>, <script> and <noscript> (with their
// subtrees), unwraps <div> and <span> in place keeping their children,
// and strips every attribute outside the allow-list. It runs before
// language detection so script and style text never enters the
// classifier sample.
func sanitize(doc *goquery.Document) {
	doc.Find("style").Remove()
	doc.Find("script").Remove()
	doc.Find("noscript").Remove()

	doc.Find("div, span").Each(func(_ int, s *goquery.Selection) {
		s.ReplaceWithSelection(s.Contents())
	})

	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		if node == nil {
			return
		}
		kept := node.Attr[:0]
		for _, a := range node.Attr {
			if allowedAttrs[strings.ToLower(a.Key)] {
				kept = append(kept, a)
			}
		}
		node.Attr = kept
	})
}
