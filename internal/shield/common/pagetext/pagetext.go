// Package pagetext extracts visible text from an HTML document so keyword
// scanning sees roughly what a rendered page's text content would contain.
package pagetext

import (
	"strings"

	"golang.org/x/net/html"
)

// elements whose text never renders and must not trigger keyword matches.
var skippedElements = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"template": {},
}

// Extract returns the visible text of an HTML fragment, with runs of
// whitespace collapsed to single spaces. Malformed markup still yields
// whatever text the tokenizer produced before stopping, matching how
// browsers treat broken pages.
func Extract(htmlSrc string) string {
	z := html.NewTokenizer(strings.NewReader(htmlSrc))
	var b strings.Builder
	var skipDepth int

	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if _, skip := skippedElements[string(name)]; skip {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if _, skip := skippedElements[string(name)]; skip && skipDepth > 0 {
				skipDepth--
			}
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}
