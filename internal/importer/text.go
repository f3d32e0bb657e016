package importer

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLToText reduces markup to its visible text with whitespace collapsed.
// Input without tags is only trimmed.
func HTMLToText(s string) string {
	s = strings.TrimSpace(s)
	if !strings.ContainsRune(s, '<') || !strings.ContainsRune(s, '>') {
		return s
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li").AppendHtml("\n")
	return strings.Join(strings.Fields(doc.Text()), " ")
}
