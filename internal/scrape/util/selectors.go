package util

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FirstText returns the cleaned text of the first selector that yields something.
func FirstText(root *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if t := CleanText(root.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// FirstAttr returns the first non-empty attr value across selectors, falling
// back to the element text when a match has no such attribute.
func FirstAttr(root *goquery.Selection, selectors []string, attr string) string {
	for _, sel := range selectors {
		n := root.Find(sel).First()
		if n.Length() == 0 {
			continue
		}
		if v, ok := n.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return CleanText(v)
		}
		if t := CleanText(n.Text()); t != "" {
			return t
		}
	}
	return ""
}
