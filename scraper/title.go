package scraper

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

var (
	selOGTitle = cascadia.MustCompile(`meta[property="og:title"]`)
	selTitle   = cascadia.MustCompile("head > title, title")
)

// pageTitle returns the og:title of an HTML page, falling back to <title>.
// Unparseable input yields "".
func pageTitle(body string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return ""
	}
	if v, ok := doc.FindMatcher(selOGTitle).First().Attr("content"); ok {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return strings.TrimSpace(doc.FindMatcher(selTitle).First().Text())
}
