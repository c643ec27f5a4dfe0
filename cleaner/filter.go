package cleaner

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultExcludeTags are removed before any selector or marker check.
var DefaultExcludeTags = []string{"script", "style", "noscript", "template", "svg"}

// StripNoise removes every element matching one of excludeTags and returns
// the remaining document HTML. On a parse failure the input is returned.
func StripNoise(rawHTML string, excludeTags []string) string {
	if len(excludeTags) == 0 {
		return rawHTML
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}
	doc.Find(strings.Join(excludeTags, ", ")).Remove()

	out, err := doc.Html()
	if err != nil {
		return rawHTML
	}
	return out
}

// VisibleText returns the whitespace-collapsed text of rawHTML with
// scripts and styles removed.
func VisibleText(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	doc.Find(strings.Join(DefaultExcludeTags, ", ")).Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// ContainsMarker reports whether the visible text of rawHTML contains
// marker. Whitespace runs in both are collapsed before comparing, so a
// marker split across lines or tags still matches.
func ContainsMarker(rawHTML, marker string) bool {
	marker = strings.Join(strings.Fields(marker), " ")
	if marker == "" {
		return false
	}
	return strings.Contains(VisibleText(rawHTML), marker)
}

// PageTitle returns the trimmed <title> text, or "".
func PageTitle(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// stripTags extracts visible text from an HTML fragment. Returns trimmed
// plain text.
func stripTags(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.TrimSpace(doc.Text())
}
