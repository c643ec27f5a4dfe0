package cleaner

import (
	"bytes"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/use-agent/listcrawl/models"
)

// ApplySelector parses rawHTML, matches elements against selector and
// returns the concatenated outer HTML of every match in document order.
//
// selector may be a comma-separated group ("a.title, span.price"). An
// empty selector returns rawHTML unchanged. When nothing matches the
// result is "", so callers see an empty region rather than the whole page.
func ApplySelector(rawHTML, selector string) (string, int, error) {
	if strings.TrimSpace(selector) == "" {
		return rawHTML, 0, nil
	}

	sel, err := cascadia.ParseGroup(selector)
	if err != nil {
		return "", 0, models.NewCrawlError(models.ErrCodeSelector, "invalid css selector", err)
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", 0, err
	}

	matches := cascadia.QueryAll(doc, sel)
	if len(matches) == 0 {
		return "", 0, nil
	}

	var buf bytes.Buffer
	for _, node := range matches {
		if err := html.Render(&buf, node); err != nil {
			return "", 0, err
		}
		buf.WriteByte('\n')
	}

	return buf.String(), len(matches), nil
}

// ValidateSelector reports whether selector parses.
func ValidateSelector(selector string) error {
	if strings.TrimSpace(selector) == "" {
		return nil
	}
	if _, err := cascadia.ParseGroup(selector); err != nil {
		return models.NewCrawlError(models.ErrCodeSelector, "invalid css selector", err)
	}
	return nil
}
