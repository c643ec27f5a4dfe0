package cleaner

import (
	"log/slog"
	nurl "net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

// minContentLength is the minimum text length (in characters) for
// readability output to be used. Below it the input is kept as-is.
const minContentLength = 50

// readable runs the Readability algorithm over fragment and returns the
// cleaned HTML and the detected title.
//
// Product grids are often scored as boilerplate, so any failure or a too
// short result keeps the original fragment.
func readable(fragment, sourceURL string) (content, title string) {
	parsedURL, err := nurl.Parse(sourceURL)
	if err != nil {
		slog.Warn("readability: invalid source url, keeping region",
			"url", sourceURL, "error", err,
		)
		return fragment, ""
	}

	article, err := readability.FromReader(strings.NewReader(fragment), parsedURL)
	if err != nil {
		slog.Warn("readability: extraction failed, keeping region",
			"url", sourceURL, "error", err,
		)
		return fragment, ""
	}

	if len(strings.TrimSpace(article.TextContent)) < minContentLength {
		slog.Debug("readability: result too short, keeping region",
			"url", sourceURL, "length", len(article.TextContent),
		)
		return fragment, article.Title
	}

	return article.Content, article.Title
}
