package cleaner

import (
	"fmt"
	"math"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"

	"github.com/use-agent/listcrawl/models"
)

// Extraction modes.
const (
	ModeRaw         = "raw"
	ModeReadability = "readability"
)

// Output formats.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
	FormatText     = "text"
)

// Cleaner turns a fetched page into extraction input:
//
//	noise removal -> selector narrowing -> optional readability -> format
//
// The converter is created once and shared (goroutine-safe).
type Cleaner struct {
	mdConverter *converter.Converter
}

// NewCleaner initialises the Cleaner with a pre-configured Markdown converter.
func NewCleaner() *Cleaner {
	return &Cleaner{
		mdConverter: newMarkdownConverter(),
	}
}

// Options controls one Clean call. Zero values mean: no selector, raw
// mode, markdown output, DefaultExcludeTags.
type Options struct {
	Selector    string
	ExtractMode string
	Format      string
	ExcludeTags []string
}

// Content is the prepared extraction input for one page.
type Content struct {
	Text    string
	Title   string
	Matches int

	OriginalTokens int
	CleanedTokens  int
	SavingsPercent float64
}

// Empty reports whether there is nothing worth sending to the extractor.
func (c *Content) Empty() bool {
	return c == nil || strings.TrimSpace(c.Text) == ""
}

// Clean prepares rawHTML for extraction. A selector that matches nothing
// yields empty Content and no error.
func (c *Cleaner) Clean(rawHTML, sourceURL string, opts Options) (*Content, error) {
	out := &Content{
		OriginalTokens: EstimateTokens(rawHTML),
		Title:          PageTitle(rawHTML),
	}

	exclude := opts.ExcludeTags
	if exclude == nil {
		exclude = DefaultExcludeTags
	}
	region := StripNoise(rawHTML, exclude)

	region, matches, err := ApplySelector(region, opts.Selector)
	if err != nil {
		return nil, err
	}
	out.Matches = matches
	if strings.TrimSpace(region) == "" {
		return out, nil
	}

	switch opts.ExtractMode {
	case ModeRaw, "":
	case ModeReadability:
		var title string
		region, title = readable(region, sourceURL)
		if out.Title == "" {
			out.Title = title
		}
	default:
		return nil, models.NewCrawlError(models.ErrCodeInvalidInput,
			fmt.Sprintf("unknown extract mode %q", opts.ExtractMode), nil)
	}

	switch opts.Format {
	case FormatMarkdown, "":
		out.Text, err = ToMarkdown(c.mdConverter, region, sourceURL)
		if err != nil {
			return nil, models.NewCrawlError(models.ErrCodeConversion, "markdown conversion failed", err)
		}
	case FormatHTML:
		out.Text = region
	case FormatText:
		out.Text = stripTags(region)
	default:
		return nil, models.NewCrawlError(models.ErrCodeInvalidInput,
			fmt.Sprintf("unknown input format %q", opts.Format), nil)
	}

	out.CleanedTokens = EstimateTokens(out.Text)
	if out.OriginalTokens > 0 {
		savings := float64(out.OriginalTokens-out.CleanedTokens) / float64(out.OriginalTokens) * 100
		out.SavingsPercent = math.Round(savings*100) / 100
	}
	return out, nil
}
