package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/use-agent/listcrawl/crawl"
	"github.com/use-agent/listcrawl/models"
)

// Extractor turns page content into candidate records through a chat
// model. It implements crawl.ExtractionEngine.
type Extractor struct {
	client *Client
	params Params
}

// NewExtractor creates an Extractor for the given provider settings.
func NewExtractor(client *Client, params Params) *Extractor {
	return &Extractor{client: client, params: params}
}

// Extract asks the model for every object matching schema in content.
// The answer is a JSON object wrapping the records in an "items" array;
// crawl.ParseCandidates unwraps it.
func (e *Extractor) Extract(ctx context.Context, content string, schema crawl.Schema, instruction string) (*crawl.Extraction, error) {
	if e.params.APIKey == "" {
		return nil, models.NewCrawlError(models.ErrCodeLLMAuthFailure, "no LLM API key configured", nil)
	}
	if strings.TrimSpace(content) == "" {
		return nil, crawl.ErrEmptyExtraction
	}

	res, err := e.client.Complete(ctx, buildSystemPrompt(schema, instruction), content, e.params)
	if err != nil {
		return nil, err
	}
	return &crawl.Extraction{Data: res.Data, Usage: res.Usage}, nil
}

// buildSystemPrompt creates the system prompt for listing extraction.
func buildSystemPrompt(schema crawl.Schema, instruction string) string {
	return fmt.Sprintf(`You extract structured records from product listing pages.

%s

Each record must match this JSON schema:
%s

Rules:
- Return ONLY a JSON object of the form {"items": [ ... ]}, no markdown fences or explanation.
- Emit one item per listing on the page, in page order.
- Copy text exactly as shown; do not invent values.
- If a field cannot be found for an item, omit it.
- Add "error": false to every item you are confident about and "error": true otherwise.
- If the page has no listings, return {"items": []}.`, strings.TrimSpace(instruction), string(schema.JSONSchema()))
}
