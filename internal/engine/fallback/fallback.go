// Package fallback declares the optional external collaborators consulted
// when rule-based classification comes up empty: a knowledge search and a
// free-text generator. Both are best-effort; their absence degrades to the
// rule-based fallback response, never to an error.
package fallback

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// SearchResult is one ranked snippet returned by the knowledge collaborator.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher is the knowledge/search collaborator. It is allowed to return
// no results.
type Searcher interface {
	Search(ctx context.Context, query string) (results []SearchResult, sources []string, err error)
}

// Generator is the free-text generation collaborator, used only to restyle
// an already-correct answer or as a last-resort fallback.
type Generator interface {
	Generate(ctx context.Context, prompt string, history []*schema.Message) (string, error)
}
