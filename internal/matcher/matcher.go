// Package matcher classifies post captions against destination topics using
// the language model.
package matcher

import (
	"context"
	"fmt"
	"strings"

	"recast/internal/services"
	"recast/internal/services/llm"
	"recast/internal/store"
)

// MinScore is the relevance cutoff; matches below it are discarded.
const MinScore = 50.0

const systemPromptTemplate = `You are a content classifier. Given a social media post caption, determine which destination accounts (by topic) are relevant matches.

Score each destination 0-100 based on relevance. Only include destinations with score >= 50.

Available destinations:
%s

Respond in JSON format matching this schema:
{
  "matches": [
    { "destination_id": <number>, "score": <number 0-100>, "reason": "<brief explanation>" }
  ]
}`

// Match is one destination the caption is relevant to.
type Match struct {
	DestinationID int64   `json:"destination_id"`
	Score         float64 `json:"score"`
	Reason        string  `json:"reason"`
}

type matchResponse struct {
	Matches []Match `json:"matches"`
}

// Completer is the language model surface the matcher needs.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Matcher scores captions against destination topics.
type Matcher struct {
	llm Completer
}

// New constructs a Matcher.
func New(completer Completer) *Matcher {
	return &Matcher{llm: completer}
}

// Match returns the destinations relevant to the caption, filtered to the
// minimum score and to ids actually present in destinations.
func (m *Matcher) Match(ctx context.Context, caption string, destinations []*store.Destination) ([]Match, error) {
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return nil, services.Wrap(services.ErrValidation, "matcher", "classify", "caption empty", nil)
	}
	if len(destinations) == 0 {
		return nil, nil
	}

	var list strings.Builder
	known := make(map[int64]bool, len(destinations))
	for _, destination := range destinations {
		known[destination.ID] = true
		fmt.Fprintf(&list, "- ID %d: %s\n", destination.ID, destination.Topic)
	}

	content, err := m.llm.CompleteJSON(ctx,
		fmt.Sprintf(systemPromptTemplate, strings.TrimRight(list.String(), "\n")),
		"Post caption:\n\n"+caption,
	)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "matcher", "classify", "", err)
	}

	var decoded matchResponse
	if err := llm.DecodeJSON(content, &decoded); err != nil {
		return nil, services.Wrap(services.ErrExternalService, "matcher", "classify", "parse payload", err)
	}

	matches := decoded.Matches[:0]
	for _, match := range decoded.Matches {
		if match.Score < MinScore {
			continue
		}
		if !known[match.DestinationID] {
			continue
		}
		match.Reason = strings.TrimSpace(match.Reason)
		matches = append(matches, match)
	}
	return matches, nil
}
