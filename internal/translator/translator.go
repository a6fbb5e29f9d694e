// Package translator adapts post captions into ordered carousel slide
// texts, with a model self-assessed quality score used by the retry gate.
package translator

import (
	"context"
	"fmt"
	"strings"

	"recast/internal/services"
	"recast/internal/services/llm"
)

// Quality gate bounds. A result scoring below QualityThreshold is retried
// with feedback until MaxRetries attempts have been spent, after which the
// best-effort result is accepted anyway.
const (
	QualityThreshold = 7.0
	MaxRetries       = 3
)

// Slide count bounds the model is instructed to honor. Results outside
// these bounds are rejected as malformed.
const (
	MinSlides = 1
	MaxSlides = 12
)

const systemPrompt = `You are an expert translator specializing in modern Israeli Hebrew. Your task is to translate Instagram post captions into native Israeli Hebrew, using modern slang, cultural adaptation, and marketing energy.

Rules:
- Split the caption into punchy slide texts for a carousel post
- Each slide should be 5-15 words in Hebrew
- Use natural Israeli Hebrew (not formal/biblical)
- Adapt cultural references for Israeli audience
- Keep marketing energy and engagement hooks
- Include relevant emojis where appropriate
- Aim for 3-8 slides depending on content length

After translating, self-score the quality 1-10 based on:
- Natural Israeli Hebrew flow (not "translatese")
- Cultural adaptation quality
- Marketing punch and engagement potential
- Appropriate slide count and text length

Respond in JSON format:
{
  "slides": ["slide 1 text in Hebrew", "slide 2 text in Hebrew", ...],
  "quality_score": <number 1-10>
}`

// Result is one adaptation attempt.
type Result struct {
	Slides       []string `json:"slides"`
	QualityScore float64  `json:"quality_score"`
}

// Feedback builds the retry feedback line for a below-threshold score.
func Feedback(score float64) string {
	return fmt.Sprintf("previous attempt scored %g/10, improve naturalness and cultural adaptation", score)
}

// Completer is the language model surface the translator needs.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Translator turns captions into slide texts.
type Translator struct {
	llm Completer
}

// New constructs a Translator.
func New(completer Completer) *Translator {
	return &Translator{llm: completer}
}

// Translate adapts a caption into slide texts. retryFeedback, when
// non-empty, is appended to the instructions so the model can improve on a
// prior below-threshold attempt.
func (t *Translator) Translate(ctx context.Context, caption, retryFeedback string) (*Result, error) {
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return nil, services.Wrap(services.ErrValidation, "translator", "translate", "caption empty", nil)
	}

	prompt := systemPrompt
	if retryFeedback != "" {
		prompt += fmt.Sprintf("\n\nPrevious attempt was scored below threshold. Feedback: %s. Please improve the translation quality.", retryFeedback)
	}

	content, err := t.llm.CompleteJSON(ctx, prompt, "Translate this Instagram caption to Hebrew carousel slides:\n\n"+caption)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "translator", "translate", "", err)
	}

	var result Result
	if err := llm.DecodeJSON(content, &result); err != nil {
		return nil, services.Wrap(services.ErrExternalService, "translator", "translate", "parse payload", err)
	}

	slides := result.Slides[:0]
	for _, slide := range result.Slides {
		slide = strings.TrimSpace(slide)
		if slide != "" {
			slides = append(slides, slide)
		}
	}
	result.Slides = slides
	if len(result.Slides) < MinSlides || len(result.Slides) > MaxSlides {
		return nil, services.Wrap(services.ErrExternalService, "translator", "translate",
			fmt.Sprintf("model returned %d slides", len(result.Slides)), nil)
	}
	if result.QualityScore < 1 || result.QualityScore > 10 {
		return nil, services.Wrap(services.ErrExternalService, "translator", "translate",
			fmt.Sprintf("model returned quality score %g", result.QualityScore), nil)
	}
	return &result, nil
}
