package slides

import "fmt"

// PromptOptions shapes the rendering prompt for one slide.
type PromptOptions struct {
	SlideNumber int
	TotalSlides int
	BrandColors string
	IsCTA       bool
	CTAHandle   string
}

// BuildPrompt returns the full rendering prompt for the first attempt.
func BuildPrompt(text string, opts PromptOptions) string {
	if opts.IsCTA {
		return buildCTAPrompt(text, opts.CTAHandle, opts.BrandColors)
	}
	return buildSlidePrompt(text, opts.SlideNumber, opts.TotalSlides, opts.BrandColors)
}

// BuildRetryPrompt returns a progressively simpler prompt for retry
// attempts. Attempt 2 drops the design instructions; attempt 3 and later
// keep only the text itself.
func BuildRetryPrompt(text string, attempt int) string {
	if attempt == 2 {
		return fmt.Sprintf(`Create an Instagram slide image (1080x1350, portrait). Display this Hebrew text (RTL) clearly in the center on a dark background: "%s"`, text)
	}
	return fmt.Sprintf(`Image with Hebrew text: "%s". Dark background, white text, 1080x1350 portrait format.`, text)
}

func buildSlidePrompt(text string, slideNumber, totalSlides int, brandColors string) string {
	colorInstructions := "Use a modern, clean color palette with dark background and bright accents."
	if brandColors != "" {
		colorInstructions = fmt.Sprintf("Use these brand colors: %s.", brandColors)
	}

	return fmt.Sprintf(`Create a visually stunning Instagram carousel slide image (1080x1350 pixels, 4:5 portrait ratio).

CRITICAL TEXT REQUIREMENTS:
- Display this Hebrew text prominently in the center: "%s"
- Hebrew text MUST be rendered RIGHT-TO-LEFT (RTL direction)
- Use a bold, modern sans-serif font
- Text must be large, clear, and easily readable
- Ensure proper Hebrew character rendering

DESIGN REQUIREMENTS:
- Slide %d of %d
- %s
- Modern, premium social media aesthetic
- Clean typography with good contrast
- Subtle background design that doesn't distract from text
- No watermarks or logos
- Professional Instagram carousel look`, text, slideNumber, totalSlides, colorInstructions)
}

func buildCTAPrompt(text, handle, brandColors string) string {
	colorInstructions := "Use warm amber/orange accents on dark background."
	if brandColors != "" {
		colorInstructions = fmt.Sprintf("Use these brand colors: %s.", brandColors)
	}

	return fmt.Sprintf(`Create a compelling Call-to-Action slide for Instagram carousel (1080x1350 pixels, 4:5 portrait ratio).

CRITICAL TEXT REQUIREMENTS:
- Display this Hebrew CTA text: "%s"
- Below the CTA, show the Instagram handle: @%s
- Hebrew text MUST be rendered RIGHT-TO-LEFT (RTL direction)
- Use bold, eye-catching typography
- Include a visual "follow" or "swipe" arrow indicator

DESIGN REQUIREMENTS:
- %s
- Energetic, engaging call-to-action design
- Clear visual hierarchy: CTA text > handle > design elements
- Professional Instagram carousel look
- This is the LAST slide, it should feel like a conclusion`, text, handle, colorInstructions)
}
