package llm

import (
	"fmt"
	"strings"
)

// AdvancedSettings are the optional tuning knobs a caller may attach to a
// request.
type AdvancedSettings struct {
	Temperature float64
	Tone        string
	Length      string // short | medium | long
}

// Request is one generation request. Immutable for the duration of a call.
type Request struct {
	Topic           string
	Style           string
	IncludeHashtags bool
	IncludeEmojis   bool
	Template        string
	Mood            string
	Audience        string
	Hook            string
	Personal        bool
	Advanced        *AdvancedSettings
}

const systemPrompt = "You are a social media copywriter. Output ONLY the tweet text — no markdown fences, no explanation, no surrounding quotes."

// visionSystemPrompt asks for a structured answer; shared/extract digs it out
// of whatever shape the model actually returns.
const visionSystemPrompt = `You are a social media copywriter analyzing a photo. Respond with ONLY a JSON object: {"description": "what the photo shows", "tweet": "a tweet about it", "location": "place if recognizable, else empty"}.`

// buildPrompt renders the user prompt for one generation request. variation
// differentiates batch slots so n drafts of the same topic come out distinct.
func buildPrompt(req Request, variation int) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Write a single tweet about: %s\n\n", req.Topic))
	sb.WriteString("Rules:\n")
	sb.WriteString(fmt.Sprintf("1. Style: %s\n", styleOr(req.Style)))
	if req.IncludeHashtags {
		sb.WriteString("2. Include 1-3 relevant hashtags\n")
	} else {
		sb.WriteString("2. No hashtags\n")
	}
	if req.IncludeEmojis {
		sb.WriteString("3. Use fitting emojis sparingly\n")
	} else {
		sb.WriteString("3. No emojis\n")
	}
	sb.WriteString("4. Stay under 280 characters\n")

	if req.Template != "" {
		sb.WriteString(fmt.Sprintf("\nFollow this template:\n%s\n", req.Template))
	}
	if req.Mood != "" {
		sb.WriteString(fmt.Sprintf("\nMood: %s\n", req.Mood))
	}
	if req.Audience != "" {
		sb.WriteString(fmt.Sprintf("Audience: %s\n", req.Audience))
	}
	if req.Hook != "" {
		sb.WriteString(fmt.Sprintf("Open with a hook like: %s\n", req.Hook))
	}
	if req.Personal {
		sb.WriteString("Write in first person, as a personal experience.\n")
	}
	if req.Advanced != nil && req.Advanced.Tone != "" {
		sb.WriteString(fmt.Sprintf("Tone: %s\n", req.Advanced.Tone))
	}
	if variation > 0 {
		sb.WriteString(fmt.Sprintf("\nThis is draft %d of several — take a different angle than the obvious one.\n", variation+1))
	}

	sb.WriteString("\nRespond with ONLY the tweet text. Nothing else.")
	return sb.String()
}

func styleOr(style string) string {
	if style == "" {
		return "casual"
	}
	return style
}

func (r Request) temperature() float64 {
	if r.Advanced != nil && r.Advanced.Temperature > 0 {
		return r.Advanced.Temperature
	}
	return 0.8
}

func (r Request) lengthTier() string {
	if r.Advanced != nil {
		return r.Advanced.Length
	}
	return ""
}
