package vision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/vibebox/internal/app/generation"
	"github.com/osa030/vibebox/internal/domain/prefs"
)

// Response field limits imposed by the generation API.
const (
	maxTopicLen  = 499
	maxTagsLen   = 100
	maxLyricsLen = 500
)

const describePrompt = `Classify this screenshot of a computer screen.

Answer these questions:
1. What application/website is the user actively using?
2. What specific task are they performing right now?

Please provide your response in this exact JSON format:
{
  "tag": "a stable kebab-case tag for this kind of activity, e.g. 'vscode-coding', 'chrome-docs', 'slack-chat'",
  "details": "one short sentence describing the activity",
  "app": "frontmost application name, if identifiable"
}

Return ONLY the JSON, no other text.`

// buildComposePrompt assembles the generation analysis prompt from the
// user preferences and the recent-genre diversity list.
func buildComposePrompt(p prefs.Preferences, recentGenres []string) string {
	var b strings.Builder

	b.WriteString(`CRITICAL: Analyze this screenshot and user preferences as EQUAL PRIMARY factors, then use cognitive load analysis to fine-tune the music generation.

PRIMARY ANALYSIS (Equal Priority):
SCREENSHOT CONTEXT:
1. What application/website is the user actively using?
2. What specific task are they performing right now?
3. What is their current work state (focused, overwhelmed, creative, analytical)?
4. What type of cognitive load are they experiencing?

USER PREFERENCES:
5. What are the user's preferred genres and vocal settings?
6. What energy level and mood do they prefer?

COGNITIVE LOAD REFINEMENT:
- High cognitive load (complex tasks): simpler, less distracting music
- Low cognitive load (routine tasks): more engaging, dynamic music
- Creative tasks: inspiring, flowing music
- Analytical tasks: structured, minimal music
- Overwhelmed state: calming, grounding music

Generate a complete music request that balances screenshot context with user preferences.

Please provide your response in this exact JSON format:
{
  "topic": "A detailed description of the music track (400-499 characters) that combines the screenshot work context with user preferences. Include key instruments, mood, tempo, and how it supports the user's current task.",
  "tags": "Musical style/genre tags that balance the work activity with user preferences (max 100 characters)",
  "negative_tags": "Styles or elements to avoid based on user preferences and work context (max 100 characters)",
  "prompt": null (leave empty for instrumental tracks, or provide lyrics if they would be great for this context)
}
`)

	// Explicit preferences section
	genres := strings.Join(p.Genres, ", ")
	if genres == "" {
		genres = "(none selected)"
	}
	vocals := string(p.VocalsGender)
	if vocals == "" {
		vocals = "none"
	}
	lyricStyle := "N/A (instrumental)"
	if !p.Instrumental {
		if p.SillyMode {
			lyricStyle = "SILLY / HUMOROUS (funny, witty, light)"
		} else {
			lyricStyle = "SERIOUS / PROFESSIONAL (natural, singable, appealing)"
		}
	}

	fmt.Fprintf(&b, `
EXPLICIT USER PREFERENCES (highest priority):
- Selected genres: %s
- Instrumental: %v
- Vocal gender preference: %s (if instrumental=false)
- Lyrics style: %s
RULES FOR LYRICS (when instrumental=false):
- You MUST provide coherent, natural, singable lyrics in the 'prompt' field (multi-line text).
- If SILLY, be playful and witty; reference what's on the screen if appropriate.
- If SERIOUS, write genuine, professional-sounding lyrics that fit the chosen genre.
- Keep it clean and safe.
`, genres, p.Instrumental, vocals, lyricStyle)

	// Diversity guidance
	recent := "(none)"
	if len(recentGenres) > 0 {
		recent = strings.Join(recentGenres, ", ")
	}
	fmt.Fprintf(&b, `
GENRE DIVERSITY RULES (very important):
- Recent primary genres used (most recent first): %s
- DO NOT repeat the same primary genre within the last 3 tracks unless the screenshot context strongly requires it.
- If recent contained 'ambient' or 'electronic', choose a different non-electronic genre now.
- Provide 2-4 concise tags including the primary GENRE first (e.g. 'classical, orchestral, cinematic').

Return ONLY the JSON, no other text.`, recent)

	return b.String()
}

// parseComposeResponse decodes the model's JSON into a generation prompt,
// applying the preference overrides and field limits.
func parseComposeResponse(block string, p prefs.Preferences) (*generation.Prompt, error) {
	var v map[string]json.RawMessage
	if err := json.Unmarshal([]byte(block), &v); err != nil {
		return nil, errors.Wrap(err, "failed to parse compose JSON")
	}

	// Some responses nest the payload under "request".
	if nested, ok := v["request"]; ok {
		if err := json.Unmarshal(nested, &v); err != nil {
			return nil, errors.Wrap(err, "failed to parse nested compose JSON")
		}
	}

	topic := asString(v["topic"])
	if topic == "" {
		topic = asString(v["title"])
	}
	if topic == "" {
		topic = "Generated track"
	}

	tags := asString(v["tags"])
	if tags == "" {
		tags = "cinematic, ambient"
	}
	// Selected genres lead the tag list.
	if len(p.Genres) > 0 {
		tags = strings.Join(p.Genres, ", ") + ", " + tags
	}

	lyrics := asString(v["prompt"])
	if !p.Instrumental && lyrics == "" {
		lyrics = fallbackLyrics(p.SillyMode)
	}
	if p.Instrumental {
		lyrics = ""
	}

	vocalGender := ""
	if !p.Instrumental {
		vocalGender = string(p.VocalsGender)
	}

	return &generation.Prompt{
		Topic:        shorten(topic, maxTopicLen),
		Tags:         shorten(tags, maxTagsLen),
		NegativeTags: shorten(asString(v["negative_tags"]), maxTagsLen),
		Lyrics:       shorten(lyrics, maxLyricsLen),
		Instrumental: p.Instrumental,
		VocalGender:  vocalGender,
	}, nil
}

// asString decodes a JSON value that may be a string, an array of strings,
// a number or a bool into a single string.
func asString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var arr []any
	if err := json.Unmarshal(raw, &arr); err == nil {
		parts := make([]string, 0, len(arr))
		for _, item := range arr {
			if str, ok := item.(string); ok {
				parts = append(parts, str)
			}
		}
		return strings.Join(parts, ", ")
	}

	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		switch t := v.(type) {
		case float64:
			return fmt.Sprintf("%v", t)
		case bool:
			return fmt.Sprintf("%v", t)
		}
	}
	return ""
}

// extractJSONBlock pulls the outermost JSON object out of a model response,
// stripping an optional fenced code block first.
func extractJSONBlock(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)

	if start := strings.Index(trimmed, "```"); start >= 0 {
		if end := strings.LastIndex(trimmed, "```"); end > start {
			inner := trimmed[start+3 : end]
			inner = strings.TrimPrefix(strings.TrimSpace(inner), "json")
			trimmed = strings.TrimSpace(inner)
		}
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end < start {
		return "", false
	}
	return trimmed[start : end+1], true
}

// shorten truncates s to max characters, marking the cut with an ellipsis.
func shorten(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	take := max - 3
	if take < 0 {
		take = 0
	}
	return string(runes[:take]) + "..."
}

// fallbackLyrics covers the case where vocals were requested but the model
// returned none.
func fallbackLyrics(silly bool) string {
	if silly {
		return "Verse 1:\nOn my screen the windows dance, tabs and tasks collide\nShortcut sparks and midnight marks, pixels as my guide\nChorus:\nClick clack, bring the groove back, let the workflow sing\nLaughing through the chaos while I do my thing\n"
	}
	return "Verse 1:\nDrafting dreams in quiet rooms, chasing melody\nFinding light in steady lines, calm complexity\nChorus:\nPull me closer, hold the moment, let the night begin\nIn the hush between these pages, I can breathe again\n"
}
