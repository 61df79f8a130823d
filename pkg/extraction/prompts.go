package extraction

import (
	"fmt"
	"strings"

	"github.com/otherjamesbrown/penf-live/pkg/meeting"
	"github.com/otherjamesbrown/penf-live/pkg/search"
)

const systemPrompt = `You are an analyst listening to a live meeting. You extract concrete,
actionable insights from the transcript as it arrives. You only report what
was actually said; you never invent facts. You respond with JSON only.`

// categoryInstructions describes what to look for per insight category.
// Only the enabled categories are included in the prompt, which keeps token
// cost down when a user has opted out of categories.
var categoryInstructions = map[meeting.InsightType]string{
	meeting.InsightDecision: `"decision": a commitment the group made ("we will use X", "it's settled")`,
	meeting.InsightRisk:     `"risk": a threat, blocker, or concern raised about the work`,
	meeting.InsightQuestion: `"question": an open question someone asked that was not answered on the spot`,
	meeting.InsightAction:   `"action": a task someone agreed to do, with owner and due date when stated`,
	meeting.InsightKeyPoint: `"key_point": a notable fact or status update worth surfacing`,
}

// buildExtractionPrompt assembles the extraction prompt. The current chunk
// is the primary focus; recent chunks give local context; related history
// snippets are marked as background relevance only so the model does not
// extract from them.
func buildExtractionPrompt(
	chunk meeting.TranscriptChunk,
	rollingContext []meeting.TranscriptChunk,
	relatedHistory []search.Match,
	enabledTypes []meeting.InsightType,
) string {
	var b strings.Builder

	b.WriteString("Extract insights from the CURRENT STATEMENT of a live meeting.\n\n")

	b.WriteString("Look only for these categories:\n")
	for _, t := range enabledTypes {
		if instr, ok := categoryInstructions[t]; ok {
			b.WriteString("- ")
			b.WriteString(instr)
			b.WriteString("\n")
		}
	}

	if len(relatedHistory) > 0 {
		b.WriteString("\nRELATED PAST DISCUSSIONS (background only, do NOT extract from these):\n")
		for i, m := range relatedHistory {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&b, "%d. %s\n", i+1, m.Content)
		}
	}

	if len(rollingContext) > 0 {
		b.WriteString("\nRECENT CONTEXT:\n")
		for _, c := range rollingContext {
			if c.Speaker != "" {
				fmt.Fprintf(&b, "%s: %s\n", c.Speaker, c.Text)
			} else {
				b.WriteString(c.Text)
				b.WriteString("\n")
			}
		}
	}

	b.WriteString("\nCURRENT STATEMENT:\n")
	if chunk.Speaker != "" {
		fmt.Fprintf(&b, "%s: %s\n", chunk.Speaker, chunk.Text)
	} else {
		b.WriteString(chunk.Text)
		b.WriteString("\n")
	}

	b.WriteString(`
Respond with JSON:
{"insights": [{"type": "<category>", "priority": "critical|high|medium|low",
"content": "<one sentence>", "confidence": <0.0-1.0>,
"assigned_to": "<name or empty>", "due_date": "<date or empty>"}]}

Return {"insights": []} when the statement contains nothing noteworthy.
Report a confidence below 1.0 when wording is ambiguous. Do not pad.`)

	return b.String()
}
