package summary

import (
	"strings"

	"github.com/sjawhar/pitchspeak/internal/llm"
)

// DefaultSystemPrompt instructs the collaborator to reply with the estimate
// JSON object only.
const DefaultSystemPrompt = `You analyze conversations between a prospective client and an AI assistant about a software project.
Reply ONLY with a single valid JSON object, no markdown and no additional text, using exactly these fields:
{
  "projectSummary": "Brief description of the project discussed",
  "estimation": {
    "timeframe": "Estimated time to complete (e.g. '2-3 weeks')",
    "complexity": "Project complexity (e.g. 'Simple', 'Medium', 'Complex')",
    "cost": "Estimated cost if discussed (optional)",
    "features": ["Key features discussed, in the order they came up"]
  },
  "fullSummary": "Detailed summary of the entire conversation"
}`

const userTemplate = "Conversation:\n{{dialogue}}"

func buildMessages(systemPrompt, dialogue string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: strings.ReplaceAll(userTemplate, "{{dialogue}}", dialogue)},
	}
}
