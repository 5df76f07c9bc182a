package orchestrator

import (
	"fmt"
	"strings"

	"github.com/BaSui01/tenex/agent"
	"github.com/BaSui01/tenex/types"
)

const systemPrompt = `You assemble teams of AI agents for incoming requests.

Choose a lead agent and the smallest set of members that can handle the request,
then plan the conversation as an ordered list of stages.

Guidelines:
- Prefer a single-agent team for simple or narrowly scoped requests.
- Only add members whose role is clearly needed.
- Every stage needs at least one participant, and every participant must be a team member.
- Use only agent names from the list you are given.
- Set primarySpeaker when a participant other than the first should answer user messages in that stage.

IMPORTANT: respond with ONE JSON object and nothing else, in this shape:
{
  "team": {"lead": "<agent name>", "members": ["<agent name>", "..."]},
  "conversationPlan": {
    "stages": [
      {
        "participants": ["<agent name>"],
        "primarySpeaker": "<optional participant who answers user messages first>",
        "purpose": "<what this stage is for>",
        "expectedOutcome": "<what should exist when it ends>",
        "transitionCriteria": "<when to move on>"
      }
    ],
    "estimatedComplexity": <1-10>
  },
  "reasoning": "<one or two sentences>"
}`

const fixFormattingPrompt = `

Your previous reply could not be parsed as JSON. Fix your formatting: reply with only the JSON object described above, with balanced braces and no trailing commas or commentary.`

func buildUserPrompt(event *types.Event, available []agent.Config, project agent.ProjectContext) string {
	var sb strings.Builder

	sb.WriteString("Available agents:\n")
	for _, cfg := range available {
		sb.WriteString(fmt.Sprintf("- %s", cfg.Name))
		if cfg.Role != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", cfg.Role))
		}
		if instr := strings.TrimSpace(cfg.Instructions); instr != "" {
			sb.WriteString(": ")
			sb.WriteString(firstLine(instr))
		}
		sb.WriteString("\n")
	}

	if project.Name != "" || project.Description != "" {
		sb.WriteString("\nProject: ")
		sb.WriteString(project.Name)
		if project.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(project.Description)
		}
		sb.WriteString("\n")
	}
	if project.RepositoryPath != "" {
		sb.WriteString("Repository: ")
		sb.WriteString(project.RepositoryPath)
		sb.WriteString("\n")
	}

	sb.WriteString("\nRequest:\n")
	if event != nil {
		sb.WriteString(event.Content)
	}
	return sb.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
