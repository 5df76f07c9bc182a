package coordinator

import (
	"fmt"
	"strings"

	"github.com/BaSui01/tenex/agent"
)

const coordinatorDuties = `As team lead you coordinate this conversation: guide the active speakers toward the
expected outcome, decide when the stage is finished, step in when someone is blocked and
summarize progress when the conversation moves to the next stage.`

// leadOverlay 为负责人的系统提示词追加团队与阶段信息
func (c *Coordinator) leadOverlay(ectx agent.EventContext) string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	var b strings.Builder
	b.WriteString("Team roster:\n")
	for _, name := range c.team.Members {
		role := ""
		if name == c.lead.Name() {
			role = c.lead.Config().Role + " (lead)"
		} else if m, ok := c.members[name]; ok {
			role = m.Config().Role
		} else {
			role = "unavailable"
		}
		fmt.Fprintf(&b, "- %s: %s\n", name, role)
	}

	if c.complete {
		fmt.Fprintf(&b, "\nAll %d stages of the plan are complete.\n", c.team.StageCount())
	} else if s, ok := c.team.Stage(c.stage); ok {
		fmt.Fprintf(&b, "\nCurrent stage %d of %d: %s\n", c.stage+1, c.team.StageCount(), s.Purpose)
		if s.ExpectedOutcome != "" {
			fmt.Fprintf(&b, "Expected outcome: %s\n", s.ExpectedOutcome)
		}
		if s.TransitionCriteria != "" {
			fmt.Fprintf(&b, "Transition criteria: %s\n", s.TransitionCriteria)
		}
		fmt.Fprintf(&b, "Active speakers: %s\n", strings.Join(s.Participants, ", "))
	}

	b.WriteString("\n")
	b.WriteString(coordinatorDuties)
	b.WriteString("\n")

	if len(c.blocked) > 0 {
		b.WriteString("\nBlocked speakers need your help now:\n")
		for _, note := range c.blocked {
			fmt.Fprintf(&b, "- %s\n", note)
		}
	}
	return b.String()
}
