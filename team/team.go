package team

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/BaSui01/tenex/types"
	"github.com/google/uuid"
)

// Stage 会话计划中的一个阶段
type Stage struct {
	Participants       []string `json:"participants"`
	Purpose            string   `json:"purpose"`
	ExpectedOutcome    string   `json:"expectedOutcome,omitempty"`
	TransitionCriteria string   `json:"transitionCriteria,omitempty"`
	PrimarySpeaker     string   `json:"primarySpeaker,omitempty"`
}

// ConversationPlan 线性阶段序列
type ConversationPlan struct {
	Stages              []Stage `json:"stages"`
	EstimatedComplexity int     `json:"estimatedComplexity,omitempty"` // 1-10，仅供参考
}

// Team 负责一个会话的 Agent 团队
type Team struct {
	ID          string           `json:"id"`
	RootEventID string           `json:"rootEventId"`
	Lead        string           `json:"lead"`
	Members     []string         `json:"members"`
	Plan        ConversationPlan `json:"conversationPlan"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// New 创建并校验团队。Lead 不在 Members 中时会被插入到最前面。
func New(rootEventID, lead string, members []string, plan ConversationPlan) (*Team, error) {
	t := &Team{
		ID:          uuid.NewString(),
		RootEventID: rootEventID,
		Lead:        lead,
		Members:     dedupe(members),
		Plan:        plan,
		CreatedAt:   time.Now().UTC(),
	}
	t.EnsureLeadMember()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// SingleAgent 创建只有一名成员、一个阶段的团队
func SingleAgent(rootEventID, name, purpose string) *Team {
	if purpose == "" {
		purpose = "Respond to the request"
	}
	return &Team{
		ID:          uuid.NewString(),
		RootEventID: rootEventID,
		Lead:        name,
		Members:     []string{name},
		Plan: ConversationPlan{
			Stages: []Stage{{
				Participants: []string{name},
				Purpose:      purpose,
			}},
			EstimatedComplexity: 1,
		},
		CreatedAt: time.Now().UTC(),
	}
}

// EnsureLeadMember 保证 Lead 属于 Members，返回是否做了修复
func (t *Team) EnsureLeadMember() bool {
	if t.Lead == "" || slices.Contains(t.Members, t.Lead) {
		return false
	}
	t.Members = append([]string{t.Lead}, t.Members...)
	return true
}

// Validate 校验团队结构，EstimatedComplexity 被夹到 1-10
func (t *Team) Validate() error {
	var problems []string
	if strings.TrimSpace(t.Lead) == "" {
		problems = append(problems, "lead is empty")
	} else if !slices.Contains(t.Members, t.Lead) {
		problems = append(problems, fmt.Sprintf("lead %q is not a member", t.Lead))
	}
	if len(t.Plan.Stages) == 0 {
		problems = append(problems, "conversation plan has no stages")
	}
	for i, s := range t.Plan.Stages {
		if len(s.Participants) == 0 {
			problems = append(problems, fmt.Sprintf("stage %d has no participants", i))
		}
		for _, p := range s.Participants {
			if !slices.Contains(t.Members, p) {
				problems = append(problems, fmt.Sprintf("stage %d participant %q is not a member", i, p))
			}
		}
		if s.PrimarySpeaker != "" && !slices.Contains(s.Participants, s.PrimarySpeaker) {
			problems = append(problems, fmt.Sprintf("stage %d primary speaker %q is not a participant", i, s.PrimarySpeaker))
		}
	}
	if len(problems) > 0 {
		return types.NewError(types.ErrTeamFormation, "invalid team: "+strings.Join(problems, "; "))
	}

	switch {
	case t.Plan.EstimatedComplexity < 1:
		t.Plan.EstimatedComplexity = 1
	case t.Plan.EstimatedComplexity > 10:
		t.Plan.EstimatedComplexity = 10
	}
	return nil
}

// Stage 返回第 i 个阶段
func (t *Team) Stage(i int) (Stage, bool) {
	if i < 0 || i >= len(t.Plan.Stages) {
		return Stage{}, false
	}
	return t.Plan.Stages[i], true
}

// StageCount 返回阶段数
func (t *Team) StageCount() int { return len(t.Plan.Stages) }

// StageParticipants 返回第 i 个阶段的参与者，越界时返回 nil
func (t *Team) StageParticipants(i int) []string {
	s, ok := t.Stage(i)
	if !ok {
		return nil
	}
	return slices.Clone(s.Participants)
}

// HasMember 返回 name 是否为成员
func (t *Team) HasMember(name string) bool {
	return slices.Contains(t.Members, name)
}

// Clone 深拷贝
func (t *Team) Clone() *Team {
	if t == nil {
		return nil
	}
	c := *t
	c.Members = slices.Clone(t.Members)
	c.Plan.Stages = make([]Stage, len(t.Plan.Stages))
	for i, s := range t.Plan.Stages {
		s.Participants = slices.Clone(s.Participants)
		c.Plan.Stages[i] = s
	}
	return &c
}

func dedupe(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}
