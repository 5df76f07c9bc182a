package orchestrator

import (
	"fmt"

	"github.com/BaSui01/tenex/types"
)

// TeamFormationError 团队组建失败。Raw 保存模型的原始回复，便于排查。
type TeamFormationError struct {
	Message string
	Raw     string
	Cause   error
}

func (e *TeamFormationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("team formation failed: %s: %v", e.Message, e.Cause)
	}
	return "team formation failed: " + e.Message
}

// Unwrap 使 types.IsCode(err, types.ErrTeamFormation) 成立，同时保留原因链
func (e *TeamFormationError) Unwrap() error {
	return &types.Error{Code: types.ErrTeamFormation, Message: e.Message, Cause: e.Cause}
}

func formationError(msg, raw string, cause error) *TeamFormationError {
	return &TeamFormationError{Message: msg, Raw: raw, Cause: cause}
}
