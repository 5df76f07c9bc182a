package coordinator

import "github.com/BaSui01/tenex/types"

// Decision 是一批信号的阶段切换判定结果
type Decision struct {
	Transition bool
	// Intervene 表示有发言者被阻塞，负责人应介入
	Intervene bool

	Ready    int
	Blocked  int
	Continue int
}

// EvaluateTransition 判定是否切换阶段。
// 任一 continue 信号都会阻止切换；ready_for_transition 与 complete 计为就绪。
// 就绪数等于活跃发言者数时切换；活跃发言者多于两人时，就绪数过半也切换。
func EvaluateTransition(batch []types.ConversationSignal, activeSpeakers int) Decision {
	var d Decision
	for _, s := range batch {
		switch s.Type {
		case types.SignalReadyForTransition, types.SignalComplete:
			d.Ready++
		case types.SignalBlocked:
			d.Blocked++
		case types.SignalContinue:
			d.Continue++
		}
	}
	d.Intervene = d.Blocked > 0
	if d.Continue > 0 || d.Ready == 0 || activeSpeakers <= 0 {
		return d
	}
	switch {
	case d.Ready >= activeSpeakers:
		d.Transition = true
	case activeSpeakers > 2 && d.Ready*2 > activeSpeakers:
		d.Transition = true
	}
	return d
}
