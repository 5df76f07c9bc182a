package types

import "time"

// 事件 Kind 常量
const (
	KindTextNote      = 1
	KindTypingStart   = 24111
	KindTypingStop    = 24112
	KindStageNotice   = 24120
	KindToolResult    = 24121
	defaultRootMarker = "root"
)

// Tag 是事件标签，第一个元素为标签名
type Tag []string

// Name 返回标签名
func (t Tag) Name() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value 返回标签的第一个值
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

// Marker 返回 e 标签上的位置标记（root / reply）
func (t Tag) Marker() string {
	if len(t) < 4 {
		return ""
	}
	return t[3]
}

// Event 表示中继网络上的一条事件
type Event struct {
	ID        string `json:"id"`
	PubKey    string `json:"pubkey"`
	CreatedAt int64  `json:"created_at"`
	Kind      int    `json:"kind"`
	Tags      []Tag  `json:"tags"`
	Content   string `json:"content"`
	Sig       string `json:"sig,omitempty"`
}

// EventRef 是对某个事件的轻量引用
type EventRef struct {
	ID     string `json:"id"`
	PubKey string `json:"pubkey"`
}

// Reference 返回事件引用
func (e *Event) Reference() EventRef {
	return EventRef{ID: e.ID, PubKey: e.PubKey}
}

// Time 返回事件创建时间
func (e *Event) Time() time.Time {
	return time.Unix(e.CreatedAt, 0)
}

// ConversationKey returns the id of the thread root this event belongs to.
//
// Lookup order: the first "E" root tag, then the first "e" tag marked "root",
// then the first "e" tag, and finally the event's own id.
func (e *Event) ConversationKey() string {
	if v := e.firstTagValue("E"); v != "" {
		return v
	}
	var firstReply string
	for _, t := range e.Tags {
		if t.Name() != "e" || t.Value() == "" {
			continue
		}
		if t.Marker() == defaultRootMarker {
			return t.Value()
		}
		if firstReply == "" {
			firstReply = t.Value()
		}
	}
	if firstReply != "" {
		return firstReply
	}
	return e.ID
}

// Mentions 按标签顺序返回 p 标签中的公钥（去重）
func (e *Event) Mentions() []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, t := range e.Tags {
		if t.Name() != "p" || t.Value() == "" {
			continue
		}
		if _, ok := seen[t.Value()]; ok {
			continue
		}
		seen[t.Value()] = struct{}{}
		out = append(out, t.Value())
	}
	return out
}

// TagValues 返回指定名称标签的全部值
func (e *Event) TagValues(name string) []string {
	var out []string
	for _, t := range e.Tags {
		if t.Name() == name && t.Value() != "" {
			out = append(out, t.Value())
		}
	}
	return out
}

func (e *Event) firstTagValue(name string) string {
	for _, t := range e.Tags {
		if t.Name() == name && t.Value() != "" {
			return t.Value()
		}
	}
	return ""
}
