package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvent_ConversationKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{
			name: "no reply reference uses own id",
			ev:   Event{ID: "self"},
			want: "self",
		},
		{
			name: "root tag wins",
			ev: Event{ID: "self", Tags: []Tag{
				{"e", "parent"},
				{"E", "R"},
			}},
			want: "R",
		},
		{
			name: "e tag with root marker",
			ev: Event{ID: "self", Tags: []Tag{
				{"e", "parent", "", "reply"},
				{"e", "R", "", "root"},
			}},
			want: "R",
		},
		{
			name: "first plain e tag",
			ev: Event{ID: "self", Tags: []Tag{
				{"p", "someone"},
				{"e", "R"},
				{"e", "other"},
			}},
			want: "R",
		},
		{
			name: "empty e tag ignored",
			ev:   Event{ID: "self", Tags: []Tag{{"e"}, {"e", ""}}},
			want: "self",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ev.ConversationKey())
		})
	}
}

func TestEvent_Mentions(t *testing.T) {
	t.Parallel()

	ev := Event{Tags: []Tag{
		{"p", "b"},
		{"e", "x"},
		{"p", "a"},
		{"p", "b"},
	}}
	assert.Equal(t, []string{"b", "a"}, ev.Mentions())
	assert.Equal(t, []string{"x"}, ev.TagValues("e"))
}

func TestParseSignalType(t *testing.T) {
	t.Parallel()

	st, ok := ParseSignalType("  READY_FOR_TRANSITION ")
	assert.True(t, ok)
	assert.Equal(t, SignalReadyForTransition, st)

	_, ok = ParseSignalType("maybe")
	assert.False(t, ok)
}

func TestTailMessages(t *testing.T) {
	t.Parallel()

	msgs := make([]ConversationMessage, 12)
	for i := range msgs {
		msgs[i].ID = string(rune('a' + i))
	}
	tail := TailMessages(msgs, 10)
	assert.Len(t, tail, 10)
	assert.Equal(t, "c", tail[0].ID)
	assert.Len(t, TailMessages(msgs, 0), 12)
}

func TestEvent_Serialize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{
			name: "nil tags",
			ev:   Event{PubKey: "ab", CreatedAt: 1, Kind: 1, Content: "hi"},
			want: `[0,"ab",1,1,[],"hi"]`,
		},
		{
			name: "html characters stay verbatim",
			ev:   Event{PubKey: "ab", CreatedAt: 1, Kind: 1, Content: "a < b && <tool_use>"},
			want: `[0,"ab",1,1,[],"a < b && <tool_use>"]`,
		},
		{
			name: "escapes",
			ev:   Event{PubKey: "ab", CreatedAt: 2, Kind: 7, Content: "q\"\\\n\r\t\b\f\x01"},
			want: `[0,"ab",2,7,[],"q\"\\\n\r\t\b\f\u0001"]`,
		},
		{
			name: "unicode verbatim",
			ev:   Event{PubKey: "ab", CreatedAt: 3, Kind: 1, Content: "你好\u2028\u2029🚀"},
			want: "[0,\"ab\",3,1,[],\"你好\u2028\u2029🚀\"]",
		},
		{
			name: "tags",
			ev: Event{PubKey: "ab", CreatedAt: 4, Kind: 1, Tags: []Tag{
				{"E", "root", "", "root"},
				{"p", "x"},
			}},
			want: `[0,"ab",4,1,[["E","root","","root"],["p","x"]],""]`,
		},
		{
			name: "invalid utf8 becomes replacement",
			ev:   Event{PubKey: "ab", CreatedAt: 5, Kind: 1, Content: "a\xffb"},
			want: "[0,\"ab\",5,1,[],\"a�b\"]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(tt.ev.Serialize()))
		})
	}
}
