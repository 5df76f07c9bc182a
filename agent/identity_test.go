package agent

import (
	"strings"
	"testing"

	"github.com/BaSui01/tenex/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdentity_Deterministic(t *testing.T) {
	a, err := NewIdentity("planner-secret")
	require.NoError(t, err)
	b, err := NewIdentity("planner-secret")
	require.NoError(t, err)
	c, err := NewIdentity("coder-secret")
	require.NoError(t, err)

	assert.Equal(t, a.PublicKey, b.PublicKey)
	assert.NotEqual(t, a.PublicKey, c.PublicKey)
	assert.Len(t, a.PublicKey, 64)
}

func TestNewIdentity_HexSeed(t *testing.T) {
	seed := strings.Repeat("ab", 32)
	a, err := NewIdentity(seed)
	require.NoError(t, err)
	b, err := NewIdentity(strings.ToUpper(seed))
	require.NoError(t, err)
	assert.Equal(t, a.PublicKey, b.PublicKey, "hex seeds decode case-insensitively")
}

func TestNewIdentity_Empty(t *testing.T) {
	_, err := NewIdentity("")
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestSignAndVerifyEvent(t *testing.T) {
	id, err := NewIdentity("secret")
	require.NoError(t, err)

	ev := &types.Event{
		CreatedAt: 1700000000,
		Kind:      types.KindTextNote,
		Tags:      []types.Tag{{"e", "root", "", "root"}},
		Content:   "hello",
	}
	require.NoError(t, id.SignEvent(ev))
	assert.Equal(t, id.PublicKey, ev.PubKey)
	assert.Len(t, ev.ID, 64)
	assert.True(t, VerifyEvent(ev))

	tampered := *ev
	tampered.Content = "bye"
	assert.False(t, VerifyEvent(&tampered))

	forged := *ev
	forged.Sig = strings.Repeat("00", 64)
	assert.False(t, VerifyEvent(&forged))
}

func TestNewIdentity_KnownKey(t *testing.T) {
	id, err := NewIdentity(strings.Repeat("0", 63) + "3")
	require.NoError(t, err)
	assert.Equal(t, "f9308a019258c31049344f85f89d5229b531c845836f99b08601f113bce036f9", id.PublicKey)

	_, err = NewIdentity(strings.Repeat("0", 64))
	assert.ErrorIs(t, err, ErrInvalidSecret)
}

func TestEventID_Canonical(t *testing.T) {
	ev := &types.Event{PubKey: "ab", CreatedAt: 1, Kind: 1, Content: "a < b && <tool_use>"}
	assert.Equal(t, "3855f13e5d1652e5fde14e6e13ad88f0d42fadb8cf259f1086e30d9a5df09fb9", EventID(ev))
}

func TestSignEvent_MarkupContent(t *testing.T) {
	id, err := NewIdentity("coder-secret")
	require.NoError(t, err)

	ev := &types.Event{
		CreatedAt: 1700000000,
		Kind:      types.KindTextNote,
		Content:   "run `make && make test` then <tool_use>{\"name\":\"x\"}</tool_use>",
	}
	require.NoError(t, id.SignEvent(ev))
	assert.Equal(t, EventID(ev), ev.ID)
	assert.Len(t, ev.Sig, 128)
	assert.True(t, VerifyEvent(ev))

	other, err := NewIdentity("planner-secret")
	require.NoError(t, err)
	swapped := *ev
	swapped.PubKey = other.PublicKey
	swapped.ID = EventID(&swapped)
	assert.False(t, VerifyEvent(&swapped))
}
