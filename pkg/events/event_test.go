package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalRoundTripKeepsEnvelope(t *testing.T) {
	in := NewChatTurnCompleted("abc123", "u1", "a1", 2, false, 1500*time.Millisecond)

	raw, err := Marshal(in)
	require.NoError(t, err)

	out, err := Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeChatTurnCompleted, out.EventType())
	assert.Equal(t, "abc123", out.Payload()["fileHash"])
	assert.Equal(t, float64(1500), out.Payload()["durationMs"])
	assert.WithinDuration(t, in.OccurredAt, out.Timestamp(), time.Millisecond)
}
