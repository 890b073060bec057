package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionID(t *testing.T) {
	a := NewSessionID("alice", "bob")
	b := NewSessionID("alice", "bob")
	assert.Equal(t, a, b, "both sides must derive the same id")
	assert.Equal(t, SessionID("alice_bob"), a)

	reversed := NewSessionID("bob", "alice")
	assert.NotEqual(t, a, reversed, "direction is part of the id")
}

func TestSessionIDParticipants(t *testing.T) {
	caller, callee, err := SessionID("alice_bob").Participants()
	require.NoError(t, err)
	assert.Equal(t, ParticipantID("alice"), caller)
	assert.Equal(t, ParticipantID("bob"), callee)

	_, _, err = SessionID("justalice").Participants()
	assert.Error(t, err)

	_, _, err = SessionID("_bob").Participants()
	assert.Error(t, err)
}

func TestPhasePredicates(t *testing.T) {
	for _, p := range []Phase{PhaseEnded, PhaseRejected, PhaseFailed} {
		assert.True(t, p.Terminal(), p)
		assert.False(t, p.Active(), p)
	}
	for _, p := range []Phase{PhaseRequesting, PhaseRinging, PhaseNegotiating, PhaseConnected, PhaseReconnecting} {
		assert.False(t, p.Terminal(), p)
		assert.True(t, p.Active(), p)
	}
	assert.False(t, PhaseIdle.Active())
	assert.False(t, PhaseIdle.Terminal())
}
