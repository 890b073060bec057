package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalingMessageValidate(t *testing.T) {
	sid := NewSessionID("alice", "bob")
	desc := SessionDescription{Type: SDPTypeOffer, SDP: "v=0"}
	answer := SessionDescription{Type: SDPTypeAnswer, SDP: "v=0"}
	cand := ICECandidate{Candidate: "candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host"}

	valid := []SignalingMessage{
		NewCallRequest(sid, "alice", "bob", PeerInfo{Name: "Alice", Role: RoleClinician}),
		NewCallAccepted(sid, "bob", "alice"),
		NewCallRejected(sid, "bob", "alice"),
		NewOffer(sid, "alice", "bob", desc),
		NewAnswer(sid, "bob", "alice", answer),
		NewICECandidateMessage(sid, "alice", "bob", cand),
	}
	for _, m := range valid {
		require.NoError(t, m.Validate(), m.Kind)
		assert.NotEmpty(t, m.ID)
		assert.False(t, m.SentAt.IsZero())
	}
}

func TestSignalingMessageValidateRejectsMismatchedPayload(t *testing.T) {
	sid := NewSessionID("alice", "bob")

	offerAsAnswer := NewAnswer(sid, "bob", "alice", SessionDescription{Type: SDPTypeOffer, SDP: "v=0"})
	assert.Error(t, offerAsAnswer.Validate())

	noCaller := NewCallAccepted(sid, "bob", "alice")
	noCaller.Kind = KindCallRequest
	assert.Error(t, noCaller.Validate())

	emptyCand := NewICECandidateMessage(sid, "alice", "bob", ICECandidate{})
	assert.Error(t, emptyCand.Validate())

	missingSession := NewCallAccepted("", "bob", "alice")
	assert.Error(t, missingSession.Validate())

	unaddressed := NewCallAccepted(sid, "", "alice")
	assert.Error(t, unaddressed.Validate())
}
