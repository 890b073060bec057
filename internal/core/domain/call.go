package domain

import "time"

// Phase is the lifecycle position of a call session.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseRequesting   Phase = "requesting"
	PhaseRinging      Phase = "ringing"
	PhaseNegotiating  Phase = "negotiating"
	PhaseConnected    Phase = "connected"
	PhaseReconnecting Phase = "reconnecting"
	PhaseEnded        Phase = "ended"
	PhaseRejected     Phase = "rejected"
	PhaseFailed       Phase = "failed"
)

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhaseEnded || p == PhaseRejected || p == PhaseFailed
}

// Active reports whether the phase belongs to a live call attempt. At most
// one active session may exist per participant.
func (p Phase) Active() bool {
	return !p.Terminal() && p != PhaseIdle
}

// CallRole distinguishes the two ends of the negotiation.
type CallRole string

const (
	CallRoleCaller CallRole = "caller"
	CallRoleCallee CallRole = "callee"
)

// Flags are the user-facing media switches of a session. Speaking is a local
// heuristic derived from remote audio levels, never signaled.
type Flags struct {
	Muted     bool
	CameraOff bool
	AudioOnly bool
	Speaking  bool
}

// PeerInfo is what the ringing UI needs to render the other party.
type PeerInfo struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// CallSession is the aggregate root of one call attempt.
type CallSession struct {
	ID        SessionID
	Local     ParticipantID
	Remote    ParticipantID
	Role      CallRole
	Phase     Phase
	Peer      PeerInfo
	Flags     Flags
	StartedAt time.Time // first moment Phase reached connected
}
