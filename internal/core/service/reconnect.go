package service

import "github.com/vitalink/telecall/internal/core/port"

// reconnectAction is what the engine should do after a connectivity
// observation.
type reconnectAction int

const (
	reconnectNone reconnectAction = iota
	reconnectRestart
	reconnectFail
)

// reconnector tracks connectivity transitions of the active transport and
// decides when to attempt an ICE restart and when to give up. The first
// degradation triggers one restart on the fallback server set; after that,
// a "failed" observation ends the session at once, and every other state
// change that is not "connected" consumes one observation from the budget.
// An exhausted budget fails the session.
type reconnector struct {
	budget       int
	attempted    bool
	observations int
}

func newReconnector(budget int) reconnector {
	return reconnector{budget: budget}
}

func (r *reconnector) Observe(state port.ConnectionState) reconnectAction {
	if state == port.ConnStateConnected {
		r.attempted = false
		r.observations = 0
		return reconnectNone
	}
	if !r.attempted {
		if state == port.ConnStateDisconnected || state == port.ConnStateFailed {
			r.attempted = true
			r.observations = 0
			return reconnectRestart
		}
		return reconnectNone
	}
	if state == port.ConnStateFailed {
		// The restarted transport gave up; there is no third attempt.
		return reconnectFail
	}
	r.observations++
	if r.observations >= r.budget {
		return reconnectFail
	}
	return reconnectNone
}

// Restarting reports whether a restart attempt is in flight.
func (r *reconnector) Restarting() bool {
	return r.attempted
}
