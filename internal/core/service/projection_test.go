package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalink/telecall/internal/core/domain"
)

func TestProjectorSubscribeStartsWithCurrent(t *testing.T) {
	p := newProjector()
	p.Publish(CallStateProjection{Phase: domain.PhaseRinging})

	ch, cancel := p.Subscribe()
	defer cancel()

	first := <-ch
	assert.Equal(t, domain.PhaseRinging, first.Phase)
}

func TestProjectorSlowSubscriberGetsNewest(t *testing.T) {
	p := newProjector()
	ch, cancel := p.Subscribe()
	defer cancel()

	<-ch // drain the initial snapshot

	// Nobody reads while three snapshots are published; only the newest
	// must survive.
	p.Publish(CallStateProjection{Phase: domain.PhaseRequesting})
	p.Publish(CallStateProjection{Phase: domain.PhaseNegotiating})
	p.Publish(CallStateProjection{Phase: domain.PhaseConnected})

	got := <-ch
	assert.Equal(t, domain.PhaseConnected, got.Phase)
	assert.Equal(t, domain.PhaseConnected, p.Current().Phase)
}

func TestProjectorCancelStopsDelivery(t *testing.T) {
	p := newProjector()
	ch, cancel := p.Subscribe()
	<-ch
	cancel()
	cancel() // idempotent

	p.Publish(CallStateProjection{Phase: domain.PhaseConnected})
	select {
	case got, ok := <-ch:
		if ok {
			require.Fail(t, "unexpected snapshot after cancel", "%+v", got)
		}
	default:
	}
}

func TestProjectorNotifyFansOut(t *testing.T) {
	p := newProjector()
	a, cancelA := p.SubscribeIncoming()
	defer cancelA()
	b, cancelB := p.SubscribeIncoming()
	defer cancelB()

	p.Notify(IncomingCallNotice{SessionID: "alice_bob", CallerID: "alice"})

	na := <-a
	nb := <-b
	assert.Equal(t, domain.SessionID("alice_bob"), na.SessionID)
	assert.Equal(t, na, nb)
}
