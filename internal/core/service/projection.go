package service

import (
	"sync"
	"time"

	"github.com/vitalink/telecall/internal/core/domain"
	"github.com/vitalink/telecall/internal/core/port"
)

// CallStateProjection is the read-only UI-facing snapshot of the current
// session. It is written exclusively by the negotiation engine loop.
type CallStateProjection struct {
	Phase       domain.Phase
	SessionID   domain.SessionID
	RemoteID    domain.ParticipantID
	RemotePeer  domain.PeerInfo
	LocalMedia  port.MediaHandle
	RemoteMedia []port.RemoteTrack
	Flags       domain.Flags
	StartedAt   time.Time
	Elapsed     time.Duration
}

// IncomingCallNotice tells the UI to render an accept/decline prompt.
type IncomingCallNotice struct {
	SessionID domain.SessionID
	CallerID  domain.ParticipantID
	Caller    domain.PeerInfo
}

// projector fans the projection and incoming-call notices out to UI
// subscribers. Publishing never blocks: a subscriber that cannot keep up has
// its oldest pending snapshot replaced by the newest.
type projector struct {
	mu      sync.Mutex
	nextID  int
	current CallStateProjection
	subs    map[int]chan CallStateProjection
	notices map[int]chan IncomingCallNotice
}

func newProjector() *projector {
	return &projector{
		current: CallStateProjection{Phase: domain.PhaseIdle},
		subs:    make(map[int]chan CallStateProjection),
		notices: make(map[int]chan IncomingCallNotice),
	}
}

// Current returns the latest published snapshot.
func (p *projector) Current() CallStateProjection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Publish replaces the snapshot and notifies every subscriber.
func (p *projector) Publish(s CallStateProjection) {
	p.mu.Lock()
	p.current = s
	for _, ch := range p.subs {
		select {
		case ch <- s:
		default:
			// Drop the stale pending snapshot, keep the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
	p.mu.Unlock()
}

// Subscribe returns a stream of projection snapshots plus a cancel func. The
// stream starts with the current snapshot.
func (p *projector) Subscribe() (<-chan CallStateProjection, func()) {
	ch := make(chan CallStateProjection, 1)
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	ch <- p.current
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
	return ch, cancel
}

// Notify fans an incoming-call notice out to notice subscribers.
func (p *projector) Notify(n IncomingCallNotice) {
	p.mu.Lock()
	for _, ch := range p.notices {
		select {
		case ch <- n:
		default:
		}
	}
	p.mu.Unlock()
}

// SubscribeIncoming returns a stream of incoming-call notices plus a cancel
// func.
func (p *projector) SubscribeIncoming() (<-chan IncomingCallNotice, func()) {
	ch := make(chan IncomingCallNotice, 4)
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.notices[id] = ch
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.notices, id)
			p.mu.Unlock()
		})
	}
	return ch, cancel
}
