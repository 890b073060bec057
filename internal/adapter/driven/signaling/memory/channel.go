// Package memory is an in-process signaling channel used by tests and
// single-process development setups. It keeps the store's semantics: per-user
// inboxes, backlog drain at subscribe time, delete-on-consume, no ordering
// guarantee between independent messages.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vitalink/telecall/internal/core/domain"
	"github.com/vitalink/telecall/internal/core/port"
)

type subscriber struct {
	out    chan domain.SignalingMessage
	quit   chan struct{}
	closed bool
}

// Channel routes signaling messages between participants in one process.
type Channel struct {
	mu      sync.Mutex
	cond    *sync.Cond
	inboxes map[domain.ParticipantID][]domain.SignalingMessage
	subs    map[domain.ParticipantID]*subscriber
}

var _ port.SignalingChannel = (*Channel)(nil)

func New() *Channel {
	c := &Channel{
		inboxes: make(map[domain.ParticipantID][]domain.SignalingMessage),
		subs:    make(map[domain.ParticipantID]*subscriber),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Send appends msg to the recipient's inbox and wakes its subscriber, if any.
func (c *Channel) Send(ctx context.Context, msg domain.SignalingMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.inboxes[msg.To] = append(c.inboxes[msg.To], msg)
	c.mu.Unlock()
	c.cond.Broadcast()
	return nil
}

// Subscribe drains the participant's backlog and then streams new messages.
// A second subscription for the same participant replaces the first.
func (c *Channel) Subscribe(ctx context.Context, id domain.ParticipantID) (<-chan domain.SignalingMessage, func(), error) {
	s := &subscriber{
		out:  make(chan domain.SignalingMessage, 16),
		quit: make(chan struct{}),
	}

	c.mu.Lock()
	if old, ok := c.subs[id]; ok && !old.closed {
		old.closed = true
		close(old.quit)
	}
	c.subs[id] = s
	c.mu.Unlock()
	c.cond.Broadcast()

	go c.pump(id, s)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			if !s.closed {
				s.closed = true
				close(s.quit)
			}
			if c.subs[id] == s {
				delete(c.subs, id)
			}
			c.mu.Unlock()
			c.cond.Broadcast()
		})
	}
	return s.out, cancel, nil
}

// pump moves inbox messages to the subscriber. A message is removed from the
// inbox before delivery, so a later subscription never replays it.
func (c *Channel) pump(id domain.ParticipantID, s *subscriber) {
	defer close(s.out)
	for {
		c.mu.Lock()
		for len(c.inboxes[id]) == 0 && !s.closed {
			c.cond.Wait()
		}
		if s.closed {
			c.mu.Unlock()
			return
		}
		batch := c.inboxes[id]
		c.inboxes[id] = nil
		c.mu.Unlock()

		sort.SliceStable(batch, func(i, j int) bool { return batch[i].SentAt.Before(batch[j].SentAt) })
		for _, msg := range batch {
			select {
			case s.out <- msg:
			case <-s.quit:
				return
			}
		}
	}
}

// Purge discards every undelivered message addressed to the participant.
func (c *Channel) Purge(ctx context.Context, id domain.ParticipantID) error {
	c.mu.Lock()
	delete(c.inboxes, id)
	c.mu.Unlock()
	return nil
}
