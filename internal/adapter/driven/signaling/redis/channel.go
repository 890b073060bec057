// Package redis backs the signaling channel with a Redis document store:
// one hash per participant as the inbox, plus a pub/sub notification stream
// carrying message IDs. Messages survive while the recipient is offline and
// are deleted from the hash once delivered.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/vitalink/telecall/internal/core/domain"
	"github.com/vitalink/telecall/internal/core/port"
)

const (
	inboxKeyPrefix  = "signal:inbox:"
	notifyKeyPrefix = "signal:notify:"
)

// Channel implements the signaling channel over a Redis client.
type Channel struct {
	client *goredis.Client
}

var _ port.SignalingChannel = (*Channel)(nil)

func New(client *goredis.Client) *Channel {
	return &Channel{client: client}
}

func inboxKey(id domain.ParticipantID) string  { return inboxKeyPrefix + id.String() }
func notifyKey(id domain.ParticipantID) string { return notifyKeyPrefix + id.String() }

// Send stores msg in the recipient's inbox hash and publishes its ID on the
// recipient's notification stream.
func (c *Channel) Send(ctx context.Context, msg domain.SignalingMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal signaling message: %w", err)
	}
	if err := c.client.HSet(ctx, inboxKey(msg.To), msg.ID, payload).Err(); err != nil {
		return fmt.Errorf("%w: store message for %s: %v", domain.ErrSignalingDelivery, msg.To, err)
	}
	if err := c.client.Publish(ctx, notifyKey(msg.To), msg.ID).Err(); err != nil {
		// The message is already persisted; the recipient picks it up as
		// backlog on its next subscribe.
		log.Warn().Err(err).Str("to", msg.To.String()).Msg("Signaling notify publish failed")
	}
	return nil
}

// Subscribe opens the notification stream first, then drains the inbox
// backlog, so no message slips between the two steps. Each delivered message
// is deleted from the inbox hash.
func (c *Channel) Subscribe(ctx context.Context, id domain.ParticipantID) (<-chan domain.SignalingMessage, func(), error) {
	pubsub := c.client.Subscribe(ctx, notifyKey(id))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", id, err)
	}

	out := make(chan domain.SignalingMessage, 16)
	quit := make(chan struct{})

	go c.pump(id, pubsub, out, quit)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(quit)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}

func (c *Channel) pump(id domain.ParticipantID, pubsub *goredis.PubSub, out chan<- domain.SignalingMessage, quit <-chan struct{}) {
	defer close(out)
	ctx := context.Background()

	for _, msg := range c.drainBacklog(ctx, id) {
		select {
		case out <- msg:
		case <-quit:
			return
		}
	}

	notifications := pubsub.Channel()
	for {
		select {
		case <-quit:
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			msg, ok := c.take(ctx, id, n.Payload)
			if !ok {
				continue
			}
			select {
			case out <- msg:
			case <-quit:
				return
			}
		}
	}
}

// drainBacklog fetches and deletes everything waiting in the inbox, oldest
// first by send time.
func (c *Channel) drainBacklog(ctx context.Context, id domain.ParticipantID) []domain.SignalingMessage {
	entries, err := c.client.HGetAll(ctx, inboxKey(id)).Result()
	if err != nil {
		log.Warn().Err(err).Str("participant", id.String()).Msg("Inbox backlog read failed")
		return nil
	}
	msgs := make([]domain.SignalingMessage, 0, len(entries))
	for msgID, raw := range entries {
		var msg domain.SignalingMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			log.Warn().Err(err).Str("message_id", msgID).Msg("Discarding undecodable inbox entry")
			_ = c.client.HDel(ctx, inboxKey(id), msgID).Err()
			continue
		}
		if err := c.client.HDel(ctx, inboxKey(id), msgID).Err(); err != nil {
			log.Warn().Err(err).Str("message_id", msgID).Msg("Inbox delete failed, message may replay")
		}
		msgs = append(msgs, msg)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].SentAt.Before(msgs[j].SentAt) })
	return msgs
}

// take fetches one message by ID and deletes it. A missing entry means a
// concurrent subscriber already consumed it.
func (c *Channel) take(ctx context.Context, id domain.ParticipantID, msgID string) (domain.SignalingMessage, bool) {
	raw, err := c.client.HGet(ctx, inboxKey(id), msgID).Result()
	if err == goredis.Nil {
		return domain.SignalingMessage{}, false
	}
	if err != nil {
		log.Warn().Err(err).Str("message_id", msgID).Msg("Inbox read failed")
		return domain.SignalingMessage{}, false
	}
	var msg domain.SignalingMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		log.Warn().Err(err).Str("message_id", msgID).Msg("Discarding undecodable message")
		_ = c.client.HDel(ctx, inboxKey(id), msgID).Err()
		return domain.SignalingMessage{}, false
	}
	if err := c.client.HDel(ctx, inboxKey(id), msgID).Err(); err != nil {
		log.Warn().Err(err).Str("message_id", msgID).Msg("Inbox delete failed, message may replay")
	}
	return msg, true
}

// Purge drops the participant's whole inbox.
func (c *Channel) Purge(ctx context.Context, id domain.ParticipantID) error {
	if err := c.client.Del(ctx, inboxKey(id)).Err(); err != nil {
		return fmt.Errorf("purge inbox %s: %w", id, err)
	}
	return nil
}
