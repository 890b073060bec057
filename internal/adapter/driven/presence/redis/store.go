// Package redis stores presence records as JSON values under one key per
// participant. Records carry a TTL so peers that vanish without reporting
// offline eventually drop off the roster.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/vitalink/telecall/internal/core/domain"
	"github.com/vitalink/telecall/internal/core/port"
)

const (
	keyPrefix  = "presence:"
	defaultTTL = 12 * time.Hour
)

// Store implements the presence store over a Redis client.
type Store struct {
	client *goredis.Client
	ttl    time.Duration
}

var _ port.PresenceStore = (*Store)(nil)

func New(client *goredis.Client) *Store {
	return &Store{client: client, ttl: defaultTTL}
}

func key(id domain.ParticipantID) string { return keyPrefix + id.String() }

func (s *Store) SetStatus(ctx context.Context, p domain.Presence) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}
	if err := s.client.Set(ctx, key(p.ID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store presence %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id domain.ParticipantID) (domain.Presence, error) {
	raw, err := s.client.Get(ctx, key(id)).Result()
	if err == goredis.Nil {
		return domain.Presence{}, fmt.Errorf("participant %s: %w", id, domain.ErrTargetUnavailable)
	}
	if err != nil {
		return domain.Presence{}, fmt.Errorf("read presence %s: %w", id, err)
	}
	var p domain.Presence
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.Presence{}, fmt.Errorf("decode presence %s: %w", id, err)
	}
	return p, nil
}

// ListAvailable scans the presence keyspace and returns every participant
// that is not offline, sorted by name.
func (s *Store) ListAvailable(ctx context.Context) ([]domain.Presence, error) {
	var out []domain.Presence
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Result()
		if err == goredis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read presence %s: %w", iter.Val(), err)
		}
		var p domain.Presence
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			log.Warn().Err(err).Str("key", iter.Val()).Msg("Skipping undecodable presence record")
			continue
		}
		if p.Status != domain.StatusOffline {
			out = append(out, p)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan presence: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
