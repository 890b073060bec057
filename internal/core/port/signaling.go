package port

import (
	"context"

	"github.com/vitalink/telecall/internal/core/domain"
)

// SignalingChannel is an addressable per-user inbox over an asynchronous
// document store. Send appends a message for the recipient; Subscribe yields
// inbound messages for a user, draining any backlog that accumulated before
// the subscription existed. A delivered message is deleted from the store, so
// later subscriptions never replay it. Delivery is at-least-once and order
// between independent messages is not guaranteed; receivers must be
// idempotent and phase-guarded.
type SignalingChannel interface {
	Send(ctx context.Context, msg domain.SignalingMessage) error
	Subscribe(ctx context.Context, id domain.ParticipantID) (<-chan domain.SignalingMessage, func(), error)
	Purge(ctx context.Context, id domain.ParticipantID) error
}
