package port

import (
	"context"

	"github.com/vitalink/telecall/internal/core/domain"
)

// PresenceStore reads and writes participant availability. SetStatus is
// fire-and-forget from the negotiation engine's point of view: failures are
// logged and never block call teardown.
type PresenceStore interface {
	SetStatus(ctx context.Context, p domain.Presence) error
	Get(ctx context.Context, id domain.ParticipantID) (domain.Presence, error)
	ListAvailable(ctx context.Context) ([]domain.Presence, error)
}
