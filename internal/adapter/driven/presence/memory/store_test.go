package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalink/telecall/internal/core/domain"
)

func TestSetAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	p := domain.Presence{ID: "alice", Name: "Alice", Role: domain.RoleClinician, Status: domain.StatusOnline}
	require.NoError(t, s.SetStatus(ctx, p))

	got, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = s.Get(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrTargetUnavailable)
}

func TestListAvailableExcludesOffline(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SetStatus(ctx, domain.Presence{ID: "c", Name: "Carol", Status: domain.StatusInCall}))
	require.NoError(t, s.SetStatus(ctx, domain.Presence{ID: "a", Name: "Alice", Status: domain.StatusOnline}))
	require.NoError(t, s.SetStatus(ctx, domain.Presence{ID: "b", Name: "Bob", Status: domain.StatusOffline}))

	roster, err := s.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, "Alice", roster[0].Name, "sorted by name")
	assert.Equal(t, "Carol", roster[1].Name)
}

func TestStatusOverwrite(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.SetStatus(ctx, domain.Presence{ID: "a", Name: "Alice", Status: domain.StatusOnline}))
	require.NoError(t, s.SetStatus(ctx, domain.Presence{ID: "a", Name: "Alice", Status: domain.StatusInCall}))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInCall, got.Status)
}
