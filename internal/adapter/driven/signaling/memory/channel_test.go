package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalink/telecall/internal/core/domain"
)

func accepted(from, to domain.ParticipantID) domain.SignalingMessage {
	return domain.NewCallAccepted(domain.NewSessionID(from, to), from, to)
}

func collect(t *testing.T, ch <-chan domain.SignalingMessage, n int) []domain.SignalingMessage {
	t.Helper()
	var out []domain.SignalingMessage
	for len(out) < n {
		select {
		case msg := <-ch:
			out = append(out, msg)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d messages", len(out), n)
		}
	}
	return out
}

func TestSubscribeDrainsBacklog(t *testing.T) {
	c := New()
	ctx := context.Background()

	// Messages sent before anyone subscribes must wait in the inbox.
	first := accepted("alice", "bob")
	second := accepted("carol", "bob")
	require.NoError(t, c.Send(ctx, first))
	require.NoError(t, c.Send(ctx, second))

	ch, cancel, err := c.Subscribe(ctx, "bob")
	require.NoError(t, err)
	defer cancel()

	got := collect(t, ch, 2)
	assert.Equal(t, first.ID, got[0].ID, "backlog drains oldest first")
	assert.Equal(t, second.ID, got[1].ID)
}

func TestDeliveredMessagesAreNotReplayed(t *testing.T) {
	c := New()
	ctx := context.Background()

	ch, cancel, err := c.Subscribe(ctx, "bob")
	require.NoError(t, err)

	msg := accepted("alice", "bob")
	require.NoError(t, c.Send(ctx, msg))
	collect(t, ch, 1)
	cancel()

	// A fresh subscription sees an empty inbox.
	ch2, cancel2, err := c.Subscribe(ctx, "bob")
	require.NoError(t, err)
	defer cancel2()

	select {
	case m := <-ch2:
		t.Fatalf("unexpected replay of %s", m.ID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSendReachesLiveSubscriber(t *testing.T) {
	c := New()
	ctx := context.Background()

	ch, cancel, err := c.Subscribe(ctx, "bob")
	require.NoError(t, err)
	defer cancel()

	msg := accepted("alice", "bob")
	require.NoError(t, c.Send(ctx, msg))

	got := collect(t, ch, 1)
	assert.Equal(t, msg.ID, got[0].ID)
	assert.Equal(t, domain.KindCallAccepted, got[0].Kind)
}

func TestSendRejectsInvalidMessages(t *testing.T) {
	c := New()
	err := c.Send(context.Background(), domain.SignalingMessage{Kind: domain.KindOffer})
	assert.Error(t, err)
}

func TestPurgeDropsUndelivered(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.Send(ctx, accepted("alice", "bob")))
	require.NoError(t, c.Purge(ctx, "bob"))

	ch, cancel, err := c.Subscribe(ctx, "bob")
	require.NoError(t, err)
	defer cancel()

	select {
	case m := <-ch:
		t.Fatalf("purged message delivered: %s", m.ID)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMessagesForOthersAreInvisible(t *testing.T) {
	c := New()
	ctx := context.Background()

	ch, cancel, err := c.Subscribe(ctx, "bob")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, c.Send(ctx, accepted("alice", "carol")))

	select {
	case m := <-ch:
		t.Fatalf("misrouted message: %s", m.ID)
	case <-time.After(100 * time.Millisecond):
	}
}
