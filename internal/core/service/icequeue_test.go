package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vitalink/telecall/internal/core/domain"
)

func strptr(s string) *string { return &s }
func u16ptr(v uint16) *uint16 { return &v }

func cand(c string) domain.ICECandidate {
	return domain.ICECandidate{Candidate: c, SDPMid: strptr("0"), SDPMLineIndex: u16ptr(0)}
}

func TestCandidateQueueFlushesInOrder(t *testing.T) {
	var q candidateQueue
	q.Enqueue(cand("a"))
	q.Enqueue(cand("b"))
	q.Enqueue(cand("c"))

	var got []string
	applied := q.Flush(func(c domain.ICECandidate) error {
		got = append(got, c.Candidate)
		return nil
	})

	assert.Equal(t, 3, applied)
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Equal(t, 0, q.Len(), "flush empties the queue")
}

func TestCandidateQueueDropsExactDuplicatesOnly(t *testing.T) {
	var q candidateQueue
	assert.True(t, q.Enqueue(cand("a")))
	assert.False(t, q.Enqueue(cand("a")), "exact duplicate")

	// Same candidate string, different media line: not a duplicate.
	other := cand("a")
	other.SDPMLineIndex = u16ptr(1)
	assert.True(t, q.Enqueue(other))

	nilMid := domain.ICECandidate{Candidate: "a"}
	assert.True(t, q.Enqueue(nilMid), "nil vs set sdp_mid differs")

	assert.Equal(t, 3, q.Len())
}

func TestCandidateQueueFlushSkipsFailures(t *testing.T) {
	var q candidateQueue
	q.Enqueue(cand("ok-1"))
	q.Enqueue(cand("bad"))
	q.Enqueue(cand("ok-2"))

	var got []string
	applied := q.Flush(func(c domain.ICECandidate) error {
		if c.Candidate == "bad" {
			return errors.New("unparseable")
		}
		got = append(got, c.Candidate)
		return nil
	})

	assert.Equal(t, 2, applied)
	assert.Equal(t, []string{"ok-1", "ok-2"}, got, "failure must not abort the rest")
}

func TestCandidateQueueReset(t *testing.T) {
	var q candidateQueue
	q.Enqueue(cand("a"))
	q.Reset()
	assert.Equal(t, 0, q.Len())

	// After a reset the same candidate may be queued again.
	assert.True(t, q.Enqueue(cand("a")))
}
