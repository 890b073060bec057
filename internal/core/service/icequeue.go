package service

import (
	"github.com/rs/zerolog/log"

	"github.com/vitalink/telecall/internal/core/domain"
)

// candidateQueue buffers network candidates that arrive before both session
// descriptions are set. Candidates flush in arrival order; only exact
// duplicates are dropped. The queue is re-armed at the start of every
// negotiation attempt, including ICE restarts.
type candidateQueue struct {
	items []domain.ICECandidate
}

// Enqueue appends cand unless an identical candidate is already queued.
// It reports whether the candidate was added.
func (q *candidateQueue) Enqueue(cand domain.ICECandidate) bool {
	for _, have := range q.items {
		if sameCandidate(have, cand) {
			return false
		}
	}
	q.items = append(q.items, cand)
	return true
}

// Flush applies all queued candidates in FIFO order and empties the queue.
// Individual application failures are logged and skipped; they never abort
// the rest of the flush.
func (q *candidateQueue) Flush(apply func(domain.ICECandidate) error) (applied int) {
	for _, cand := range q.items {
		if err := apply(cand); err != nil {
			log.Warn().Err(err).Str("candidate", cand.Candidate).Msg("Skipping queued candidate")
			continue
		}
		applied++
	}
	q.items = nil
	return applied
}

// Reset discards all queued candidates.
func (q *candidateQueue) Reset() {
	q.items = nil
}

func (q *candidateQueue) Len() int {
	return len(q.items)
}

func sameCandidate(a, b domain.ICECandidate) bool {
	if a.Candidate != b.Candidate {
		return false
	}
	if (a.SDPMid == nil) != (b.SDPMid == nil) || (a.SDPMid != nil && *a.SDPMid != *b.SDPMid) {
		return false
	}
	if (a.SDPMLineIndex == nil) != (b.SDPMLineIndex == nil) || (a.SDPMLineIndex != nil && *a.SDPMLineIndex != *b.SDPMLineIndex) {
		return false
	}
	return true
}
