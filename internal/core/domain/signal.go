package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageKind tags a signaling message. The set is closed; dispatch in the
// negotiation engine switches exhaustively over it.
type MessageKind string

const (
	KindCallRequest  MessageKind = "call-request"
	KindCallAccepted MessageKind = "call-accepted"
	KindCallRejected MessageKind = "call-rejected"
	KindOffer        MessageKind = "offer"
	KindAnswer       MessageKind = "answer"
	KindICECandidate MessageKind = "ice-candidate"
)

// SDPType mirrors the offer/answer type of a session description.
type SDPType string

const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

// SessionDescription is one peer's proposed or accepted media and transport
// configuration.
type SessionDescription struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

// ICECandidate is a single network path candidate discovered by one peer.
type ICECandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdp_mid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdp_mline_index,omitempty"`
}

// SignalingMessage is the immutable unit exchanged over the signaling
// channel. Exactly one payload field matching Kind is set; Validate enforces
// the pairing so receivers can treat the type as a closed union.
type SignalingMessage struct {
	ID          string              `json:"id"`
	Kind        MessageKind         `json:"kind"`
	SessionID   SessionID           `json:"session_id"`
	From        ParticipantID       `json:"from"`
	To          ParticipantID       `json:"to"`
	Description *SessionDescription `json:"description,omitempty"`
	Candidate   *ICECandidate       `json:"candidate,omitempty"`
	Caller      *PeerInfo           `json:"caller,omitempty"`
	SentAt      time.Time           `json:"sent_at"`
}

func newMessage(kind MessageKind, sessionID SessionID, from, to ParticipantID) SignalingMessage {
	return SignalingMessage{
		ID:        uuid.New().String(),
		Kind:      kind,
		SessionID: sessionID,
		From:      from,
		To:        to,
		SentAt:    time.Now().UTC(),
	}
}

// NewCallRequest announces a new call attempt to the callee, carrying the
// caller's display info for the ringing UI.
func NewCallRequest(sessionID SessionID, from, to ParticipantID, caller PeerInfo) SignalingMessage {
	m := newMessage(KindCallRequest, sessionID, from, to)
	m.Caller = &caller
	return m
}

func NewCallAccepted(sessionID SessionID, from, to ParticipantID) SignalingMessage {
	return newMessage(KindCallAccepted, sessionID, from, to)
}

func NewCallRejected(sessionID SessionID, from, to ParticipantID) SignalingMessage {
	return newMessage(KindCallRejected, sessionID, from, to)
}

func NewOffer(sessionID SessionID, from, to ParticipantID, desc SessionDescription) SignalingMessage {
	m := newMessage(KindOffer, sessionID, from, to)
	m.Description = &desc
	return m
}

func NewAnswer(sessionID SessionID, from, to ParticipantID, desc SessionDescription) SignalingMessage {
	m := newMessage(KindAnswer, sessionID, from, to)
	m.Description = &desc
	return m
}

func NewICECandidateMessage(sessionID SessionID, from, to ParticipantID, cand ICECandidate) SignalingMessage {
	m := newMessage(KindICECandidate, sessionID, from, to)
	m.Candidate = &cand
	return m
}

// Validate checks that the message is addressed and that its payload matches
// its kind.
func (m SignalingMessage) Validate() error {
	if m.From == "" || m.To == "" {
		return fmt.Errorf("message %s: missing from/to", m.Kind)
	}
	if m.SessionID == "" {
		return fmt.Errorf("message %s: missing session id", m.Kind)
	}
	switch m.Kind {
	case KindCallRequest:
		if m.Caller == nil {
			return fmt.Errorf("call-request without caller info")
		}
	case KindCallAccepted, KindCallRejected:
		// no payload
	case KindOffer:
		if m.Description == nil || m.Description.Type != SDPTypeOffer {
			return fmt.Errorf("offer without offer description")
		}
	case KindAnswer:
		if m.Description == nil || m.Description.Type != SDPTypeAnswer {
			return fmt.Errorf("answer without answer description")
		}
	case KindICECandidate:
		if m.Candidate == nil || m.Candidate.Candidate == "" {
			return fmt.Errorf("ice-candidate without candidate")
		}
	default:
		return fmt.Errorf("unknown message kind %q", m.Kind)
	}
	return nil
}
