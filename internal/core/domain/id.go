package domain

import (
	"fmt"
	"strings"
)

// ParticipantID identifies one user of the calling system. IDs are issued by
// the auth layer and treated as opaque strings here.
type ParticipantID string

func (id ParticipantID) String() string {
	return string(id)
}

// SessionID identifies one call attempt between two participants. It is
// derived from the two participant ids in caller_callee order, so both sides
// compute the same id without coordination.
type SessionID string

func NewSessionID(caller, callee ParticipantID) SessionID {
	return SessionID(fmt.Sprintf("%s_%s", caller, callee))
}

func (s SessionID) String() string {
	return string(s)
}

// Participants splits a session id back into its caller and callee parts.
func (s SessionID) Participants() (caller, callee ParticipantID, err error) {
	parts := strings.SplitN(string(s), "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed session id %q", s)
	}
	return ParticipantID(parts[0]), ParticipantID(parts[1]), nil
}

type Role string

const (
	RoleClinician Role = "clinician"
	RoleResponder Role = "responder"
)
