package port

import "github.com/vitalink/telecall/internal/core/domain"

// ICEServer is one STUN/TURN endpoint used for path discovery.
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// ConnectionState is the connectivity of one peer connection.
type ConnectionState string

const (
	ConnStateNew          ConnectionState = "new"
	ConnStateConnecting   ConnectionState = "connecting"
	ConnStateConnected    ConnectionState = "connected"
	ConnStateDisconnected ConnectionState = "disconnected"
	ConnStateFailed       ConnectionState = "failed"
	ConnStateClosed       ConnectionState = "closed"
)

// OfferOptions tunes offer creation. ICERestart renegotiates network paths
// on the existing session.
type OfferOptions struct {
	ICERestart bool
}

// Connection is the peer-to-peer media transport primitive. Callbacks fire
// on transport-owned goroutines; consumers serialize them themselves.
type Connection interface {
	AddTrack(t Track) error
	CreateOffer(opts OfferOptions) (domain.SessionDescription, error)
	CreateAnswer() (domain.SessionDescription, error)
	SetLocalDescription(desc domain.SessionDescription) error
	SetRemoteDescription(desc domain.SessionDescription) error
	RemoteDescriptionSet() bool
	AddICECandidate(cand domain.ICECandidate) error
	SetICEServers(servers []ICEServer) error

	OnICECandidate(fn func(domain.ICECandidate))
	OnStateChange(fn func(ConnectionState))
	OnRemoteTrack(fn func(RemoteTrack))

	Close() error
}

// ConnectionConfig parameterizes a new peer connection.
type ConnectionConfig struct {
	ICEServers []ICEServer
}

// ConnectionFactory creates peer connections.
type ConnectionFactory interface {
	New(cfg ConnectionConfig) (Connection, error)
}
