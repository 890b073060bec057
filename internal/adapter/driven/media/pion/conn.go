package pion

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/vitalink/telecall/internal/core/domain"
	"github.com/vitalink/telecall/internal/core/port"
)

// conn adapts *webrtc.PeerConnection to the transport port. pion fires its
// callbacks on its own goroutines; the negotiation engine serializes them.
type conn struct {
	pc *webrtc.PeerConnection

	mu      sync.Mutex
	onCand  func(domain.ICECandidate)
	onState func(port.ConnectionState)
	onTrack func(port.RemoteTrack)
}

var _ port.Connection = (*conn)(nil)

func newConn(pc *webrtc.PeerConnection) *conn {
	c := &conn{pc: pc}

	pc.OnICECandidate(func(ic *webrtc.ICECandidate) {
		if ic == nil {
			return // end-of-gathering marker
		}
		if fn := c.candidateHandler(); fn != nil {
			init := ic.ToJSON()
			fn(domain.ICECandidate{
				Candidate:     init.Candidate,
				SDPMid:        init.SDPMid,
				SDPMLineIndex: init.SDPMLineIndex,
			})
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if fn := c.stateHandler(); fn != nil {
			fn(connectionState(s))
		}
	})
	pc.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		rt := newRemoteTrack(tr)
		go rt.readLoop()
		if fn := c.trackHandler(); fn != nil {
			fn(rt)
		}
	})
	return c
}

func (c *conn) candidateHandler() func(domain.ICECandidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onCand
}

func (c *conn) stateHandler() func(port.ConnectionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onState
}

func (c *conn) trackHandler() func(port.RemoteTrack) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onTrack
}

func (c *conn) OnICECandidate(fn func(domain.ICECandidate)) {
	c.mu.Lock()
	c.onCand = fn
	c.mu.Unlock()
}

func (c *conn) OnStateChange(fn func(port.ConnectionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *conn) OnRemoteTrack(fn func(port.RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

// AddTrack attaches a locally captured track as send-only.
func (c *conn) AddTrack(t port.Track) error {
	lt, ok := t.(*localTrack)
	if !ok {
		return fmt.Errorf("track %s is not a capture track", t.ID())
	}
	_, err := c.pc.AddTransceiverFromTrack(lt.source,
		webrtc.WithDirection(webrtc.RTPTransceiverDirectionSendonly))
	if err != nil {
		return fmt.Errorf("add track %s: %w", t.ID(), err)
	}
	return nil
}

func (c *conn) CreateOffer(opts port.OfferOptions) (domain.SessionDescription, error) {
	var rtcOpts *webrtc.OfferOptions
	if opts.ICERestart {
		rtcOpts = &webrtc.OfferOptions{ICERestart: true}
	}
	offer, err := c.pc.CreateOffer(rtcOpts)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	return domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: offer.SDP}, nil
}

func (c *conn) CreateAnswer() (domain.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	return domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: answer.SDP}, nil
}

func (c *conn) SetLocalDescription(desc domain.SessionDescription) error {
	return c.pc.SetLocalDescription(rtcDescription(desc))
}

func (c *conn) SetRemoteDescription(desc domain.SessionDescription) error {
	return c.pc.SetRemoteDescription(rtcDescription(desc))
}

func (c *conn) RemoteDescriptionSet() bool {
	return c.pc.RemoteDescription() != nil
}

func (c *conn) AddICECandidate(cand domain.ICECandidate) error {
	return c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     cand.Candidate,
		SDPMid:        cand.SDPMid,
		SDPMLineIndex: cand.SDPMLineIndex,
	})
}

// SetICEServers swaps the traversal server set ahead of an ICE restart.
func (c *conn) SetICEServers(servers []port.ICEServer) error {
	if err := c.pc.SetConfiguration(rtcConfiguration(servers)); err != nil {
		return fmt.Errorf("set ice servers: %w", err)
	}
	return nil
}

func (c *conn) Close() error {
	if err := c.pc.Close(); err != nil {
		log.Warn().Err(err).Msg("Peer connection close reported an error")
		return err
	}
	return nil
}

func rtcDescription(desc domain.SessionDescription) webrtc.SessionDescription {
	t := webrtc.SDPTypeOffer
	if desc.Type == domain.SDPTypeAnswer {
		t = webrtc.SDPTypeAnswer
	}
	return webrtc.SessionDescription{Type: t, SDP: desc.SDP}
}

func connectionState(s webrtc.PeerConnectionState) port.ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return port.ConnStateNew
	case webrtc.PeerConnectionStateConnecting:
		return port.ConnStateConnecting
	case webrtc.PeerConnectionStateConnected:
		return port.ConnStateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return port.ConnStateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return port.ConnStateFailed
	default:
		return port.ConnStateClosed
	}
}
