package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/vitalink/telecall/internal/core/domain"
	"github.com/vitalink/telecall/internal/core/port"
)

// fakeTrack is an in-memory capture track.
type fakeTrack struct {
	mu      sync.Mutex
	id      string
	kind    port.TrackKind
	enabled bool
	stopped bool
	level   float64
}

func newFakeTrack(id string, kind port.TrackKind) *fakeTrack {
	return &fakeTrack{id: id, kind: kind, enabled: true}
}

func (t *fakeTrack) ID() string           { return t.id }
func (t *fakeTrack) Kind() port.TrackKind { return t.kind }

func (t *fakeTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *fakeTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *fakeTrack) AudioLevel() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.level
}

func (t *fakeTrack) setLevel(v float64) {
	t.mu.Lock()
	t.level = v
	t.mu.Unlock()
}

// fakeHandle bundles fake tracks as one acquisition.
type fakeHandle struct {
	tracks []port.Track
}

func (h *fakeHandle) Tracks() []port.Track { return h.tracks }

func (h *fakeHandle) AudioTracks() []port.Track { return h.byKind(port.TrackAudio) }
func (h *fakeHandle) VideoTracks() []port.Track { return h.byKind(port.TrackVideo) }

func (h *fakeHandle) byKind(kind port.TrackKind) []port.Track {
	var out []port.Track
	for _, t := range h.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

func (h *fakeHandle) Close() {
	for _, t := range h.tracks {
		t.Stop()
	}
}

func (h *fakeHandle) allStopped() bool {
	for _, t := range h.tracks {
		if !t.(*fakeTrack).Stopped() {
			return false
		}
	}
	return len(h.tracks) > 0
}

// fakeCapture hands out fake handles and records them for inspection.
type fakeCapture struct {
	mu        sync.Mutex
	denyVideo bool
	denyAll   error
	handles   []*fakeHandle
	acquired  int
}

func (c *fakeCapture) Acquire(ctx context.Context, cons port.Constraints) (port.MediaHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.denyAll != nil {
		return nil, c.denyAll
	}
	if c.denyVideo && cons.Video {
		return nil, fmt.Errorf("camera busy: %w", domain.ErrDeviceUnavailable)
	}
	c.acquired++
	h := &fakeHandle{}
	if cons.Audio {
		h.tracks = append(h.tracks, newFakeTrack(fmt.Sprintf("audio-%d", c.acquired), port.TrackAudio))
	}
	if cons.Video {
		h.tracks = append(h.tracks, newFakeTrack(fmt.Sprintf("video-%d", c.acquired), port.TrackVideo))
	}
	c.handles = append(c.handles, h)
	return h, nil
}

func (c *fakeCapture) lastHandle() *fakeHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.handles) == 0 {
		return nil
	}
	return c.handles[len(c.handles)-1]
}

// fakeConn mimics a peer connection. When both descriptions are set it
// reports connected, and every local description emits one candidate, so a
// pair of engines wired over one signaling channel negotiates end to end.
type fakeConn struct {
	mu sync.Mutex

	localDesc  *domain.SessionDescription
	remoteDesc *domain.SessionDescription

	onCand  func(domain.ICECandidate)
	onState func(port.ConnectionState)
	onTrack func(port.RemoteTrack)

	addedTracks    []port.Track
	addedCands     []domain.ICECandidate
	iceServers     []port.ICEServer
	offers         int
	restarts       int
	setRemoteCalls int
	closed         bool
	announced      bool
}

func (c *fakeConn) AddTrack(t port.Track) error {
	c.mu.Lock()
	c.addedTracks = append(c.addedTracks, t)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) CreateOffer(opts port.OfferOptions) (domain.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offers++
	if opts.ICERestart {
		// A restart reopens negotiation: connectivity is only announced
		// again once a fresh answer arrives.
		c.restarts++
		c.announced = false
		c.remoteDesc = nil
	}
	return domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", c.offers)}, nil
}

func (c *fakeConn) CreateAnswer() (domain.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: fmt.Sprintf("answer-to-%s", c.remoteDesc.SDP)}, nil
}

func (c *fakeConn) SetLocalDescription(desc domain.SessionDescription) error {
	c.mu.Lock()
	c.localDesc = &desc
	cand := c.onCand
	c.mu.Unlock()
	if cand != nil {
		go cand(domain.ICECandidate{Candidate: "candidate:" + desc.SDP})
	}
	c.maybeConnect()
	return nil
}

func (c *fakeConn) SetRemoteDescription(desc domain.SessionDescription) error {
	c.mu.Lock()
	c.remoteDesc = &desc
	c.setRemoteCalls++
	c.mu.Unlock()
	c.maybeConnect()
	return nil
}

func (c *fakeConn) maybeConnect() {
	c.mu.Lock()
	ready := c.localDesc != nil && c.remoteDesc != nil && !c.announced && !c.closed
	if ready {
		c.announced = true
	}
	state := c.onState
	c.mu.Unlock()
	if ready && state != nil {
		go state(port.ConnStateConnected)
	}
}

func (c *fakeConn) RemoteDescriptionSet() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteDesc != nil
}

func (c *fakeConn) AddICECandidate(cand domain.ICECandidate) error {
	c.mu.Lock()
	c.addedCands = append(c.addedCands, cand)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) SetICEServers(servers []port.ICEServer) error {
	c.mu.Lock()
	c.iceServers = servers
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) OnICECandidate(fn func(domain.ICECandidate)) {
	c.mu.Lock()
	c.onCand = fn
	c.mu.Unlock()
}

func (c *fakeConn) OnStateChange(fn func(port.ConnectionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *fakeConn) OnRemoteTrack(fn func(port.RemoteTrack)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) remoteCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setRemoteCalls
}

func (c *fakeConn) restartCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restarts
}

func (c *fakeConn) fallbackServers() []port.ICEServer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.iceServers
}

// fireState injects a connectivity observation as the transport would.
func (c *fakeConn) fireState(s port.ConnectionState) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// emitTrack injects an inbound remote track.
func (c *fakeConn) emitTrack(t port.RemoteTrack) {
	c.mu.Lock()
	fn := c.onTrack
	c.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

// fakeFactory records every connection it creates.
type fakeFactory struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (f *fakeFactory) New(cfg port.ConnectionConfig) (port.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeConn{iceServers: cfg.ICEServers}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

func (f *fakeFactory) lastConn() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}
