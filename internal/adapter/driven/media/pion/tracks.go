package pion

import (
	"math"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/vitalink/telecall/internal/core/port"
)

// localTrack wraps a capture track. The session that acquired it owns it and
// stops it on teardown.
type localTrack struct {
	source mediadevices.Track
	kind   port.TrackKind

	mu      sync.Mutex
	enabled bool
	stopped bool
}

var _ port.Track = (*localTrack)(nil)

func newLocalTrack(source mediadevices.Track) *localTrack {
	kind := port.TrackVideo
	if source.Kind() == webrtc.RTPCodecTypeAudio {
		kind = port.TrackAudio
	}
	return &localTrack{source: source, kind: kind, enabled: true}
}

func (t *localTrack) ID() string           { return t.source.ID() }
func (t *localTrack) Kind() port.TrackKind { return t.kind }

func (t *localTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// SetEnabled flags the track as muted for state purposes.
// TODO: swap the bound source for a silent/black generator while disabled so
// no RTP leaves the peer; mediadevices tracks have no pause switch.
func (t *localTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *localTrack) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()
	_ = t.source.Close()
}

func (t *localTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// handle bundles the tracks of one capture acquisition.
type handle struct {
	tracks []port.Track
}

var _ port.MediaHandle = (*handle)(nil)

func (h *handle) Tracks() []port.Track { return h.tracks }

func (h *handle) AudioTracks() []port.Track { return h.byKind(port.TrackAudio) }
func (h *handle) VideoTracks() []port.Track { return h.byKind(port.TrackVideo) }

func (h *handle) byKind(kind port.TrackKind) []port.Track {
	var out []port.Track
	for _, t := range h.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// Close stops every track and releases the capture devices.
func (h *handle) Close() {
	for _, t := range h.tracks {
		t.Stop()
	}
}

// remoteTrack wraps an inbound track. The transport owns the underlying
// stream; Stop only marks the wrapper. AudioLevel is a local smoothed
// estimate derived from RTP payload sizes, good enough for a speaking
// indicator and never transmitted.
type remoteTrack struct {
	tr *webrtc.TrackRemote

	mu      sync.Mutex
	enabled bool
	stopped bool
	level   float64
}

var _ port.RemoteTrack = (*remoteTrack)(nil)

func newRemoteTrack(tr *webrtc.TrackRemote) *remoteTrack {
	return &remoteTrack{tr: tr, enabled: true}
}

func (t *remoteTrack) ID() string { return t.tr.ID() }

func (t *remoteTrack) Kind() port.TrackKind {
	if t.tr.Kind() == webrtc.RTPCodecTypeAudio {
		return port.TrackAudio
	}
	return port.TrackVideo
}

func (t *remoteTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *remoteTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

func (t *remoteTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *remoteTrack) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *remoteTrack) AudioLevel() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.level
}

// readLoop drains the track and keeps the level estimate fresh. It exits
// when the transport closes the track.
func (t *remoteTrack) readLoop() {
	for {
		pkt, _, err := t.tr.ReadRTP()
		if err != nil {
			t.mu.Lock()
			t.stopped = true
			t.level = 0
			t.mu.Unlock()
			return
		}
		t.observe(pkt)
	}
}

// observe folds one packet into the exponentially smoothed level. Opus
// payloads grow with signal energy; 400 bytes is treated as full scale.
func (t *remoteTrack) observe(pkt *rtp.Packet) {
	sample := math.Min(float64(len(pkt.Payload))/400.0, 1.0)
	t.mu.Lock()
	t.level = 0.9*t.level + 0.1*sample
	t.mu.Unlock()
}
