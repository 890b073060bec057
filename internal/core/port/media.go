package port

import "context"

// TrackKind separates audio from video tracks.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// Track is one capture or playback track. Local tracks are exclusively owned
// by the session that acquired them and must be stopped on teardown; remote
// tracks are borrowed from the transport and only cleared.
type Track interface {
	ID() string
	Kind() TrackKind
	Enabled() bool
	SetEnabled(enabled bool)
	Stop()
	Stopped() bool
}

// RemoteTrack adds local audio-level sampling used for the speaking
// indicator. The level is a 0..1 heuristic, never transmitted.
type RemoteTrack interface {
	Track
	AudioLevel() float64
}

// Constraints selects which capture devices to open.
type Constraints struct {
	Audio bool
	Video bool
}

// MediaHandle bundles the tracks of one capture acquisition.
type MediaHandle interface {
	Tracks() []Track
	AudioTracks() []Track
	VideoTracks() []Track
	Close()
}

// MediaCapture opens local capture devices. Failures are reported as
// domain.ErrPermissionDenied or domain.ErrDeviceUnavailable.
type MediaCapture interface {
	Acquire(ctx context.Context, c Constraints) (MediaHandle, error)
}
