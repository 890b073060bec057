//go:build linux

package pion

import (
	"context"
	"fmt"
	"strings"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"

	// Capture drivers register themselves on import.
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"

	"github.com/vitalink/telecall/internal/core/domain"
	"github.com/vitalink/telecall/internal/core/port"
)

// Capture opens local camera and microphone devices through mediadevices.
type Capture struct {
	engine *Engine
}

var _ port.MediaCapture = (*Capture)(nil)

func NewCapture(engine *Engine) *Capture {
	return &Capture{engine: engine}
}

func (c *Capture) Acquire(ctx context.Context, cons port.Constraints) (port.MediaHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: c.engine.selector}
	if cons.Audio {
		constraints.Audio = func(a *mediadevices.MediaTrackConstraints) {}
	}
	if cons.Video {
		constraints.Video = func(v *mediadevices.MediaTrackConstraints) {
			v.Width = prop.Int(640)
			v.Height = prop.Int(480)
		}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, classifyCaptureError(err)
	}

	h := &handle{}
	for _, t := range stream.GetTracks() {
		h.tracks = append(h.tracks, newLocalTrack(t))
	}
	if len(h.tracks) == 0 {
		return nil, fmt.Errorf("no capture tracks opened: %w", domain.ErrDeviceUnavailable)
	}
	return h, nil
}

func classifyCaptureError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "access denied") {
		return fmt.Errorf("open capture devices: %w", domain.ErrPermissionDenied)
	}
	return fmt.Errorf("open capture devices (%v): %w", err, domain.ErrDeviceUnavailable)
}
