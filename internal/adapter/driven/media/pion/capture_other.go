//go:build !linux

package pion

import (
	"context"
	"fmt"

	"github.com/vitalink/telecall/internal/core/domain"
	"github.com/vitalink/telecall/internal/core/port"
)

// Capture is a stub on platforms without bundled capture drivers.
type Capture struct {
	engine *Engine
}

var _ port.MediaCapture = (*Capture)(nil)

func NewCapture(engine *Engine) *Capture {
	return &Capture{engine: engine}
}

func (c *Capture) Acquire(ctx context.Context, cons port.Constraints) (port.MediaHandle, error) {
	return nil, fmt.Errorf("no capture drivers on this platform: %w", domain.ErrDeviceUnavailable)
}
