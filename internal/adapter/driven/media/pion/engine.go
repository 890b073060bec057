// Package pion implements the peer-connection and device-capture ports on
// the pion WebRTC stack. One Engine holds the shared webrtc.API with the
// VP8/Opus codec selection used for both capture and transport.
package pion

import (
	"fmt"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/webrtc/v4"

	"github.com/vitalink/telecall/internal/core/port"
)

// Engine builds peer connections backed by a shared media engine.
type Engine struct {
	api      *webrtc.API
	selector *mediadevices.CodecSelector
}

var _ port.ConnectionFactory = (*Engine)(nil)

func NewEngine() (*Engine, error) {
	vp8, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vp8.BitRate = 500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vp8),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	mediaEngine := webrtc.MediaEngine{}
	selector.Populate(&mediaEngine)

	registry := interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(&mediaEngine, &registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	settings := webrtc.SettingEngine{}
	settings.SetICETimeouts(10*time.Second, 30*time.Second, 2*time.Second)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(&mediaEngine),
		webrtc.WithInterceptorRegistry(&registry),
		webrtc.WithSettingEngine(settings),
	)
	return &Engine{api: api, selector: selector}, nil
}

// New creates one peer connection with the given traversal servers.
func (e *Engine) New(cfg port.ConnectionConfig) (port.Connection, error) {
	pc, err := e.api.NewPeerConnection(rtcConfiguration(cfg.ICEServers))
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return newConn(pc), nil
}

func rtcConfiguration(servers []port.ICEServer) webrtc.Configuration {
	cfg := webrtc.Configuration{}
	for _, s := range servers {
		ice := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			ice.Username = s.Username
			ice.Credential = s.Credential
		}
		cfg.ICEServers = append(cfg.ICEServers, ice)
	}
	return cfg
}
