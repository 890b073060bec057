package domain

import "errors"

var (
	// ErrPermissionDenied means camera/microphone access was refused.
	// Recoverable by degrading to audio-only or prompting the user.
	ErrPermissionDenied = errors.New("media permission denied")

	// ErrDeviceUnavailable means no usable capture hardware exists.
	// Fatal to the call attempt, never retried automatically.
	ErrDeviceUnavailable = errors.New("media device unavailable")

	// ErrSignalingDelivery is a channel read/write failure after retries.
	ErrSignalingDelivery = errors.New("signaling delivery failed")

	// ErrStateConflict means a message or command is inapplicable to the
	// current negotiation sub-state. Such messages are dropped, not applied.
	ErrStateConflict = errors.New("negotiation state conflict")

	// ErrBusy means a non-terminal call session already exists locally.
	ErrBusy = errors.New("another call is active")

	// ErrNoSession means a command needs an active session and none exists.
	ErrNoSession = errors.New("no active call session")

	// ErrTargetUnavailable means the callee could not be resolved or is not
	// reachable for a new call.
	ErrTargetUnavailable = errors.New("call target unavailable")
)
