// Package service holds the call negotiation engine: a single-goroutine
// state machine that drives one two-party call session from request through
// offer/answer exchange, connectivity, reconnection and teardown. All
// collaborators (capture, transport, signaling, presence) are reached
// through ports.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vitalink/telecall/internal/core/domain"
	"github.com/vitalink/telecall/internal/core/port"
)

// Config carries the engine's policy knobs. Zero values are replaced by the
// corresponding DefaultConfig values.
type Config struct {
	// ICEServers is the primary traversal server set for new connections.
	ICEServers []port.ICEServer
	// FallbackICEServers replaces the primary set on the first ICE restart.
	FallbackICEServers []port.ICEServer
	// RequestTimeout cancels an unanswered outgoing call-request. Zero keeps
	// the session in requesting until the caller cancels explicitly.
	RequestTimeout time.Duration
	// ReconnectBudget is how many connectivity observations a restart may
	// consume before the session fails.
	ReconnectBudget int
	// ReconcileInterval paces the periodic remote-track and speaking check.
	ReconcileInterval time.Duration
	// SpeakingThreshold is the remote audio level above which the speaking
	// flag turns on.
	SpeakingThreshold float64
	// SendRetries is how many times a failed signaling send is retried.
	SendRetries int
}

func DefaultConfig() Config {
	return Config{
		ICEServers: []port.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		FallbackICEServers: []port.ICEServer{
			{URLs: []string{"stun:stun1.l.google.com:19302"}},
			{URLs: []string{"stun:stun2.l.google.com:19302"}},
		},
		ReconnectBudget:   3,
		ReconcileInterval: time.Second,
		SpeakingThreshold: 0.25,
		SendRetries:       2,
	}
}

// Identity is the local participant as presented to peers.
type Identity struct {
	ID   domain.ParticipantID
	Name string
	Role domain.Role
}

type connEvent struct {
	gen   int
	state port.ConnectionState
}

type candEvent struct {
	gen  int
	cand domain.ICECandidate
}

type trackEvent struct {
	gen   int
	track port.RemoteTrack
}

// session is the engine's mutable view of one call attempt. It embeds the
// CallSession value object and adds the owned runtime resources.
type session struct {
	domain.CallSession

	gen              int
	conn             port.Connection
	local            port.MediaHandle
	remote           []port.RemoteTrack
	queue            candidateQueue
	recon            reconnector
	tracksAdded      bool
	offerOutstanding bool
	appliedRemoteSDP string
	ringTimer        *time.Timer
}

// Engine owns at most one call session for the local participant and is the
// only writer of its state. Inbound signaling, transport callbacks, user
// commands and the reconcile tick are all serialized through one run loop.
type Engine struct {
	id  Identity
	cfg Config

	channel  port.SignalingChannel
	presence port.PresenceStore
	capture  port.MediaCapture
	factory  port.ConnectionFactory

	proj *projector

	commands chan func()
	states   chan connEvent
	cands    chan candEvent
	tracks   chan trackEvent

	inbound     <-chan domain.SignalingMessage
	unsubscribe func()

	quit chan struct{}
	done chan struct{}

	genCounter int
	lastStatus domain.Status
	sess       *session
	closed     bool
}

// New subscribes to the participant's signaling inbox and starts the engine
// loop.
func New(id Identity, channel port.SignalingChannel, presence port.PresenceStore,
	capture port.MediaCapture, factory port.ConnectionFactory, cfg Config) (*Engine, error) {

	def := DefaultConfig()
	if len(cfg.ICEServers) == 0 {
		cfg.ICEServers = def.ICEServers
	}
	if len(cfg.FallbackICEServers) == 0 {
		cfg.FallbackICEServers = def.FallbackICEServers
	}
	if cfg.ReconnectBudget <= 0 {
		cfg.ReconnectBudget = def.ReconnectBudget
	}
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = def.ReconcileInterval
	}
	if cfg.SpeakingThreshold <= 0 {
		cfg.SpeakingThreshold = def.SpeakingThreshold
	}
	if cfg.SendRetries <= 0 {
		cfg.SendRetries = def.SendRetries
	}

	e := &Engine{
		id:       id,
		cfg:      cfg,
		channel:  channel,
		presence: presence,
		capture:  capture,
		factory:  factory,
		proj:     newProjector(),
		commands: make(chan func(), 8),
		states:   make(chan connEvent, 16),
		cands:    make(chan candEvent, 32),
		tracks:   make(chan trackEvent, 8),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	inbound, cancel, err := channel.Subscribe(context.Background(), id.ID)
	if err != nil {
		return nil, fmt.Errorf("subscribe signaling inbox: %w", err)
	}
	e.inbound = inbound
	e.unsubscribe = cancel

	go e.run()
	return e, nil
}

// Close ends any active call and stops the engine loop.
func (e *Engine) Close() error {
	err := e.do(context.Background(), func() error {
		if e.closed {
			return nil
		}
		e.closed = true
		if e.sess != nil && e.sess.Phase.Active() {
			e.teardown(domain.PhaseEnded)
		}
		close(e.quit)
		return nil
	})
	if err != nil {
		return nil // loop already stopped
	}
	<-e.done
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
	return nil
}

// Projection returns the latest UI snapshot.
func (e *Engine) Projection() CallStateProjection {
	return e.proj.Current()
}

// SubscribeProjection streams UI snapshots, starting with the current one.
func (e *Engine) SubscribeProjection() (<-chan CallStateProjection, func()) {
	return e.proj.Subscribe()
}

// SubscribeIncoming streams incoming-call notices.
func (e *Engine) SubscribeIncoming() (<-chan IncomingCallNotice, func()) {
	return e.proj.SubscribeIncoming()
}

// StartCall initiates a call to target. Media is acquired before any
// signaling leaves this peer: if acquisition fails entirely, the remote side
// never learns a call was attempted.
func (e *Engine) StartCall(ctx context.Context, target domain.ParticipantID) error {
	return e.do(ctx, func() error { return e.startCall(target) })
}

// AcceptCall answers the pending incoming call. sessionID guards against
// accepting a call that has already been superseded.
func (e *Engine) AcceptCall(ctx context.Context, sessionID domain.SessionID) error {
	return e.do(ctx, func() error { return e.acceptCall(sessionID) })
}

// RejectCall declines the pending incoming call. No peer connection is ever
// created on this path.
func (e *Engine) RejectCall(ctx context.Context) error {
	return e.do(ctx, func() error { return e.rejectCall() })
}

// EndCall tears the active session down. The remote side observes the
// teardown through its connectivity state, not an explicit message.
func (e *Engine) EndCall(ctx context.Context) error {
	return e.do(ctx, func() error {
		if e.sess == nil || !e.sess.Phase.Active() {
			return domain.ErrNoSession
		}
		e.teardown(domain.PhaseEnded)
		return nil
	})
}

// ToggleMute flips the local audio tracks and returns the new muted state.
func (e *Engine) ToggleMute(ctx context.Context) (muted bool, err error) {
	err = e.do(ctx, func() error {
		sess := e.sess
		if sess == nil || !sess.Phase.Active() || sess.local == nil {
			return domain.ErrNoSession
		}
		sess.Flags.Muted = !sess.Flags.Muted
		for _, t := range sess.local.AudioTracks() {
			t.SetEnabled(!sess.Flags.Muted)
		}
		muted = sess.Flags.Muted
		e.publish()
		return nil
	})
	return muted, err
}

// ToggleCamera flips the local video tracks and returns the new camera-off
// state.
func (e *Engine) ToggleCamera(ctx context.Context) (cameraOff bool, err error) {
	err = e.do(ctx, func() error {
		sess := e.sess
		if sess == nil || !sess.Phase.Active() || sess.local == nil {
			return domain.ErrNoSession
		}
		if sess.Flags.AudioOnly {
			cameraOff = sess.Flags.CameraOff
			return domain.ErrStateConflict
		}
		sess.Flags.CameraOff = !sess.Flags.CameraOff
		for _, t := range sess.local.VideoTracks() {
			t.SetEnabled(!sess.Flags.CameraOff)
		}
		cameraOff = sess.Flags.CameraOff
		e.publish()
		return nil
	})
	return cameraOff, err
}

// AvailableParticipants lists participants currently online or in a call.
func (e *Engine) AvailableParticipants(ctx context.Context) ([]domain.Presence, error) {
	return e.presence.ListAvailable(ctx)
}

func (e *Engine) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case e.commands <- func() { reply <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return errors.New("engine stopped")
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return errors.New("engine stopped")
	}
}

func (e *Engine) run() {
	defer close(e.done)
	ticker := time.NewTicker(e.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.quit:
			return
		case fn := <-e.commands:
			fn()
		case msg, ok := <-e.inbound:
			if !ok {
				e.resubscribe()
				continue
			}
			e.dispatch(msg)
		case ev := <-e.states:
			e.handleState(ev)
		case ev := <-e.cands:
			e.handleLocalCandidate(ev)
		case ev := <-e.tracks:
			e.handleRemoteTrack(ev)
		case <-ticker.C:
			e.reconcile()
		}
	}
}

// resubscribe reopens the signaling inbox after the underlying stream ends.
func (e *Engine) resubscribe() {
	log.Warn().Str("participant", e.id.ID.String()).Msg("Signaling subscription closed, resubscribing")
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
	inbound, cancel, err := e.channel.Subscribe(context.Background(), e.id.ID)
	if err != nil {
		log.Error().Err(err).Msg("Resubscribe failed, inbound signaling stopped")
		e.inbound = nil
		e.unsubscribe = nil
		return
	}
	e.inbound = inbound
	e.unsubscribe = cancel
}

// ---- commands --------------------------------------------------------------

func (e *Engine) startCall(target domain.ParticipantID) error {
	if e.sess != nil && e.sess.Phase.Active() {
		return domain.ErrBusy
	}
	if target == e.id.ID {
		return fmt.Errorf("cannot call self: %w", domain.ErrTargetUnavailable)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	pres, err := e.presence.Get(ctx, target)
	cancel()
	if err != nil {
		return fmt.Errorf("resolve %s: %w", target, domain.ErrTargetUnavailable)
	}
	if pres.Status == domain.StatusOffline {
		return fmt.Errorf("%s is offline: %w", target, domain.ErrTargetUnavailable)
	}

	local, audioOnly, err := e.acquireMedia()
	if err != nil {
		return err
	}

	e.genCounter++
	sess := &session{
		CallSession: domain.CallSession{
			ID:     domain.NewSessionID(e.id.ID, target),
			Local:  e.id.ID,
			Remote: target,
			Role:   domain.CallRoleCaller,
			Phase:  domain.PhaseRequesting,
			Peer:   domain.PeerInfo{Name: pres.Name, Role: pres.Role},
		},
		gen:   e.genCounter,
		local: local,
		recon: newReconnector(e.cfg.ReconnectBudget),
	}
	sess.Flags.AudioOnly = audioOnly
	sess.Flags.CameraOff = audioOnly
	e.sess = sess

	req := domain.NewCallRequest(sess.ID, e.id.ID, target, domain.PeerInfo{Name: e.id.Name, Role: e.id.Role})
	if err := e.send(req); err != nil {
		e.teardown(domain.PhaseFailed)
		return err
	}

	e.armRingTimer(sess)
	log.Info().Str("session_id", sess.ID.String()).Str("target", target.String()).Msg("Call requested")
	e.publish()
	return nil
}

func (e *Engine) acceptCall(sessionID domain.SessionID) error {
	sess := e.sess
	if sess == nil || sess.Phase != domain.PhaseRinging {
		return domain.ErrNoSession
	}
	if sessionID != "" && sessionID != sess.ID {
		return fmt.Errorf("accept %s while %s is ringing: %w", sessionID, sess.ID, domain.ErrStateConflict)
	}

	local, audioOnly, err := e.acquireMedia()
	if err != nil {
		// The caller must converge instead of ringing forever.
		e.sendBestEffort(domain.NewCallRejected(sess.ID, e.id.ID, sess.Remote))
		e.teardown(domain.PhaseFailed)
		return err
	}
	sess.local = local
	sess.Flags.AudioOnly = audioOnly
	sess.Flags.CameraOff = audioOnly

	if err := e.openConnection(); err != nil {
		e.sendBestEffort(domain.NewCallRejected(sess.ID, e.id.ID, sess.Remote))
		e.teardown(domain.PhaseFailed)
		return err
	}
	if err := e.send(domain.NewCallAccepted(sess.ID, e.id.ID, sess.Remote)); err != nil {
		e.teardown(domain.PhaseFailed)
		return err
	}

	e.setPhase(domain.PhaseNegotiating)
	log.Info().Str("session_id", sess.ID.String()).Msg("Call accepted")
	e.publish()
	return nil
}

func (e *Engine) rejectCall() error {
	sess := e.sess
	if sess == nil || sess.Phase != domain.PhaseRinging {
		return domain.ErrNoSession
	}
	e.sendBestEffort(domain.NewCallRejected(sess.ID, e.id.ID, sess.Remote))
	log.Info().Str("session_id", sess.ID.String()).Msg("Call rejected")
	e.teardown(domain.PhaseRejected)
	return nil
}

// acquireMedia opens camera+microphone, degrading to audio-only when video
// capture is refused. A total failure aborts before any signaling is sent.
func (e *Engine) acquireMedia() (port.MediaHandle, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	local, err := e.capture.Acquire(ctx, port.Constraints{Audio: true, Video: true})
	if err == nil {
		return local, false, nil
	}
	log.Warn().Err(err).Msg("Video capture unavailable, trying audio-only")

	local, aerr := e.capture.Acquire(ctx, port.Constraints{Audio: true})
	if aerr == nil {
		return local, true, nil
	}
	if errors.Is(aerr, domain.ErrPermissionDenied) || errors.Is(err, domain.ErrPermissionDenied) {
		return nil, false, fmt.Errorf("acquire media: %w", domain.ErrPermissionDenied)
	}
	return nil, false, fmt.Errorf("acquire media: %w", domain.ErrDeviceUnavailable)
}

func (e *Engine) armRingTimer(sess *session) {
	if e.cfg.RequestTimeout <= 0 {
		return
	}
	id := sess.ID
	sess.ringTimer = time.AfterFunc(e.cfg.RequestTimeout, func() {
		_ = e.do(context.Background(), func() error {
			if e.sess != nil && e.sess.ID == id && e.sess.Phase == domain.PhaseRequesting {
				log.Info().Str("session_id", id.String()).Msg("Call request timed out")
				e.teardown(domain.PhaseEnded)
			}
			return nil
		})
	})
}

// ---- inbound signaling -----------------------------------------------------

// dispatch routes one inbound message. Guards are a pure function of the
// current phase and the message kind: anything inapplicable is logged and
// dropped, never applied.
func (e *Engine) dispatch(msg domain.SignalingMessage) {
	if err := msg.Validate(); err != nil {
		log.Warn().Err(err).Msg("Dropping malformed signaling message")
		return
	}
	if msg.To != e.id.ID {
		log.Warn().Str("to", msg.To.String()).Msg("Dropping misaddressed signaling message")
		return
	}

	switch msg.Kind {
	case domain.KindCallRequest:
		e.onCallRequest(msg)
	case domain.KindCallAccepted:
		e.onCallAccepted(msg)
	case domain.KindCallRejected:
		e.onCallRejected(msg)
	case domain.KindOffer:
		e.onOffer(msg)
	case domain.KindAnswer:
		e.onAnswer(msg)
	case domain.KindICECandidate:
		e.onCandidate(msg)
	}
}

func (e *Engine) onCallRequest(msg domain.SignalingMessage) {
	if e.sess != nil && e.sess.Phase.Active() {
		if e.sess.ID == msg.SessionID {
			e.dropMessage(msg, "duplicate call-request")
			return
		}
		// Busy: answer with a rejection so the caller converges.
		e.sendBestEffort(domain.NewCallRejected(msg.SessionID, e.id.ID, msg.From))
		log.Info().Str("from", msg.From.String()).Msg("Rejected call-request while busy")
		return
	}

	e.genCounter++
	e.sess = &session{
		CallSession: domain.CallSession{
			ID:     msg.SessionID,
			Local:  e.id.ID,
			Remote: msg.From,
			Role:   domain.CallRoleCallee,
			Phase:  domain.PhaseRinging,
			Peer:   *msg.Caller,
		},
		gen:   e.genCounter,
		recon: newReconnector(e.cfg.ReconnectBudget),
	}
	log.Info().Str("session_id", msg.SessionID.String()).Str("from", msg.From.String()).Msg("Incoming call")
	e.proj.Notify(IncomingCallNotice{SessionID: msg.SessionID, CallerID: msg.From, Caller: *msg.Caller})
	e.publish()
}

func (e *Engine) onCallAccepted(msg domain.SignalingMessage) {
	sess := e.sess
	if sess == nil || sess.ID != msg.SessionID || sess.Role != domain.CallRoleCaller {
		e.dropMessage(msg, "no matching outgoing call")
		return
	}
	if sess.Phase != domain.PhaseRequesting {
		e.dropMessage(msg, "not awaiting acceptance")
		return
	}
	if sess.ringTimer != nil {
		sess.ringTimer.Stop()
		sess.ringTimer = nil
	}

	if err := e.openConnection(); err != nil {
		e.fail(err)
		return
	}
	e.setPhase(domain.PhaseNegotiating)
	if err := e.sendOffer(port.OfferOptions{}); err != nil {
		e.fail(err)
		return
	}
	log.Info().Str("session_id", sess.ID.String()).Msg("Call accepted by remote, offer sent")
	e.publish()
}

func (e *Engine) onCallRejected(msg domain.SignalingMessage) {
	sess := e.sess
	if sess == nil || sess.ID != msg.SessionID || sess.Role != domain.CallRoleCaller ||
		sess.Phase != domain.PhaseRequesting {
		e.dropMessage(msg, "no pending request to reject")
		return
	}
	log.Info().Str("session_id", sess.ID.String()).Msg("Call rejected by remote")
	e.teardown(domain.PhaseRejected)
}

func (e *Engine) onOffer(msg domain.SignalingMessage) {
	sess := e.sess
	if sess == nil || sess.ID != msg.SessionID || sess.Phase.Terminal() {
		e.dropMessage(msg, "no session for offer")
		return
	}
	switch sess.Phase {
	case domain.PhaseNegotiating, domain.PhaseConnected, domain.PhaseReconnecting:
	default:
		e.dropMessage(msg, "offer not receivable in this phase")
		return
	}
	if sess.offerOutstanding {
		// Glare: this side is itself awaiting an answer.
		e.dropMessage(msg, "own offer outstanding")
		return
	}
	if sess.conn == nil {
		// This side has not initiated a connection yet; create it lazily.
		if err := e.openConnection(); err != nil {
			e.fail(err)
			return
		}
	}
	if sess.conn.RemoteDescriptionSet() && sess.appliedRemoteSDP == msg.Description.SDP {
		e.dropMessage(msg, "offer already applied")
		return
	}

	if err := sess.conn.SetRemoteDescription(*msg.Description); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Offer not applicable, dropped")
		return
	}
	sess.appliedRemoteSDP = msg.Description.SDP
	sess.queue.Flush(sess.conn.AddICECandidate)

	answer, err := sess.conn.CreateAnswer()
	if err != nil {
		e.fail(fmt.Errorf("create answer: %w", err))
		return
	}
	if err := sess.conn.SetLocalDescription(answer); err != nil {
		e.fail(fmt.Errorf("apply local answer: %w", err))
		return
	}
	if err := e.send(domain.NewAnswer(sess.ID, e.id.ID, sess.Remote, answer)); err != nil {
		e.fail(err)
		return
	}
	log.Debug().Str("session_id", sess.ID.String()).Msg("Offer applied, answer sent")
}

func (e *Engine) onAnswer(msg domain.SignalingMessage) {
	sess := e.sess
	if sess == nil || sess.ID != msg.SessionID || sess.conn == nil {
		e.dropMessage(msg, "no connection for answer")
		return
	}
	if !sess.offerOutstanding {
		// Duplicate or out-of-order answer; applying it again would corrupt
		// the negotiation, so it is dropped.
		e.dropMessage(msg, "no offer outstanding")
		return
	}
	if err := sess.conn.SetRemoteDescription(*msg.Description); err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Answer not applicable, dropped")
		return
	}
	sess.offerOutstanding = false
	sess.appliedRemoteSDP = msg.Description.SDP
	sess.queue.Flush(sess.conn.AddICECandidate)
	log.Debug().Str("session_id", sess.ID.String()).Msg("Answer applied")
}

func (e *Engine) onCandidate(msg domain.SignalingMessage) {
	sess := e.sess
	if sess == nil || sess.ID != msg.SessionID || sess.Phase.Terminal() {
		e.dropMessage(msg, "no session for candidate")
		return
	}
	if sess.conn != nil && sess.conn.RemoteDescriptionSet() {
		if err := sess.conn.AddICECandidate(*msg.Candidate); err != nil {
			log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Skipping inbound candidate")
		}
		return
	}
	sess.queue.Enqueue(*msg.Candidate)
}

func (e *Engine) dropMessage(msg domain.SignalingMessage, reason string) {
	log.Debug().
		Str("kind", string(msg.Kind)).
		Str("from", msg.From.String()).
		Str("reason", reason).
		Msg("Dropped signaling message")
}

// ---- transport events ------------------------------------------------------

func (e *Engine) handleState(ev connEvent) {
	sess := e.sess
	if sess == nil || ev.gen != sess.gen || sess.Phase.Terminal() {
		return
	}
	log.Debug().Str("session_id", sess.ID.String()).Str("state", string(ev.state)).Msg("Connectivity state")

	if ev.state == port.ConnStateConnected {
		sess.recon.Observe(ev.state)
		if sess.Phase == domain.PhaseNegotiating || sess.Phase == domain.PhaseReconnecting {
			if sess.StartedAt.IsZero() {
				sess.StartedAt = time.Now()
			}
			e.setPhase(domain.PhaseConnected)
			log.Info().Str("session_id", sess.ID.String()).Msg("Call connected")
			e.publish()
		}
		return
	}

	switch sess.Phase {
	case domain.PhaseConnected, domain.PhaseReconnecting:
		switch sess.recon.Observe(ev.state) {
		case reconnectRestart:
			e.setPhase(domain.PhaseReconnecting)
			e.publish()
			if err := e.restartICE(); err != nil {
				e.fail(err)
			}
		case reconnectFail:
			e.fail(fmt.Errorf("connectivity lost, restart exhausted (%s)", ev.state))
		}
	case domain.PhaseNegotiating:
		if ev.state == port.ConnStateFailed {
			e.fail(errors.New("connectivity failed during negotiation"))
		}
	}
}

// restartICE renegotiates paths on the existing session: fallback servers,
// re-armed candidate queue, offer with the restart flag. No new call-request.
func (e *Engine) restartICE() error {
	sess := e.sess
	log.Info().Str("session_id", sess.ID.String()).Msg("Attempting ICE restart on fallback servers")
	if err := sess.conn.SetICEServers(e.cfg.FallbackICEServers); err != nil {
		log.Warn().Err(err).Msg("Fallback server reconfiguration failed, restarting on current set")
	}
	sess.queue.Reset()
	sess.appliedRemoteSDP = ""
	return e.sendOffer(port.OfferOptions{ICERestart: true})
}

func (e *Engine) handleLocalCandidate(ev candEvent) {
	sess := e.sess
	if sess == nil || ev.gen != sess.gen || sess.Phase.Terminal() {
		return
	}
	e.sendBestEffort(domain.NewICECandidateMessage(sess.ID, e.id.ID, sess.Remote, ev.cand))
}

func (e *Engine) handleRemoteTrack(ev trackEvent) {
	sess := e.sess
	if sess == nil || ev.gen != sess.gen || sess.Phase.Terminal() {
		return
	}
	sess.remote = append(sess.remote, ev.track)
	log.Info().Str("session_id", sess.ID.String()).Str("kind", string(ev.track.Kind())).Msg("Remote track arrived")
	e.publish()
}

// reconcile runs on the engine tick: it forces transiently muted remote
// tracks back on, refreshes the speaking flag from remote audio levels, and
// keeps the projection's elapsed duration moving.
func (e *Engine) reconcile() {
	sess := e.sess
	if sess == nil || !sess.Phase.Active() {
		return
	}
	if sess.Phase != domain.PhaseConnected && sess.Phase != domain.PhaseReconnecting {
		return
	}

	speaking := false
	for _, t := range sess.remote {
		if !t.Enabled() {
			log.Debug().Str("track", t.ID()).Msg("Re-enabling remote track")
			t.SetEnabled(true)
		}
		if t.Kind() == port.TrackAudio && t.AudioLevel() >= e.cfg.SpeakingThreshold {
			speaking = true
		}
	}
	sess.Flags.Speaking = speaking
	e.publish()
}

// ---- connection plumbing ---------------------------------------------------

// openConnection creates the peer connection and registers its callbacks.
// Local tracks are added exactly once per session; re-entrant calls are
// no-ops.
func (e *Engine) openConnection() error {
	sess := e.sess
	if sess.conn != nil {
		e.addLocalTracks()
		return nil
	}
	conn, err := e.factory.New(port.ConnectionConfig{ICEServers: e.cfg.ICEServers})
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	sess.conn = conn

	gen := sess.gen
	conn.OnICECandidate(func(c domain.ICECandidate) {
		select {
		case e.cands <- candEvent{gen: gen, cand: c}:
		case <-e.quit:
		}
	})
	conn.OnStateChange(func(s port.ConnectionState) {
		select {
		case e.states <- connEvent{gen: gen, state: s}:
		case <-e.quit:
		}
	})
	conn.OnRemoteTrack(func(t port.RemoteTrack) {
		select {
		case e.tracks <- trackEvent{gen: gen, track: t}:
		case <-e.quit:
		}
	})

	e.addLocalTracks()
	return nil
}

func (e *Engine) addLocalTracks() {
	sess := e.sess
	if sess.tracksAdded || sess.conn == nil || sess.local == nil {
		return
	}
	for _, t := range sess.local.Tracks() {
		if err := sess.conn.AddTrack(t); err != nil {
			log.Error().Err(err).Str("track", t.ID()).Msg("Adding local track failed")
		}
	}
	sess.tracksAdded = true
}

func (e *Engine) sendOffer(opts port.OfferOptions) error {
	sess := e.sess
	offer, err := sess.conn.CreateOffer(opts)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := sess.conn.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("apply local offer: %w", err)
	}
	if err := e.send(domain.NewOffer(sess.ID, e.id.ID, sess.Remote, offer)); err != nil {
		return err
	}
	sess.offerOutstanding = true
	return nil
}

// ---- signaling out ---------------------------------------------------------

func (e *Engine) send(msg domain.SignalingMessage) error {
	var err error
	for attempt := 0; attempt <= e.cfg.SendRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err = e.channel.Send(ctx, msg)
		cancel()
		if err == nil {
			return nil
		}
		log.Warn().Err(err).Str("kind", string(msg.Kind)).Int("attempt", attempt+1).Msg("Signaling send failed")
	}
	return fmt.Errorf("%w: %s after retries: %v", domain.ErrSignalingDelivery, msg.Kind, err)
}

func (e *Engine) sendBestEffort(msg domain.SignalingMessage) {
	if err := e.send(msg); err != nil {
		log.Warn().Err(err).Str("kind", string(msg.Kind)).Msg("Best-effort signaling send dropped")
	}
}

// ---- lifecycle -------------------------------------------------------------

func (e *Engine) fail(err error) {
	sess := e.sess
	if sess == nil || sess.Phase.Terminal() {
		return
	}
	log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("Call failed")
	e.teardown(domain.PhaseFailed)
}

// teardown releases every resource the session owns: the transport is
// closed, owned local tracks are stopped, borrowed remote tracks are
// cleared, the candidate queue is re-armed and the inbox backlog purged.
func (e *Engine) teardown(final domain.Phase) {
	sess := e.sess
	if sess == nil || sess.Phase.Terminal() {
		return
	}
	if sess.ringTimer != nil {
		sess.ringTimer.Stop()
		sess.ringTimer = nil
	}
	sess.gen = -1 // invalidate in-flight transport callbacks

	if sess.conn != nil {
		if err := sess.conn.Close(); err != nil {
			log.Warn().Err(err).Msg("Closing peer connection failed")
		}
		sess.conn = nil
	}
	if sess.local != nil {
		sess.local.Close()
		sess.local = nil
	}
	sess.remote = nil
	sess.queue.Reset()
	sess.tracksAdded = false
	sess.offerOutstanding = false
	sess.appliedRemoteSDP = ""
	sess.Flags.Speaking = false

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := e.channel.Purge(ctx, e.id.ID); err != nil {
		log.Warn().Err(err).Msg("Purging signaling backlog failed")
	}
	cancel()

	e.setPhase(final)
	log.Info().Str("session_id", sess.ID.String()).Str("phase", string(final)).Msg("Call torn down")
	e.publish()
}

// setPhase transitions the session and mirrors the transition into the
// presence store. Presence writes never block or fail the call.
func (e *Engine) setPhase(p domain.Phase) {
	e.sess.Phase = p
	switch {
	case p == domain.PhaseNegotiating || p == domain.PhaseConnected:
		e.setPresence(domain.StatusInCall)
	case p.Terminal():
		e.setPresence(domain.StatusOnline)
	}
}

func (e *Engine) setPresence(status domain.Status) {
	if e.lastStatus == status {
		return
	}
	e.lastStatus = status
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := e.presence.SetStatus(ctx, domain.Presence{
		ID:         e.id.ID,
		Name:       e.id.Name,
		Role:       e.id.Role,
		Status:     status,
		LastActive: time.Now().UTC(),
	})
	if err != nil {
		log.Warn().Err(err).Str("status", string(status)).Msg("Presence update failed")
	}
}

func (e *Engine) publish() {
	snap := CallStateProjection{Phase: domain.PhaseIdle}
	if e.sess != nil {
		s := e.sess
		snap = CallStateProjection{
			Phase:       s.Phase,
			SessionID:   s.ID,
			RemoteID:    s.Remote,
			RemotePeer:  s.Peer,
			LocalMedia:  s.local,
			RemoteMedia: append([]port.RemoteTrack(nil), s.remote...),
			Flags:       s.Flags,
			StartedAt:   s.StartedAt,
		}
		if !s.StartedAt.IsZero() && !s.Phase.Terminal() {
			snap.Elapsed = time.Since(s.StartedAt)
		}
	}
	e.proj.Publish(snap)
}
