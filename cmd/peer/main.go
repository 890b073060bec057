package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vitalink/telecall/internal/adapter/driven/media/pion"
	presencemem "github.com/vitalink/telecall/internal/adapter/driven/presence/memory"
	presenceredis "github.com/vitalink/telecall/internal/adapter/driven/presence/redis"
	signalmem "github.com/vitalink/telecall/internal/adapter/driven/signaling/memory"
	signalredis "github.com/vitalink/telecall/internal/adapter/driven/signaling/redis"
	handler "github.com/vitalink/telecall/internal/adapter/driving/http"
	"github.com/vitalink/telecall/internal/core/domain"
	"github.com/vitalink/telecall/internal/core/port"
	"github.com/vitalink/telecall/internal/core/service"
)

func main() {
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	log.Logger = zerolog.New(w).With().Timestamp().Caller().Logger()

	identity := service.Identity{
		ID:   domain.ParticipantID(mustGetenv("PEER_ID")),
		Name: getenv("PEER_NAME", mustGetenv("PEER_ID")),
		Role: parseRole(getenv("PEER_ROLE", "clinician")),
	}

	var (
		channel  port.SignalingChannel
		presence port.PresenceStore
	)
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Ping(ctx).Err(); err != nil {
			cancel()
			log.Fatal().Err(err).Str("addr", addr).Msg("Redis unreachable")
		}
		cancel()
		channel = signalredis.New(client)
		presence = presenceredis.New(client)
		log.Info().Str("addr", addr).Msg("Using redis signaling and presence")
	} else {
		// Single-process mode, useful for local demos and tests.
		channel = signalmem.New()
		presence = presencemem.New()
		log.Warn().Msg("REDIS_ADDR not set, using in-process signaling and presence")
	}

	rtcEngine, err := pion.NewEngine()
	if err != nil {
		log.Fatal().Err(err).Msg("WebRTC engine init failed")
	}
	capture := pion.NewCapture(rtcEngine)

	cfg := service.DefaultConfig()
	if servers := os.Getenv("ICE_SERVERS"); servers != "" {
		cfg.ICEServers = parseICEServers(servers)
	}
	if servers := os.Getenv("FALLBACK_ICE_SERVERS"); servers != "" {
		cfg.FallbackICEServers = parseICEServers(servers)
	}
	if secs := os.Getenv("RING_TIMEOUT_SECONDS"); secs != "" {
		n, err := strconv.Atoi(secs)
		if err != nil {
			log.Fatal().Str("value", secs).Msg("RING_TIMEOUT_SECONDS must be an integer")
		}
		cfg.RequestTimeout = time.Duration(n) * time.Second
	}

	engine, err := service.New(identity, channel, presence, capture, rtcEngine, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Negotiation engine init failed")
	}

	announce(presence, identity, domain.StatusOnline)

	h := handler.NewHandler(engine)

	addr := getenv("HTTP_ADDR", ":8080")
	srv := &http.Server{
		Addr:    addr,
		Handler: h.NewRouter(),
	}

	go func() {
		log.Info().Str("addr", addr).Str("peer", identity.ID.String()).Msg("Starting peer")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	_ = engine.Close()
	announce(presence, identity, domain.StatusOffline)
	log.Info().Msg("Peer exited")
}

func announce(presence port.PresenceStore, identity service.Identity, status domain.Status) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := presence.SetStatus(ctx, domain.Presence{
		ID:         identity.ID,
		Name:       identity.Name,
		Role:       identity.Role,
		Status:     status,
		LastActive: time.Now().UTC(),
	})
	if err != nil {
		log.Warn().Err(err).Str("status", string(status)).Msg("Presence announce failed")
	}
}

func parseRole(s string) domain.Role {
	switch domain.Role(s) {
	case domain.RoleClinician, domain.RoleResponder:
		return domain.Role(s)
	default:
		log.Fatal().Str("role", s).Msg("PEER_ROLE must be clinician or responder")
		return ""
	}
}

// parseICEServers reads a comma-separated list of server URLs. TURN
// credentials ride along as url|username|credential.
func parseICEServers(s string) []port.ICEServer {
	var out []port.ICEServer
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "|", 3)
		server := port.ICEServer{URLs: []string{parts[0]}}
		if len(parts) == 3 {
			server.Username = parts[1]
			server.Credential = parts[2]
		}
		out = append(out, server)
	}
	return out
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func mustGetenv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatal().Str("key", key).Msg("Required environment variable missing")
	}
	return v
}
