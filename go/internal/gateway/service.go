package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mcdev12/parity/go/internal/events"
	"github.com/rs/zerolog/log"
)

// Notifier is what the rooms app uses to reach participants.
type Notifier interface {
	Notify(ctx context.Context, participantIDs []string, env *events.Envelope) error
}

// Service is the realtime gateway: WebSocket connections, inbound dispatch
// and outbound delivery, optionally relayed across instances over NATS.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	relay             *Relay
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	RelayConfig      RelayConfig
	// EnableRelay routes events through NATS instead of delivering locally.
	EnableRelay bool
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		RelayConfig:      DefaultRelayConfig(),
	}
}

// NewService creates a new gateway service. Call Bind before serving traffic.
func NewService(config Config) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig)

	s := &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
	}

	if config.EnableRelay {
		relay, err := NewRelay(connectionManager, config.RelayConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS relay: %w", err)
		}
		s.relay = relay
	}

	return s, nil
}

// Notifier returns the delivery path the rooms app should use.
func (s *Service) Notifier() Notifier {
	if s.relay != nil {
		return s.relay
	}
	return s.connectionManager
}

// Bind routes inbound messages and disconnects to app.
func (s *Service) Bind(app RoomsApp) {
	s.connectionManager.SetHandler(NewDispatcher(app))
}

// Start runs the gateway until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("relay", s.relay != nil).Msg("starting gateway service")

	go s.connectionManager.Start(ctx)

	if s.relay != nil {
		go func() {
			if err := s.relay.Start(ctx); err != nil {
				log.Error().Err(err).Msg("NATS relay failed")
			}
		}()
	}

	<-ctx.Done()

	log.Info().Msg("gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("gateway routes registered")
}

// ConnectionCount returns the number of open connections on this instance.
func (s *Service) ConnectionCount() int {
	return s.connectionManager.ConnectionCount()
}

// RelayStatus reports whether the NATS relay is configured and connected.
func (s *Service) RelayStatus() (enabled, connected bool) {
	if s.relay == nil {
		return false, false
	}
	return true, s.relay.IsConnected()
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["relay"] = s.relay != nil
	return stats
}
