package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mcdev12/parity/go/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// RelayConfig holds configuration for the cross-instance NATS relay
type RelayConfig struct {
	URL           string
	SubjectPrefix string // events for participant X go to <prefix>.X
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultRelayConfig returns default relay configuration
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "parity.participants",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Relay publishes participant events on NATS and delivers the ones addressed
// to participants connected here. With several gateway instances behind a
// load balancer, the two players of a room may sit on different instances.
type Relay struct {
	connectionManager *ConnectionManager
	nc                *nats.Conn
	sub               *nats.Subscription
	config            RelayConfig
}

// NewRelay connects to NATS and subscribes to every participant subject.
func NewRelay(cm *ConnectionManager, config RelayConfig) (*Relay, error) {
	opts := []nats.Option{
		nats.Name("parity-gateway"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	r := &Relay{
		connectionManager: cm,
		nc:                nc,
		config:            config,
	}

	sub, err := nc.Subscribe(config.SubjectPrefix+".*", r.handleMessage)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe to %s.*: %w", config.SubjectPrefix, err)
	}
	r.sub = sub

	log.Info().
		Str("url", nc.ConnectedUrl()).
		Str("subject", config.SubjectPrefix+".*").
		Msg("NATS relay subscribed")

	return r, nil
}

// Notify publishes env once per participant.
func (r *Relay) Notify(ctx context.Context, participantIDs []string, env *events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	for _, id := range participantIDs {
		if err := r.nc.Publish(r.subject(id), data); err != nil {
			return fmt.Errorf("publish %s to %s: %w", env.Event, id, err)
		}
	}
	return nil
}

// Start blocks until ctx is done, then drains the subscription and connection.
func (r *Relay) Start(ctx context.Context) error {
	<-ctx.Done()

	log.Info().Msg("NATS relay shutting down")
	if err := r.nc.Drain(); err != nil {
		r.nc.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}

// IsConnected reports whether the NATS connection is currently up.
func (r *Relay) IsConnected() bool {
	return r.nc.IsConnected()
}

// Close closes the NATS connection immediately.
func (r *Relay) Close() {
	r.nc.Close()
}

func (r *Relay) subject(participantID string) string {
	return r.config.SubjectPrefix + "." + participantID
}

func (r *Relay) handleMessage(msg *nats.Msg) {
	participantID := strings.TrimPrefix(msg.Subject, r.config.SubjectPrefix+".")
	if !r.connectionManager.HasParticipant(participantID) {
		return
	}

	var env events.Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("failed to decode relayed event")
		return
	}

	if err := r.connectionManager.enqueue(BroadcastMessage{
		ParticipantIDs: []string{participantID},
		Data:           msg.Data,
		Event:          env.Event,
	}); err != nil {
		log.Warn().Err(err).Str("participant_id", participantID).Msg("failed to deliver relayed event")
	}
}
