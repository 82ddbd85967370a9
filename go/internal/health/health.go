package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type Status struct {
	Healthy           bool
	DatabaseConnected bool
	RelayEnabled      bool
	NATSConnected     bool
	ReaperRunning     bool
	LastSweep         time.Time
	OpenRooms         int64
	Connections       int
	Errors            []string
}

type HealthChecker interface {
	Check(ctx context.Context) Status
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RoomCounter interface {
	CountRooms(ctx context.Context) (int64, error)
}

type GatewayStatus interface {
	ConnectionCount() int
	RelayStatus() (enabled, connected bool)
}

type ReaperStatus interface {
	Stats() (running bool, lastSweep time.Time)
}

// Checker reports on the pieces the game server cannot run without.
type Checker struct {
	db      Pinger
	rooms   RoomCounter
	gateway GatewayStatus
	reaper  ReaperStatus
	clock   clockwork.Clock

	// how long without a reaper sweep before unhealthy
	threshold time.Duration
}

func NewChecker(db Pinger, rooms RoomCounter, gateway GatewayStatus, reaper ReaperStatus, clock clockwork.Clock, threshold time.Duration) *Checker {
	return &Checker{
		db:        db,
		rooms:     rooms,
		gateway:   gateway,
		reaper:    reaper,
		clock:     clock,
		threshold: threshold,
	}
}

func (h *Checker) Check(ctx context.Context) Status {
	status := Status{
		Healthy: true,
		Errors:  []string{},
	}

	// Check database connection
	if err := h.db.Ping(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	if status.DatabaseConnected {
		open, err := h.rooms.CountRooms(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count rooms: %v", err))
		} else {
			status.OpenRooms = open
		}
	}

	// Check NATS relay
	status.Connections = h.gateway.ConnectionCount()
	status.RelayEnabled, status.NATSConnected = h.gateway.RelayStatus()
	if status.RelayEnabled && !status.NATSConnected {
		status.Healthy = false
		status.Errors = append(status.Errors, "NATS disconnected")
	}

	// Check reaper
	status.ReaperRunning, status.LastSweep = h.reaper.Stats()
	if !status.ReaperRunning {
		status.Healthy = false
		status.Errors = append(status.Errors, "reaper not running")
	} else if !status.LastSweep.IsZero() {
		if since := h.clock.Since(status.LastSweep); since > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no reaper sweep for %s", since))
		}
	}

	return status
}

// HTTP handler helper
func (h *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	response := map[string]interface{}{
		"healthy":            status.Healthy,
		"database_connected": status.DatabaseConnected,
		"relay_enabled":      status.RelayEnabled,
		"nats_connected":     status.NATSConnected,
		"reaper_running":     status.ReaperRunning,
		"last_sweep":         status.LastSweep,
		"open_rooms":         status.OpenRooms,
		"connections":        status.Connections,
		"errors":             status.Errors,
	}

	w.Header().Set("Content-Type", "application/json")

	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("failed to write health response")
	}
}

// Metrics exporter for Prometheus
type PrometheusExporter struct {
	checker HealthChecker
}

func NewPrometheusExporter(checker HealthChecker) *PrometheusExporter {
	return &PrometheusExporter{checker: checker}
}

func (e *PrometheusExporter) Export(ctx context.Context) string {
	status := e.checker.Check(ctx)

	return fmt.Sprintf(`# HELP parity_healthy Whether the game server is healthy
# TYPE parity_healthy gauge
parity_healthy %d

# HELP parity_database_connected Whether the database is reachable
# TYPE parity_database_connected gauge
parity_database_connected %d

# HELP parity_nats_connected Whether the NATS relay is connected
# TYPE parity_nats_connected gauge
parity_nats_connected %d

# HELP parity_open_rooms Rooms currently in the store
# TYPE parity_open_rooms gauge
parity_open_rooms %d

# HELP parity_connections Open websocket connections on this instance
# TYPE parity_connections gauge
parity_connections %d

# HELP parity_last_sweep_timestamp Unix timestamp of the last reaper sweep
# TYPE parity_last_sweep_timestamp gauge
parity_last_sweep_timestamp %d
`,
		boolGauge(status.Healthy),
		boolGauge(status.DatabaseConnected),
		boolGauge(status.NATSConnected),
		status.OpenRooms,
		status.Connections,
		lastSweepUnix(status.LastSweep),
	)
}

func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if _, err := w.Write([]byte(e.Export(ctx))); err != nil {
		log.Error().Err(err).Msg("failed to write metrics response")
	}
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

func lastSweepUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
