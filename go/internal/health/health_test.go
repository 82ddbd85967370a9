package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

type fakeRooms struct {
	n   int64
	err error
}

func (f fakeRooms) CountRooms(ctx context.Context) (int64, error) { return f.n, f.err }

type fakeGateway struct {
	conns              int
	enabled, connected bool
}

func (f fakeGateway) ConnectionCount() int                   { return f.conns }
func (f fakeGateway) RelayStatus() (enabled, connected bool) { return f.enabled, f.connected }

type fakeReaper struct {
	running   bool
	lastSweep time.Time
}

func (f fakeReaper) Stats() (bool, time.Time) { return f.running, f.lastSweep }

var testNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func TestChecker_Healthy(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	checker := NewChecker(
		fakePinger{},
		fakeRooms{n: 3},
		fakeGateway{conns: 5, enabled: true, connected: true},
		fakeReaper{running: true, lastSweep: testNow.Add(-time.Minute)},
		clock,
		10*time.Minute,
	)

	status := checker.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.True(t, status.DatabaseConnected)
	assert.True(t, status.NATSConnected)
	assert.EqualValues(t, 3, status.OpenRooms)
	assert.Equal(t, 5, status.Connections)
	assert.Empty(t, status.Errors)
}

func TestChecker_Unhealthy(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)

	tests := []struct {
		name    string
		checker *Checker
		wantErr string
	}{
		{
			name: "database down",
			checker: NewChecker(fakePinger{err: errors.New("refused")}, fakeRooms{},
				fakeGateway{}, fakeReaper{running: true}, clock, time.Minute),
			wantErr: "database ping failed",
		},
		{
			name: "relay disconnected",
			checker: NewChecker(fakePinger{}, fakeRooms{},
				fakeGateway{enabled: true}, fakeReaper{running: true}, clock, time.Minute),
			wantErr: "NATS disconnected",
		},
		{
			name: "reaper stopped",
			checker: NewChecker(fakePinger{}, fakeRooms{},
				fakeGateway{}, fakeReaper{}, clock, time.Minute),
			wantErr: "reaper not running",
		},
		{
			name: "reaper stalled",
			checker: NewChecker(fakePinger{}, fakeRooms{},
				fakeGateway{}, fakeReaper{running: true, lastSweep: testNow.Add(-time.Hour)}, clock, time.Minute),
			wantErr: "no reaper sweep",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := tt.checker.Check(context.Background())
			assert.False(t, status.Healthy)
			require.NotEmpty(t, status.Errors)
			assert.Contains(t, strings.Join(status.Errors, "; "), tt.wantErr)
		})
	}
}

func TestChecker_RelayDisabledIsHealthy(t *testing.T) {
	checker := NewChecker(fakePinger{}, fakeRooms{}, fakeGateway{}, fakeReaper{running: true},
		clockwork.NewFakeClockAt(testNow), time.Minute)
	assert.True(t, checker.Check(context.Background()).Healthy)
}

func TestChecker_ServeHTTP(t *testing.T) {
	checker := NewChecker(fakePinger{err: errors.New("refused")}, fakeRooms{}, fakeGateway{}, fakeReaper{running: true},
		clockwork.NewFakeClockAt(testNow), time.Minute)

	rec := httptest.NewRecorder()
	checker.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/details", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["healthy"])
	assert.Equal(t, false, body["database_connected"])
}

func TestPrometheusExporter(t *testing.T) {
	checker := NewChecker(fakePinger{}, fakeRooms{n: 2}, fakeGateway{conns: 4}, fakeReaper{running: true, lastSweep: testNow},
		clockwork.NewFakeClockAt(testNow), time.Minute)
	exporter := NewPrometheusExporter(checker)

	out := exporter.Export(context.Background())
	assert.Contains(t, out, "parity_healthy 1\n")
	assert.Contains(t, out, "parity_open_rooms 2\n")
	assert.Contains(t, out, "parity_connections 4\n")
	assert.Contains(t, out, "parity_nats_connected 0\n")

	rec := httptest.NewRecorder()
	exporter.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# TYPE parity_healthy gauge")
}
