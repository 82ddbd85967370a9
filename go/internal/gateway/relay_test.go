package gateway

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mcdev12/parity/go/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startNATS(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping NATS container in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("NATS container unavailable: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "4222/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("nats://%s:%s", host, port.Port())
}

func TestRelay_DeliversAcrossInstances(t *testing.T) {
	url := startNATS(t)

	cfg := DefaultConfig()
	cfg.EnableRelay = true
	cfg.RelayConfig.URL = url

	instanceA := newTestGatewayWithConfig(t, cfg)
	instanceB := newTestGatewayWithConfig(t, cfg)

	alice, aliceID := connectParticipant(t, instanceA)
	bob, bobID := connectParticipant(t, instanceB)

	// a round resolved on instance A reaches both players
	env, err := events.New(events.TypeGameResult, events.GameResultPayload{
		RoomID:  "room-1",
		Winner:  aliceID,
		Sum:     7,
		IsEven:  false,
		Numbers: map[string]int{aliceID: 3, bobID: 4},
	})
	require.NoError(t, err)
	require.NoError(t, instanceA.service.Notifier().Notify(context.Background(), []string{aliceID, bobID}, env))

	for _, conn := range []struct {
		name string
		env  events.Envelope
	}{
		{"alice", readEnvelope(t, alice)},
		{"bob", readEnvelope(t, bob)},
	} {
		assert.Equal(t, events.TypeGameResult, conn.env.Event, conn.name)
		var result events.GameResultPayload
		require.NoError(t, conn.env.Decode(&result))
		assert.Equal(t, aliceID, result.Winner, conn.name)
		assert.Equal(t, 7, result.Sum, conn.name)
	}
}

func TestRelay_ConnectFailure(t *testing.T) {
	cfg := DefaultRelayConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.MaxReconnects = 0

	_, err := NewRelay(NewConnectionManager(DefaultConnectionConfig()), cfg)
	assert.Error(t, err)
}
