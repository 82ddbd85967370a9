package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mcdev12/parity/go/internal/events"
	"github.com/mcdev12/parity/go/internal/models"
	"github.com/mcdev12/parity/go/internal/rooms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRoomsApp struct {
	mock.Mock
}

func (m *MockRoomsApp) CreateRoom(ctx context.Context, participantID string) (string, models.Role, error) {
	args := m.Called(ctx, participantID)
	return args.String(0), args.Get(1).(models.Role), args.Error(2)
}

func (m *MockRoomsApp) JoinRoom(ctx context.Context, roomID, participantID string) (models.Role, error) {
	args := m.Called(ctx, roomID, participantID)
	return args.Get(0).(models.Role), args.Error(1)
}

func (m *MockRoomsApp) SubmitNumber(ctx context.Context, roomID, participantID string, number int) error {
	args := m.Called(ctx, roomID, participantID, number)
	return args.Error(0)
}

func (m *MockRoomsApp) Disconnect(ctx context.Context, participantID string) {
	m.Called(ctx, participantID)
}

func errorText(t *testing.T, env *events.Envelope) string {
	t.Helper()
	require.NotNil(t, env)
	require.Equal(t, events.TypeError, env.Event)
	var payload events.ErrorPayload
	require.NoError(t, env.Decode(&payload))
	return payload.Message
}

func TestDispatcher_Routes(t *testing.T) {
	ctx := context.Background()
	app := new(MockRoomsApp)
	d := NewDispatcher(app)

	app.On("CreateRoom", ctx, "p1").Return("room-1", models.RoleEven, nil).Once()
	assert.Nil(t, d.HandleMessage(ctx, "p1", []byte(`{"event":"createRoom"}`)))

	app.On("JoinRoom", ctx, "room-1", "p2").Return(models.RoleOdd, nil).Once()
	assert.Nil(t, d.HandleMessage(ctx, "p2", []byte(`{"event":"joinRoom","data":{"roomId":"room-1"}}`)))

	app.On("SubmitNumber", ctx, "room-1", "p2", 7).Return(nil).Once()
	assert.Nil(t, d.HandleMessage(ctx, "p2", []byte(`{"event":"submitNumber","data":{"roomId":"room-1","number":7}}`)))

	app.On("Disconnect", ctx, "p2").Return().Once()
	d.HandleDisconnect(ctx, "p2")

	app.AssertExpectations(t)
}

func TestDispatcher_ErrorMessages(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		message string
		setup   func(app *MockRoomsApp)
		want    string
	}{
		{
			name:    "malformed json",
			message: `{"event":`,
			want:    "Malformed message",
		},
		{
			name:    "unknown event",
			message: `{"event":"rematch"}`,
			want:    `Unknown event "rematch"`,
		},
		{
			name:    "join without data",
			message: `{"event":"joinRoom"}`,
			want:    "Invalid joinRoom request: roomId is required",
		},
		{
			name:    "submit without number",
			message: `{"event":"submitNumber","data":{"roomId":"room-1"}}`,
			want:    "Invalid submitNumber request: roomId and number are required",
		},
		{
			name:    "join missing room",
			message: `{"event":"joinRoom","data":{"roomId":"room-9"}}`,
			setup: func(app *MockRoomsApp) {
				app.On("JoinRoom", ctx, "room-9", "p1").Return(models.Role(""), fmt.Errorf("failed to join room: %w", rooms.ErrNotFound))
			},
			want: "Room not found",
		},
		{
			name:    "join full room",
			message: `{"event":"joinRoom","data":{"roomId":"room-1"}}`,
			setup: func(app *MockRoomsApp) {
				app.On("JoinRoom", ctx, "room-1", "p1").Return(models.Role(""), fmt.Errorf("failed to join room: %w", rooms.ErrRoomFull))
			},
			want: "Room is full",
		},
		{
			name:    "submit out of range",
			message: `{"event":"submitNumber","data":{"roomId":"room-1","number":12}}`,
			setup: func(app *MockRoomsApp) {
				app.On("SubmitNumber", ctx, "room-1", "p1", 12).Return(fmt.Errorf("%w: number must be between 1 and 9", rooms.ErrValidation))
			},
			want: "Invalid request: number must be between 1 and 9",
		},
		{
			name:    "submit after resolution",
			message: `{"event":"submitNumber","data":{"roomId":"room-1","number":3}}`,
			setup: func(app *MockRoomsApp) {
				app.On("SubmitNumber", ctx, "room-1", "p1", 3).Return(fmt.Errorf("failed to submit number: %w", rooms.ErrNotFound))
			},
			want: "Room not found",
		},
		{
			name:    "create store failure",
			message: `{"event":"createRoom"}`,
			setup: func(app *MockRoomsApp) {
				app.On("CreateRoom", ctx, "p1").Return("", models.Role(""), fmt.Errorf("failed to create room: %w", rooms.ErrStoreFailure))
			},
			want: "Could not create room",
		},
		{
			name:    "join store failure",
			message: `{"event":"joinRoom","data":{"roomId":"room-1"}}`,
			setup: func(app *MockRoomsApp) {
				app.On("JoinRoom", ctx, "room-1", "p1").Return(models.Role(""), fmt.Errorf("failed to join room: %w", rooms.ErrStoreFailure))
			},
			want: "Something went wrong, please try again",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := new(MockRoomsApp)
			if tt.setup != nil {
				tt.setup(app)
			}
			d := NewDispatcher(app)

			reply := d.HandleMessage(ctx, "p1", []byte(tt.message))
			assert.Equal(t, tt.want, errorText(t, reply))
			app.AssertExpectations(t)
		})
	}
}

func TestErrorEnvelope_WireShape(t *testing.T) {
	data, err := json.Marshal(errorEnvelope("Room not found"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"error","data":{"message":"Room not found"}}`, string(data))
}
