package rooms

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mcdev12/parity/go/internal/events"
	"github.com/mcdev12/parity/go/internal/models"
	"github.com/stretchr/testify/mock"
)

// --- RoomsRepository ---

type MockRoomsRepository struct {
	mock.Mock
}

func (m *MockRoomsRepository) CreateRoom(ctx context.Context, room *models.Room) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *MockRoomsRepository) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	args := m.Called(ctx, id)
	room, _ := args.Get(0).(*models.Room)
	return room, args.Error(1)
}

func (m *MockRoomsRepository) JoinRoom(ctx context.Context, id, participantID string, startedAt time.Time) (*models.Room, models.Role, error) {
	args := m.Called(ctx, id, participantID, startedAt)
	room, _ := args.Get(0).(*models.Room)
	return room, args.Get(1).(models.Role), args.Error(2)
}

func (m *MockRoomsRepository) SubmitNumber(ctx context.Context, id, participantID string, number int) (*models.Room, bool, error) {
	args := m.Called(ctx, id, participantID, number)
	room, _ := args.Get(0).(*models.Room)
	return room, args.Bool(1), args.Error(2)
}

func (m *MockRoomsRepository) RetireRoom(ctx context.Context, id string) (*models.Room, error) {
	args := m.Called(ctx, id)
	room, _ := args.Get(0).(*models.Room)
	return room, args.Error(1)
}

func (m *MockRoomsRepository) ListRoomIDsByParticipant(ctx context.Context, participantID string) ([]string, error) {
	args := m.Called(ctx, participantID)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *MockRoomsRepository) CountOpenRooms(ctx context.Context, participantID string) (int, error) {
	args := m.Called(ctx, participantID)
	return args.Int(0), args.Error(1)
}

func (m *MockRoomsRepository) ListStartedRooms(ctx context.Context) ([]*models.Room, error) {
	args := m.Called(ctx)
	started, _ := args.Get(0).([]*models.Room)
	return started, args.Error(1)
}

// --- WaitingRegistry ---

type MockWaitingRegistry struct {
	mock.Mock
}

func (m *MockWaitingRegistry) Enqueue(ctx context.Context, participantID string) error {
	args := m.Called(ctx, participantID)
	return args.Error(0)
}

func (m *MockWaitingRegistry) Remove(ctx context.Context, participantID string) error {
	args := m.Called(ctx, participantID)
	return args.Error(0)
}

// --- Deadlines ---

type MockDeadlines struct {
	mock.Mock
}

func (m *MockDeadlines) Schedule(roomID string, startedAt time.Time) {
	m.Called(roomID, startedAt)
}

func (m *MockDeadlines) Cancel(roomID string) {
	m.Called(roomID)
}

// --- Notifier ---

type sentEvent struct {
	To    []string
	Event events.Type
	Data  json.RawMessage
}

// recordingNotifier keeps every event in delivery order.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentEvent
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, participantIDs []string, env *events.Envelope) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentEvent{
		To:    append([]string(nil), participantIDs...),
		Event: env.Event,
		Data:  env.Data,
	})
	return n.err
}

func (n *recordingNotifier) events() []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentEvent(nil), n.sent...)
}

func (n *recordingNotifier) ofType(t events.Type) []sentEvent {
	var out []sentEvent
	for _, e := range n.events() {
		if e.Event == t {
			out = append(out, e)
		}
	}
	return out
}
