package rooms

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/parity/go/internal/events"
	"github.com/mcdev12/parity/go/internal/models"
	"github.com/rs/zerolog/log"
)

const createAttempts = 3

// RoomsRepository defines what the app layer needs from the repository
type RoomsRepository interface {
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id string) (*models.Room, error)
	JoinRoom(ctx context.Context, id, participantID string, startedAt time.Time) (*models.Room, models.Role, error)
	SubmitNumber(ctx context.Context, id, participantID string, number int) (*models.Room, bool, error)
	RetireRoom(ctx context.Context, id string) (*models.Room, error)
	ListRoomIDsByParticipant(ctx context.Context, participantID string) ([]string, error)
	CountOpenRooms(ctx context.Context, participantID string) (int, error)
	ListStartedRooms(ctx context.Context) ([]*models.Room, error)
}

// WaitingRegistry defines what the app needs from the waiting registry
type WaitingRegistry interface {
	Enqueue(ctx context.Context, participantID string) error
	Remove(ctx context.Context, participantID string) error
}

// Notifier delivers an event to specific participants, wherever they are connected.
type Notifier interface {
	Notify(ctx context.Context, participantIDs []string, env *events.Envelope) error
}

// Deadlines arms and disarms the per-room round timer.
type Deadlines interface {
	Schedule(roomID string, startedAt time.Time)
	Cancel(roomID string)
}

// Config holds room behaviour switches. The zero value is the literal contract:
// no server deadline and no forfeit on disconnect.
type Config struct {
	RoundDeadline       time.Duration
	ForfeitOnDisconnect bool
}

// App handles the room lifecycle and round resolution.
// It never caches a room: every operation goes through the repository.
type App struct {
	repo      RoomsRepository
	waiting   WaitingRegistry
	notifier  Notifier
	deadlines Deadlines
	clock     clockwork.Clock
	cfg       Config

	newID    func() (string, error)
	pickRole func() models.Role
}

// NewApp creates a new rooms App
func NewApp(repo RoomsRepository, waiting WaitingRegistry, notifier Notifier, clock clockwork.Clock, cfg Config) *App {
	return &App{
		repo:     repo,
		waiting:  waiting,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		newID:    newRoomID,
		pickRole: randomRole,
	}
}

// UseDeadlines wires the round timer. Without it the server accepts a
// submission whenever it arrives.
func (a *App) UseDeadlines(d Deadlines) {
	a.deadlines = d
}

// CreateRoom opens a room for participantID with a random role and
// acknowledges it to the creator.
func (a *App) CreateRoom(ctx context.Context, participantID string) (string, models.Role, error) {
	if participantID == "" {
		return "", "", fmt.Errorf("%w: participant is required", ErrValidation)
	}

	role := a.pickRole()

	for attempt := 1; ; attempt++ {
		id, err := a.newID()
		if err != nil {
			return "", "", fmt.Errorf("%w: failed to generate room id: %w", ErrStoreFailure, err)
		}

		room := &models.Room{
			ID:        id,
			Players:   []string{participantID},
			Roles:     map[string]models.Role{participantID: role},
			Numbers:   map[string]int{},
			CreatedAt: a.clock.Now().UTC(),
		}

		err = a.repo.CreateRoom(ctx, room)
		if errors.Is(err, errDuplicateID) && attempt < createAttempts {
			log.Warn().Str("room_id", id).Msg("room id collision, regenerating")
			continue
		}
		if err != nil {
			if errors.Is(err, errDuplicateID) {
				err = fmt.Errorf("%w: %w", ErrStoreFailure, err)
			}
			return "", "", fmt.Errorf("failed to create room: %w", err)
		}

		log.Info().
			Str("room_id", id).
			Str("participant_id", participantID).
			Str("role", string(role)).
			Msg("room created")

		// best effort: the room exists whether or not the registry write lands
		if err := a.waiting.Enqueue(ctx, participantID); err != nil {
			log.Error().Err(err).Str("participant_id", participantID).Msg("failed to register waiting participant")
		}

		a.notify(ctx, []string{participantID}, events.TypeRoomCreated, events.RoomCreatedPayload{
			RoomID:  id,
			Role:    string(role),
			Message: fmt.Sprintf("Room created. You are %s. Share the room id with your opponent.", role),
		})
		return id, role, nil
	}
}

// JoinRoom seats participantID in roomID and starts the round once both seats are taken.
func (a *App) JoinRoom(ctx context.Context, roomID, participantID string) (models.Role, error) {
	if roomID == "" || participantID == "" {
		return "", fmt.Errorf("%w: room id is required", ErrValidation)
	}

	now := a.clock.Now().UTC()
	room, role, err := a.repo.JoinRoom(ctx, roomID, participantID, now)
	if err != nil {
		return "", fmt.Errorf("failed to join room: %w", err)
	}

	log.Info().
		Str("room_id", roomID).
		Str("participant_id", participantID).
		Str("role", string(role)).
		Int("players", len(room.Players)).
		Msg("room joined")

	// queued before gameStart so the joiner sees its role first
	a.notify(ctx, []string{participantID}, events.TypeRoomJoined, events.RoomJoinedPayload{
		RoomID:  roomID,
		Role:    string(role),
		Message: fmt.Sprintf("Joined room. You are %s.", role),
	})

	if room.IsFull() {
		if opponent := room.Opponent(participantID); opponent != "" {
			a.leaveWaiting(ctx, opponent)
		}
		a.startRound(ctx, room, now)
	}
	return role, nil
}

// leaveWaiting removes participantID from the waiting registry unless another
// room they created is still open.
func (a *App) leaveWaiting(ctx context.Context, participantID string) {
	open, err := a.repo.CountOpenRooms(ctx, participantID)
	if err != nil {
		log.Error().Err(err).Str("participant_id", participantID).Msg("failed to count open rooms")
	}
	if open > 0 {
		log.Debug().
			Str("participant_id", participantID).
			Int("open_rooms", open).
			Msg("participant still waiting in another room")
		return
	}
	if err := a.waiting.Remove(ctx, participantID); err != nil {
		log.Error().Err(err).Str("participant_id", participantID).Msg("failed to remove waiting participant")
	}
}

func (a *App) startRound(ctx context.Context, room *models.Room, startedAt time.Time) {
	if a.deadlines != nil && a.cfg.RoundDeadline > 0 {
		a.deadlines.Schedule(room.ID, startedAt)
	}

	a.notify(ctx, room.Players, events.TypeGameStart, events.GameStartPayload{
		RoomID:  room.ID,
		Message: "Both players are here. Pick a number!",
	})
}

// SubmitNumber records participantID's number. The submitter whose merge
// completes the round resolves it and broadcasts the result; everyone else
// either waits or gets ErrNotFound.
func (a *App) SubmitNumber(ctx context.Context, roomID, participantID string, number int) error {
	if roomID == "" || participantID == "" {
		return fmt.Errorf("%w: room id is required", ErrValidation)
	}
	if number < models.MinNumber || number > models.MaxNumber {
		return fmt.Errorf("%w: number must be between %d and %d", ErrValidation, models.MinNumber, models.MaxNumber)
	}

	room, retired, err := a.repo.SubmitNumber(ctx, roomID, participantID, number)
	if err != nil {
		return fmt.Errorf("failed to submit number: %w", err)
	}

	if !retired {
		log.Debug().
			Str("room_id", roomID).
			Str("participant_id", participantID).
			Int("submitted", len(room.Numbers)).
			Msg("number recorded, waiting for opponent")
		return nil
	}

	a.cancelDeadline(roomID)

	result, err := Resolve(room)
	if err != nil {
		// the room is already gone; nothing left to retry
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to resolve round")
		return fmt.Errorf("%w: %w", ErrStoreFailure, err)
	}

	log.Info().
		Str("room_id", roomID).
		Str("winner", result.Winner).
		Int("sum", result.Sum).
		Bool("is_even", result.IsEven).
		Msg("round resolved")

	a.notify(ctx, room.Players, events.TypeGameResult, result)
	return nil
}

// ExpireRound retires a round whose deadline passed. A lone submitter wins by
// forfeit; with no submissions the round is cancelled. If the room already
// resolved this is a no-op.
func (a *App) ExpireRound(ctx context.Context, roomID string) error {
	room, err := a.repo.RetireRoom(ctx, roomID)
	if errors.Is(err, ErrNotFound) {
		log.Debug().Str("room_id", roomID).Msg("deadline fired for resolved room")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to expire round: %w", err)
	}

	switch len(room.Numbers) {
	case 0:
		log.Info().Str("room_id", roomID).Msg("round expired with no submissions")
		a.notify(ctx, room.Players, events.TypeGameCancelled, events.GameCancelledPayload{
			RoomID:  roomID,
			Message: "Time is up and nobody picked a number.",
		})
	case 1:
		var submitter string
		for participantID := range room.Numbers {
			submitter = participantID
		}
		result := forfeitResult(room, submitter, "timeout")
		log.Info().Str("room_id", roomID).Str("winner", submitter).Msg("round expired, lone submitter wins")
		a.notify(ctx, room.Players, events.TypeGameResult, result)
	default:
		result, err := Resolve(room)
		if err != nil {
			return fmt.Errorf("failed to resolve expired round: %w", err)
		}
		a.notify(ctx, room.Players, events.TypeGameResult, result)
	}
	return nil
}

// Disconnect cleans up after a participant whose connection went away.
func (a *App) Disconnect(ctx context.Context, participantID string) {
	if err := a.waiting.Remove(ctx, participantID); err != nil {
		log.Error().Err(err).Str("participant_id", participantID).Msg("failed to remove waiting entry")
	}

	log.Info().Str("participant_id", participantID).Msg("participant disconnected")

	if !a.cfg.ForfeitOnDisconnect {
		return
	}

	ids, err := a.repo.ListRoomIDsByParticipant(ctx, participantID)
	if err != nil {
		log.Error().Err(err).Str("participant_id", participantID).Msg("failed to look up rooms for forfeit")
		return
	}

	for _, id := range ids {
		room, err := a.repo.RetireRoom(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("room_id", id).Msg("failed to retire room on disconnect")
			continue
		}
		a.cancelDeadline(id)

		opponent := room.Opponent(participantID)
		if opponent == "" {
			log.Info().Str("room_id", id).Msg("creator left before anyone joined, room removed")
			continue
		}

		log.Info().Str("room_id", id).Str("winner", opponent).Msg("opponent disconnected, forfeit")
		a.notify(ctx, []string{opponent}, events.TypeGameResult, forfeitResult(room, opponent, "disconnect"))
	}
}

// GetRoom returns the current state of a room.
func (a *App) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	if roomID == "" {
		return nil, fmt.Errorf("%w: room id is required", ErrValidation)
	}
	room, err := a.repo.GetRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

// RecoverDeadlines re-arms round timers for rooms that were in play when the
// process last stopped.
func (a *App) RecoverDeadlines(ctx context.Context) error {
	if a.deadlines == nil || a.cfg.RoundDeadline <= 0 {
		return nil
	}

	started, err := a.repo.ListStartedRooms(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover deadlines: %w", err)
	}
	for _, room := range started {
		a.deadlines.Schedule(room.ID, *room.StartedAt)
	}

	log.Info().Int("rooms", len(started)).Msg("round deadlines recovered")
	return nil
}

func (a *App) cancelDeadline(roomID string) {
	if a.deadlines != nil {
		a.deadlines.Cancel(roomID)
	}
}

// notify delivers an event after the store has committed; a delivery failure
// is logged and never undoes the state change.
func (a *App) notify(ctx context.Context, participantIDs []string, t events.Type, payload any) {
	env, err := events.New(t, payload)
	if err != nil {
		log.Error().Err(err).Str("event", string(t)).Msg("failed to build event")
		return
	}
	if err := a.notifier.Notify(ctx, participantIDs, env); err != nil {
		log.Error().Err(err).Str("event", string(t)).Strs("participants", participantIDs).Msg("failed to deliver event")
	}
}

func newRoomID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func randomRole() models.Role {
	if rand.Intn(2) == 0 {
		return models.RoleEven
	}
	return models.RoleOdd
}
