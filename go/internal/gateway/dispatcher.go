package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mcdev12/parity/go/internal/events"
	"github.com/mcdev12/parity/go/internal/models"
	"github.com/mcdev12/parity/go/internal/rooms"
	"github.com/rs/zerolog/log"
)

// RoomsApp defines what the dispatcher needs from the rooms app.
// Successful operations acknowledge through the notifier; the dispatcher
// only answers failures.
type RoomsApp interface {
	CreateRoom(ctx context.Context, participantID string) (string, models.Role, error)
	JoinRoom(ctx context.Context, roomID, participantID string) (models.Role, error)
	SubmitNumber(ctx context.Context, roomID, participantID string, number int) error
	Disconnect(ctx context.Context, participantID string)
}

// Dispatcher routes inbound envelopes to the rooms app
type Dispatcher struct {
	app RoomsApp
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(app RoomsApp) *Dispatcher {
	return &Dispatcher{app: app}
}

// HandleMessage decodes one frame and runs the matching operation. It returns
// an error envelope for the sender, or nil on success.
func (d *Dispatcher) HandleMessage(ctx context.Context, participantID string, message []byte) *events.Envelope {
	var env events.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		log.Debug().Err(err).Str("participant_id", participantID).Msg("malformed client message")
		return errorEnvelope("Malformed message")
	}

	var err error
	switch env.Event {
	case events.TypeCreateRoom:
		_, _, err = d.app.CreateRoom(ctx, participantID)
		if err != nil && !errors.Is(err, rooms.ErrValidation) {
			return d.fail(participantID, env.Event, err, "Could not create room")
		}

	case events.TypeJoinRoom:
		var req events.JoinRoomRequest
		if err := env.Decode(&req); err != nil {
			return errorEnvelope("Invalid joinRoom request: roomId is required")
		}
		_, err = d.app.JoinRoom(ctx, req.RoomID, participantID)

	case events.TypeSubmitNumber:
		var req events.SubmitNumberRequest
		if err := env.Decode(&req); err != nil || req.Number == nil {
			return errorEnvelope("Invalid submitNumber request: roomId and number are required")
		}
		err = d.app.SubmitNumber(ctx, req.RoomID, participantID, *req.Number)

	default:
		return errorEnvelope(fmt.Sprintf("Unknown event %q", env.Event))
	}

	if err != nil {
		return d.fail(participantID, env.Event, err, "Something went wrong, please try again")
	}
	return nil
}

// HandleDisconnect tells the rooms app the participant is gone.
func (d *Dispatcher) HandleDisconnect(ctx context.Context, participantID string) {
	d.app.Disconnect(ctx, participantID)
}

func (d *Dispatcher) fail(participantID string, event events.Type, err error, fallback string) *events.Envelope {
	msg := errorMessage(err, fallback)

	logEvent := log.Warn()
	if errors.Is(err, rooms.ErrStoreFailure) {
		logEvent = log.Error()
	}
	logEvent.Err(err).
		Str("participant_id", participantID).
		Str("event", string(event)).
		Msg("client request failed")

	return errorEnvelope(msg)
}

// errorMessage maps an app error to the text shown to the player.
func errorMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, rooms.ErrNotFound):
		return "Room not found"
	case errors.Is(err, rooms.ErrRoomFull):
		return "Room is full"
	case errors.Is(err, rooms.ErrValidation):
		return "Invalid request: " + validationDetail(err)
	default:
		return fallback
	}
}

// validationDetail strips the wrapping down to the validation reason.
func validationDetail(err error) string {
	prefix := rooms.ErrValidation.Error() + ": "
	for e := err; e != nil; e = errors.Unwrap(e) {
		if errors.Unwrap(e) == rooms.ErrValidation {
			return strings.TrimPrefix(e.Error(), prefix)
		}
	}
	return strings.TrimPrefix(err.Error(), prefix)
}

func errorEnvelope(message string) *events.Envelope {
	env, err := events.New(events.TypeError, events.ErrorPayload{Message: message})
	if err != nil {
		return &events.Envelope{Event: events.TypeError}
	}
	return env
}
