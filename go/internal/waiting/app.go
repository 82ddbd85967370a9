package waiting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/parity/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrValidation is returned for an empty participant id.
var ErrValidation = errors.New("invalid request")

// WaitingRepository defines what the app layer needs from the repository
type WaitingRepository interface {
	Add(ctx context.Context, participantID string, joinedAt time.Time) error
	Remove(ctx context.Context, participantID string) error
	List(ctx context.Context) ([]models.WaitingEntry, error)
	DeleteJoinedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// App is the waiting registry: a durable FIFO of participants awaiting a
// partner. Pairing happens only through shared room ids, so nothing pops
// from this queue yet; it is kept as the hook for blind matchmaking.
type App struct {
	repo  WaitingRepository
	clock clockwork.Clock
}

// NewApp creates a new waiting registry
func NewApp(repo WaitingRepository, clock clockwork.Clock) *App {
	return &App{
		repo:  repo,
		clock: clock,
	}
}

// Enqueue parks participantID at the back of the queue.
func (a *App) Enqueue(ctx context.Context, participantID string) error {
	if participantID == "" {
		return fmt.Errorf("%w: participant is required", ErrValidation)
	}
	if err := a.repo.Add(ctx, participantID, a.clock.Now().UTC()); err != nil {
		return fmt.Errorf("failed to enqueue participant: %w", err)
	}
	log.Debug().Str("participant_id", participantID).Msg("participant waiting")
	return nil
}

// Remove takes participantID out of the queue, if present.
func (a *App) Remove(ctx context.Context, participantID string) error {
	if participantID == "" {
		return nil
	}
	if err := a.repo.Remove(ctx, participantID); err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}
	return nil
}

// List returns the queue oldest first.
func (a *App) List(ctx context.Context) ([]models.WaitingEntry, error) {
	entries, err := a.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting participants: %w", err)
	}
	return entries, nil
}
