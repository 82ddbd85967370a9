package waiting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcdev12/parity/go/internal/models"
)

// ErrStoreFailure wraps any persistence failure.
var ErrStoreFailure = errors.New("store unavailable")

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository implements waiting registry persistence on Postgres.
type Repository struct {
	db DB
}

// NewRepository creates a new waiting repository
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// Add parks participantID. Re-adding refreshes joined_at so a creator who opens
// another room is not swept on the first room's timeline.
func (r *Repository) Add(ctx context.Context, participantID string, joinedAt time.Time) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO waiting_players (participant_id, joined_at)
		 VALUES ($1, $2)
		 ON CONFLICT (participant_id)
		 DO UPDATE SET joined_at = GREATEST(waiting_players.joined_at, EXCLUDED.joined_at)`,
		participantID, joinedAt,
	)
	if err != nil {
		return wrap("add waiting player", err)
	}
	return nil
}

// Remove deletes participantID's entry; removing an absent entry is not an error.
func (r *Repository) Remove(ctx context.Context, participantID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM waiting_players WHERE participant_id = $1`, participantID); err != nil {
		return wrap("remove waiting player", err)
	}
	return nil
}

// List returns entries oldest first.
func (r *Repository) List(ctx context.Context) ([]models.WaitingEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT participant_id, joined_at FROM waiting_players ORDER BY joined_at ASC, participant_id ASC`)
	if err != nil {
		return nil, wrap("list waiting players", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.WaitingEntry, error) {
		var e models.WaitingEntry
		err := row.Scan(&e.ParticipantID, &e.JoinedAt)
		return e, err
	})
	if err != nil {
		return nil, wrap("list waiting players", err)
	}
	return entries, nil
}

// DeleteJoinedBefore removes entries older than cutoff.
func (r *Repository) DeleteJoinedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM waiting_players WHERE joined_at < $1`, cutoff)
	if err != nil {
		return 0, wrap("delete expired waiting players", err)
	}
	return tag.RowsAffected(), nil
}

func wrap(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: failed to %s: %w", ErrStoreFailure, op, err)
}
