package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/mcdev12/parity/go/internal/models"
	"github.com/mcdev12/parity/go/internal/sqlutil"
)

const roomColumns = "id, players, numbers, roles, created_at, started_at"

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	sqlutil.TxBeginner
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements room persistence on Postgres.
// Every mutation is a single conditional statement or a short transaction
// scoped by room id, so concurrent events on the same room serialize on its row lock.
type Repository struct {
	db DB
}

// NewRepository creates a new rooms repository
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// CreateRoom inserts a new one-player room.
func (r *Repository) CreateRoom(ctx context.Context, room *models.Room) error {
	roles, err := json.Marshal(room.Roles)
	if err != nil {
		return fmt.Errorf("%w: failed to encode roles: %w", ErrStoreFailure, err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO game_rooms (id, players, numbers, roles, created_at)
		 VALUES ($1, $2, '{}'::jsonb, $3::jsonb, $4)`,
		room.ID, room.Players, string(roles), room.CreatedAt,
	)
	if err != nil {
		if sqlutil.IsUniqueViolation(err) {
			return errDuplicateID
		}
		return r.wrap("create room", err)
	}
	return nil
}

// GetRoom retrieves a room by id
func (r *Repository) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	room, err := scanRoom(r.db.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM game_rooms WHERE id = $1`, id))
	if err != nil {
		return nil, r.wrap("get room", err)
	}
	return room, nil
}

// JoinRoom seats participantID as the second player with the role
// complementary to the first player's, and stamps started_at.
func (r *Repository) JoinRoom(ctx context.Context, id, participantID string, startedAt time.Time) (*models.Room, models.Role, error) {
	var (
		joined *models.Room
		role   models.Role
	)

	err := sqlutil.Run(ctx, r.db, func(tx pgx.Tx) error {
		var (
			players []string
			roles   map[string]models.Role
		)
		err := tx.QueryRow(ctx,
			`SELECT players, roles FROM game_rooms WHERE id = $1 FOR UPDATE`, id,
		).Scan(&players, &roles)
		if err != nil {
			return err
		}

		if len(players) >= models.MaxPlayers {
			return ErrRoomFull
		}
		for _, p := range players {
			if p == participantID {
				return fmt.Errorf("%w: already seated in room", ErrValidation)
			}
		}

		role = models.RoleEven
		if len(players) > 0 {
			role = roles[players[0]].Complement()
		}

		joined, err = scanRoom(tx.QueryRow(ctx,
			`UPDATE game_rooms
			 SET players = array_append(players, $2::text),
			     roles = roles || jsonb_build_object($2::text, $3::text),
			     started_at = $4
			 WHERE id = $1 AND cardinality(players) = $5
			 RETURNING `+roomColumns,
			id, participantID, string(role), sqlutil.ToTimestamptz(&startedAt), len(players),
		))
		if errors.Is(err, pgx.ErrNoRows) {
			// the row is locked, so this only happens if the count moved underneath us
			return ErrRoomFull
		}
		return err
	})
	if err != nil {
		return nil, "", r.wrap("join room", err)
	}
	return joined, role, nil
}

// SubmitNumber merges {participantID: number} into the room and, if that
// completes the round, deletes the room in the same transaction.
// retired is true only for the caller whose transaction performed the delete.
func (r *Repository) SubmitNumber(ctx context.Context, id, participantID string, number int) (room *models.Room, retired bool, err error) {
	err = sqlutil.Run(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		room, err = scanRoom(tx.QueryRow(ctx,
			`UPDATE game_rooms
			 SET numbers = numbers || jsonb_build_object($2::text, $3::int)
			 WHERE id = $1 AND roles ? $2::text
			 RETURNING `+roomColumns,
			id, participantID, number,
		))
		if err != nil {
			return err
		}

		if !room.Complete() {
			return nil
		}

		tag, err := tx.Exec(ctx, `DELETE FROM game_rooms WHERE id = $1`, id)
		if err != nil {
			return err
		}
		retired = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return nil, false, r.wrap("submit number", err)
	}
	return room, retired, nil
}

// RetireRoom deletes the room and returns its final state.
// Only one caller can retire a given room; the rest get ErrNotFound.
func (r *Repository) RetireRoom(ctx context.Context, id string) (*models.Room, error) {
	room, err := scanRoom(r.db.QueryRow(ctx,
		`DELETE FROM game_rooms WHERE id = $1 RETURNING `+roomColumns, id))
	if err != nil {
		return nil, r.wrap("retire room", err)
	}
	return room, nil
}

// ListRoomIDsByParticipant returns the ids of every room participantID is seated in.
func (r *Repository) ListRoomIDsByParticipant(ctx context.Context, participantID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id FROM game_rooms WHERE players @> ARRAY[$1::text] ORDER BY created_at`, participantID)
	if err != nil {
		return nil, r.wrap("list rooms by participant", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, r.wrap("list rooms by participant", err)
	}
	return ids, nil
}

// CountOpenRooms returns how many rooms participantID created that still wait for an opponent.
func (r *Repository) CountOpenRooms(ctx context.Context, participantID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM game_rooms WHERE players @> ARRAY[$1::text] AND cardinality(players) = 1`,
		participantID).Scan(&n)
	if err != nil {
		return 0, r.wrap("count open rooms", err)
	}
	return n, nil
}

// ListStartedRooms returns every full room that has not resolved yet.
func (r *Repository) ListStartedRooms(ctx context.Context) ([]*models.Room, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+roomColumns+` FROM game_rooms WHERE started_at IS NOT NULL ORDER BY started_at`)
	if err != nil {
		return nil, r.wrap("list started rooms", err)
	}
	started, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Room, error) {
		return scanRoom(row)
	})
	if err != nil {
		return nil, r.wrap("list started rooms", err)
	}
	return started, nil
}

// DeleteRoomsCreatedBefore removes every room created before cutoff.
func (r *Repository) DeleteRoomsCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM game_rooms WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, r.wrap("delete expired rooms", err)
	}
	return tag.RowsAffected(), nil
}

// CountRooms returns the number of rooms still in the store.
func (r *Repository) CountRooms(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM game_rooms`).Scan(&n); err != nil {
		return 0, r.wrap("count rooms", err)
	}
	return n, nil
}

func scanRoom(row pgx.Row) (*models.Room, error) {
	var (
		room      models.Room
		startedAt pgtype.Timestamptz
	)
	if err := row.Scan(&room.ID, &room.Players, &room.Numbers, &room.Roles, &room.CreatedAt, &startedAt); err != nil {
		return nil, err
	}
	room.StartedAt = sqlutil.FromTimestamptz(startedAt)
	if room.Numbers == nil {
		room.Numbers = make(map[string]int)
	}
	return &room, nil
}

func (r *Repository) wrap(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRoomFull), errors.Is(err, ErrValidation):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: failed to %s: %w", ErrStoreFailure, op, err)
	}
}
