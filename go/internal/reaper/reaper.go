package reaper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// RoomStore deletes rooms by age.
type RoomStore interface {
	DeleteRoomsCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// WaitingStore deletes waiting entries by age.
type WaitingStore interface {
	DeleteJoinedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Config struct {
	Interval   time.Duration
	RoomTTL    time.Duration
	WaitingTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:   5 * time.Minute,
		RoomTTL:    30 * time.Minute,
		WaitingTTL: 5 * time.Minute,
	}
}

// Reaper periodically garbage-collects abandoned rooms and stale waiting
// entries. It is not on the resolution path; a failed sweep is retried on
// the next tick.
type Reaper struct {
	rooms   RoomStore
	waiting WaitingStore
	clock   clockwork.Clock
	config  Config

	mu        sync.Mutex
	running   bool
	lastSweep time.Time
}

func NewReaper(rooms RoomStore, waiting WaitingStore, clock clockwork.Clock, cfg Config) *Reaper {
	return &Reaper{
		rooms:   rooms,
		waiting: waiting,
		clock:   clock,
		config:  cfg,
	}
}

// Run sweeps immediately, then on every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reaper already running")
	}
	r.running = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	ticker := r.clock.NewTicker(r.config.Interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", r.config.Interval).
		Dur("room_ttl", r.config.RoomTTL).
		Dur("waiting_ttl", r.config.WaitingTTL).
		Msg("reaper started")

	r.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("reaper stopped")
			return nil
		case <-ticker.Chan():
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one collection pass. Each half is independent: a failure in
// one is logged and does not skip the other.
func (r *Reaper) Sweep(ctx context.Context) (roomsDeleted, waitingDeleted int64, err error) {
	now := r.clock.Now()

	roomsDeleted, roomErr := r.rooms.DeleteRoomsCreatedBefore(ctx, now.Add(-r.config.RoomTTL))
	if roomErr != nil {
		log.Error().Err(roomErr).Msg("failed to sweep expired rooms")
	}

	waitingDeleted, waitErr := r.waiting.DeleteJoinedBefore(ctx, now.Add(-r.config.WaitingTTL))
	if waitErr != nil {
		log.Error().Err(waitErr).Msg("failed to sweep expired waiting entries")
	}

	r.mu.Lock()
	r.lastSweep = now
	r.mu.Unlock()

	if roomsDeleted > 0 || waitingDeleted > 0 {
		log.Info().
			Int64("rooms", roomsDeleted).
			Int64("waiting", waitingDeleted).
			Msg("reaped expired entries")
	}

	return roomsDeleted, waitingDeleted, errors.Join(roomErr, waitErr)
}

// Stats reports whether Run is active and when the last sweep happened.
func (r *Reaper) Stats() (running bool, lastSweep time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running, r.lastSweep
}
