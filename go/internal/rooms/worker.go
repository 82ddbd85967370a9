package rooms

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Run starts the worker pool that expires rounds whose timers fired and
// blocks until ctx is cancelled. Remaining timers are disarmed on the way out.
func (s *DeadlineScheduler) Run(ctx context.Context, expire func(ctx context.Context, roomID string) error) {
	log.Info().
		Int("workers", s.numWorkers).
		Dur("round_deadline", s.deadline).
		Msg("round deadline scheduler started")

	var wg sync.WaitGroup
	for i := 0; i < s.numWorkers; i++ {
		wg.Add(1)
		go s.worker(ctx, &wg, i, expire)
	}

	<-ctx.Done()
	wg.Wait()
	s.stop()

	s.activeTimersMu.Lock()
	for roomID, rt := range s.activeTimers {
		rt.halt()
		delete(s.activeTimers, roomID)
	}
	s.activeTimersMu.Unlock()

	log.Info().Msg("round deadline scheduler stopped")
}

// worker processes expired rounds from the work channel
func (s *DeadlineScheduler) worker(ctx context.Context, wg *sync.WaitGroup, workerID int, expire func(ctx context.Context, roomID string) error) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Int("worker_id", workerID).Msg("deadline worker shutting down")
			return
		case roomID := <-s.workCh:
			log.Info().
				Str("room_id", roomID).
				Int("worker_id", workerID).
				Msg("worker expiring round")

			if err := expire(ctx, roomID); err != nil {
				log.Error().
					Err(err).
					Str("room_id", roomID).
					Int("worker_id", workerID).
					Msg("failed to expire round")
			}
		}
	}
}
