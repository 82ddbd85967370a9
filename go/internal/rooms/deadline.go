package rooms

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DeadlineScheduler keeps one one-shot timer per started room. When a timer
// fires the room id is handed to the worker pool, which expires the round.
type DeadlineScheduler struct {
	clock      clockwork.Clock
	deadline   time.Duration
	numWorkers int
	workCh     chan string
	done       chan struct{}
	stopOnce   sync.Once

	activeTimers   map[string]*roundTimer
	activeTimersMu sync.Mutex
}

type roundTimer struct {
	timer clockwork.Timer
	stop  chan struct{}
}

// NewDeadlineScheduler creates a scheduler with the given round length and worker count.
func NewDeadlineScheduler(clock clockwork.Clock, deadline time.Duration, numWorkers int) *DeadlineScheduler {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	return &DeadlineScheduler{
		clock:        clock,
		deadline:     deadline,
		numWorkers:   numWorkers,
		workCh:       make(chan string, numWorkers*16),
		done:         make(chan struct{}),
		activeTimers: make(map[string]*roundTimer),
	}
}

// Schedule arms the timer for roomID relative to startedAt, replacing any
// existing timer for the room. A deadline already in the past fires at once.
// A fired deadline waits for a free worker rather than being dropped.
func (s *DeadlineScheduler) Schedule(roomID string, startedAt time.Time) {
	duration := startedAt.Add(s.deadline).Sub(s.clock.Now())
	if duration < 0 {
		duration = 0
	}

	rt := &roundTimer{
		timer: s.clock.NewTimer(duration),
		stop:  make(chan struct{}),
	}
	s.replaceTimer(roomID, rt)

	go func(id string, rt *roundTimer) {
		select {
		case <-rt.timer.Chan():
			s.removeTimer(id, rt)
			select {
			case s.workCh <- id:
				log.Debug().Str("room_id", id).Msg("round deadline fired")
			case <-s.done:
				log.Debug().Str("room_id", id).Msg("round deadline fired after shutdown")
			}
		case <-rt.stop:
		}
	}(roomID, rt)

	log.Debug().
		Str("room_id", roomID).
		Time("deadline", startedAt.Add(s.deadline)).
		Dur("duration", duration).
		Msg("scheduled round deadline")
}

// Cancel disarms the timer for roomID, if any.
func (s *DeadlineScheduler) Cancel(roomID string) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()

	if rt, exists := s.activeTimers[roomID]; exists {
		rt.halt()
		delete(s.activeTimers, roomID)
		log.Debug().Str("room_id", roomID).Msg("cancelled round deadline")
	}
}

// Pending returns the number of armed timers.
func (s *DeadlineScheduler) Pending() int {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	return len(s.activeTimers)
}

// stop releases deadlines still waiting to be handed to a worker.
func (s *DeadlineScheduler) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// replaceTimer swaps in a new timer for a room, cancelling the previous one
// under the same lock so no second timer can slip in between.
func (s *DeadlineScheduler) replaceTimer(roomID string, rt *roundTimer) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()

	if existing, exists := s.activeTimers[roomID]; exists {
		existing.halt()
		log.Debug().Str("room_id", roomID).Msg("replaced existing round deadline")
	}
	s.activeTimers[roomID] = rt
}

// removeTimer drops rt from the map unless it has already been replaced.
func (s *DeadlineScheduler) removeTimer(roomID string, rt *roundTimer) {
	s.activeTimersMu.Lock()
	defer s.activeTimersMu.Unlock()
	if s.activeTimers[roomID] == rt {
		delete(s.activeTimers, roomID)
	}
}

func (rt *roundTimer) halt() {
	if !rt.timer.Stop() {
		select {
		case <-rt.timer.Chan():
		default:
		}
	}
	close(rt.stop)
}
