package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/parity/go/internal/gateway"
	"github.com/mcdev12/parity/go/internal/health"
	"github.com/mcdev12/parity/go/internal/reaper"
	"github.com/mcdev12/parity/go/internal/rooms"
	"github.com/mcdev12/parity/go/internal/waiting"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Rooms     *rooms.Service
	RoomsApp  *rooms.App
	Waiting   *waiting.App
	Reaper    *reaper.Reaper
	Deadlines *rooms.DeadlineScheduler
	Gateway   *gateway.Service
	Health    *health.Checker
}

func setupServices(pool *pgxpool.Pool, config *Config, natsURL string) (*Services, error) {
	// Wire up dependency injection chain
	// Database layer → Repository layer → App layer → Service layer
	clock := clockwork.NewRealClock()

	// Gateway first: the rooms app needs its notifier
	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.ConnectionConfig = config.ConnectionConfig()
	if natsURL != "" {
		gatewayConfig.EnableRelay = true
		gatewayConfig.RelayConfig.URL = natsURL
	}
	gatewayService, err := gateway.NewService(gatewayConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	// Waiting registry
	waitingRepo := waiting.NewRepository(pool)
	waitingApp := waiting.NewApp(waitingRepo, clock)

	// Rooms
	roomsRepo := rooms.NewRepository(pool)
	roomsApp := rooms.NewApp(roomsRepo, waitingApp, gatewayService.Notifier(), clock, rooms.Config{
		RoundDeadline:       config.Rooms.RoundDeadline,
		ForfeitOnDisconnect: config.Rooms.ForfeitOnDisconnect,
	})
	roomsService := rooms.NewService(roomsApp)

	var deadlines *rooms.DeadlineScheduler
	if config.Rooms.RoundDeadline > 0 {
		deadlines = rooms.NewDeadlineScheduler(clock, config.Rooms.RoundDeadline, config.Rooms.DeadlineWorkers)
		roomsApp.UseDeadlines(deadlines)
	}

	gatewayService.Bind(roomsApp)

	// Reaper
	roomReaper := reaper.NewReaper(roomsRepo, waitingRepo, clock, config.ReaperConfig())

	// Health: a reaper that misses two sweeps is considered stuck
	checker := health.NewChecker(pool, roomsRepo, gatewayService, roomReaper, clock, 2*config.Reaper.Interval)

	return &Services{
		Rooms:     roomsService,
		RoomsApp:  roomsApp,
		Waiting:   waitingApp,
		Reaper:    roomReaper,
		Deadlines: deadlines,
		Gateway:   gatewayService,
		Health:    checker,
	}, nil
}

// start launches the background workers. They stop when ctx is cancelled.
func (s *Services) start(ctx context.Context) {
	go func() {
		if err := s.Gateway.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		if err := s.Reaper.Run(ctx); err != nil {
			log.Error().Err(err).Msg("reaper failed")
		}
	}()

	if s.Deadlines != nil {
		go s.Deadlines.Run(ctx, s.RoomsApp.ExpireRound)

		if err := s.RoomsApp.RecoverDeadlines(ctx); err != nil {
			log.Error().Err(err).Msg("failed to recover round deadlines")
		}
	}
}
