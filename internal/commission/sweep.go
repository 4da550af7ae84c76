package commission

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Sweeper schedules the periodic reclaim of expired reservations.
type Sweeper struct {
	cron     *cron.Cron
	service  *Service
	schedule string
	logger   *slog.Logger
}

func NewSweeper(service *Service, schedule string, logger *slog.Logger) *Sweeper {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))
	return &Sweeper{cron: c, service: service, schedule: schedule, logger: logger}
}

// Start registers the sweep job and starts the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.run); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("reservation sweep scheduled", "schedule", s.schedule)
	return nil
}

// Stop stops the scheduler and returns a context that is done once any
// in-flight sweep finishes.
func (s *Sweeper) Stop() context.Context { return s.cron.Stop() }

func (s *Sweeper) run() {
	s.service.CleanupExpired(context.Background())
}
