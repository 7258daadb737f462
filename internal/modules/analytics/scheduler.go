package analytics

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultSchedule = "0 1 * * *"

const rollupTimeout = 10 * time.Minute

// Scheduler runs the nightly rollup on a cron schedule evaluated in UTC.
type Scheduler struct {
	cron     *cron.Cron
	service  *Service
	schedule string
	loggerf  func(format string, args ...interface{})
}

func NewScheduler(service *Service, schedule string, loggerf func(format string, args ...interface{})) *Scheduler {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	cronLogger := cron.PrintfLogger(log.Default())
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	return &Scheduler{cron: c, service: service, schedule: schedule, loggerf: loggerf}
}

// Start registers the rollup job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.runDaily); err != nil {
		s.loggerf("level=error msg=failed to schedule analytics job schedule=%q err=%v", s.schedule, err)
		return err
	}
	s.loggerf("level=info msg=scheduled analytics job schedule=%q", s.schedule)
	s.cron.Start()
	return nil
}

// Stop stops scheduling; the returned context is done once a running job finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runDaily() {
	ctx, cancel := context.WithTimeout(context.Background(), rollupTimeout)
	defer cancel()
	if err := s.service.GenerateDailyAnalytics(ctx); err != nil {
		s.loggerf("level=error msg=daily analytics job finished with errors err=%v", err)
	}
}
