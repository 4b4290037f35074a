// Package scheduler runs the periodic background tasks (presence sweep,
// export job polling) on robfig/cron.
//
// Each task runs with its own timeout under a base context that is cancelled
// on Stop. A task still running when its next tick fires is skipped, and a
// panicking task is recovered and logged.
package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Task is one unit of periodic work.
type Task func(ctx context.Context) error

// ErrStopped is returned by Add after Stop.
var ErrStopped = errors.New("scheduler stopped")

// Scheduler wraps a cron instance with zerolog logging and cancellation.
type Scheduler struct {
	mu      sync.Mutex
	c       *cron.Cron
	loc     *time.Location
	log     zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	names   map[cron.EntryID]string
}

// New builds a stopped scheduler in the given IANA timezone ("" = local).
func New(timezone string, logger *zerolog.Logger) (*Scheduler, error) {
	loc := time.Local
	if tz := strings.TrimSpace(timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, err
		}
		loc = l
	}
	l := log.Logger
	if logger != nil {
		l = *logger
	}
	l = l.With().Str("component", "scheduler").Logger()

	cl := cronLogger{l: l}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		c: cron.New(
			cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		loc:    loc,
		log:    l,
		ctx:    ctx,
		cancel: cancel,
		names:  map[cron.EntryID]string{},
	}, nil
}

// Add registers task under spec (five-field cron or @every/@hourly
// descriptors). timeout bounds each run; zero means no timeout.
func (s *Scheduler) Add(name, spec string, timeout time.Duration, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	id, err := s.c.AddFunc(spec, func() { s.run(name, timeout, task) })
	if err != nil {
		return err
	}
	s.names[id] = name
	s.log.Info().Str("task", name).Str("spec", spec).Msg("task scheduled")
	return nil
}

func (s *Scheduler) run(name string, timeout time.Duration, task Task) {
	ctx := s.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	err := task(ctx)
	ev := s.log.Debug()
	if err != nil {
		ev = s.log.Error().Err(err)
	}
	ev.Str("task", name).Dur("took", time.Since(start)).Msg("task finished")
}

// Start begins firing scheduled tasks.
func (s *Scheduler) Start() {
	s.c.Start()
	s.log.Info().Str("tz", s.loc.String()).Int("tasks", len(s.c.Entries())).Msg("scheduler started")
}

// Next reports the next run time of the named task.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.c.Entries() {
		if s.names[e.ID] == name {
			return e.Next, true
		}
	}
	return time.Time{}, false
}

// Stop cancels running tasks and waits for them to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	done := s.c.Stop()
	s.cancel()
	select {
	case <-done.Done():
		s.log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
