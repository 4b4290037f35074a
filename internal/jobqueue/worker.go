// Package jobqueue implements the claim/execute/finalize cycle shared by every
// asynchronous job table.
//
// A Worker is parameterized by a GORM model embedding domain.JobState. Each
// RunOnce call:
//
//  1. selects up to BatchSize NEW rows, oldest first;
//  2. claims each row with a conditional UPDATE (NEW -> IN_PROGRESS,
//     retries_count + 1), skipping rows another worker claimed first;
//  3. fails rows whose retry count exceeds MaxRetries without executing them;
//  4. waits a random jitter, then executes the handler;
//  5. finalizes the row as COMPLETED (with result columns) or FAILED.
//
// Follow-up work (AfterSuccess) runs after the row is COMPLETED; its errors
// are logged and never revert the row.
//
// Overlapping RunOnce calls, in one process or many, are safe: the claim is a
// single atomic statement, so a losing worker sees zero affected rows.
package jobqueue

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-live-presence/internal/domain"
	"github.com/tbourn/go-live-presence/internal/repo"
)

var jobsFinalized = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "jobs_finalized_total",
		Help: "Jobs moved to a terminal status, by job type and status.",
	},
	[]string{"job", "status"},
)

func init() {
	prometheus.MustRegister(jobsFinalized)
}

// Job is implemented by pointers to models embedding domain.JobState.
type Job interface {
	State() *domain.JobState
}

// Result carries what a successful execution learned. Columns are written to
// the row together with the COMPLETED status.
type Result struct {
	Message string
	Columns map[string]any
}

// Handler executes one job type.
type Handler[T any] interface {
	Name() string
	Execute(ctx context.Context, job *T) (Result, error)
	AfterSuccess(ctx context.Context, job *T, res Result) error
}

// Config tunes a Worker. Zero values fall back to DefaultConfig.
type Config struct {
	BatchSize  int
	MaxRetries int
	MaxJitter  time.Duration

	// Sleep and Jitter are test seams.
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func(limit time.Duration) time.Duration
}

// DefaultConfig returns batch size 2, three attempts and up to 5s jitter.
func DefaultConfig() Config {
	return Config{BatchSize: 2, MaxRetries: 3, MaxJitter: 5 * time.Second}
}

// Summary reports what one RunOnce call did.
type Summary struct {
	Selected  int `json:"selected"`
	Claimed   int `json:"claimed"`
	Lost      int `json:"lost"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Worker drives one job table through the claim/execute/finalize cycle.
type Worker[T any, PT interface {
	*T
	Job
}] struct {
	db      *gorm.DB
	handler Handler[T]
	cfg     Config
	log     zerolog.Logger
}

// New builds a Worker for the table behind T.
func New[T any, PT interface {
	*T
	Job
}](db *gorm.DB, h Handler[T], cfg Config, logger *zerolog.Logger) *Worker[T, PT] {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.MaxJitter < 0 {
		cfg.MaxJitter = 0
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	if cfg.Jitter == nil {
		cfg.Jitter = uniformJitter
	}
	l := log.Logger
	if logger != nil {
		l = *logger
	}
	return &Worker[T, PT]{
		db:      db,
		handler: h,
		cfg:     cfg,
		log:     l.With().Str("job", h.Name()).Logger(),
	}
}

// RunOnce processes one batch. The returned error reports store failures
// only; job failures are recorded on the rows.
func (w *Worker[T, PT]) RunOnce(ctx context.Context) (Summary, error) {
	ctx, span := otel.Tracer("jobqueue/Worker").Start(ctx, "RunOnce")
	defer span.End()
	span.SetAttributes(attribute.String("job.type", w.handler.Name()))

	var sum Summary
	rows, err := repo.SelectNewJobs[T](ctx, w.db, w.cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		return sum, fmt.Errorf("select %s jobs: %w", w.handler.Name(), err)
	}
	sum.Selected = len(rows)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for i := range rows {
		id := PT(&rows[i]).State().ID
		g.Go(func() error {
			o, err := w.process(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch o {
			case outcomeLost:
				sum.Lost++
			case outcomeCompleted:
				sum.Claimed++
				sum.Completed++
			case outcomeFailed:
				sum.Claimed++
				sum.Failed++
			}
			return err
		})
	}
	err = g.Wait()
	if err != nil {
		span.RecordError(err)
	}
	if sum.Selected > 0 {
		w.log.Info().
			Int("selected", sum.Selected).
			Int("claimed", sum.Claimed).
			Int("lost", sum.Lost).
			Int("completed", sum.Completed).
			Int("failed", sum.Failed).
			Msg("job batch processed")
	}
	return sum, err
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeLost
	outcomeCompleted
	outcomeFailed
)

func (w *Worker[T, PT]) process(ctx context.Context, id string) (outcome, error) {
	l := w.log.With().Str("job_id", id).Logger()

	ok, err := repo.ClaimJob[T](ctx, w.db, id)
	if err != nil {
		return outcomeNone, fmt.Errorf("claim job %s: %w", id, err)
	}
	if !ok {
		l.Debug().Msg("job claimed elsewhere")
		return outcomeLost, nil
	}

	row, err := repo.GetJob[T](ctx, w.db, id)
	if err != nil {
		return outcomeNone, fmt.Errorf("reload job %s: %w", id, err)
	}
	job := PT(row)
	retries := job.State().RetriesCount

	// Finalization ignores cancellation so a claimed row never stays IN_PROGRESS.
	fctx := context.WithoutCancel(ctx)

	if retries > w.cfg.MaxRetries {
		msg := fmt.Sprintf("retry limit exceeded after %d attempts", retries-1)
		l.Warn().Int("retries", retries).Msg(msg)
		return outcomeFailed, w.finalize(fctx, id, domain.JobStatusFailed, msg, nil)
	}

	if d := w.cfg.Jitter(w.cfg.MaxJitter); d > 0 {
		if err := w.cfg.Sleep(ctx, d); err != nil {
			return outcomeFailed, w.finalize(fctx, id, domain.JobStatusFailed, "interrupted: "+err.Error(), nil)
		}
	}

	res, err := w.handler.Execute(ctx, row)
	if err != nil {
		l.Error().Err(err).Int("retries", retries).Msg("job failed")
		return outcomeFailed, w.finalize(fctx, id, domain.JobStatusFailed, err.Error(), nil)
	}
	if err := w.finalize(fctx, id, domain.JobStatusCompleted, res.Message, res.Columns); err != nil {
		return outcomeNone, err
	}
	l.Info().Int("retries", retries).Msg("job completed")

	if err := w.handler.AfterSuccess(ctx, row, res); err != nil {
		l.Warn().Err(err).Msg("job follow-up failed")
	}
	return outcomeCompleted, nil
}

func (w *Worker[T, PT]) finalize(ctx context.Context, id string, status domain.JobStatus, msg string, cols map[string]any) error {
	if err := repo.FinalizeJob[T](ctx, w.db, id, status, msg, cols); err != nil {
		return fmt.Errorf("finalize job %s as %s: %w", id, status, err)
	}
	jobsFinalized.WithLabelValues(w.handler.Name(), string(status)).Inc()
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func uniformJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(limit) + 1))
}
