// Package scheduler wires up the cron job that periodically runs a sync pass
// and the manual trigger used by the HTTP, gRPC and CLI surfaces.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"jobmate/aggregator-service/internal/coordination"
	"jobmate/aggregator-service/internal/logger"
	"jobmate/aggregator-service/internal/model"
)

// DefaultSpec runs the sync daily at 02:00.
const DefaultSpec = "0 2 * * *"

// Trigger kinds, used in logs and metrics.
const (
	TriggerCron    = "cron"
	TriggerStartup = "startup"
	TriggerHTTP    = "http"
	TriggerGRPC    = "grpc"
	TriggerCLI     = "cli"
)

// ErrSyncInProgress is returned when a trigger arrives while a run is active,
// on this instance or (with a distributed lock) on another replica.
var ErrSyncInProgress = errors.New("sync already in progress")

// ErrStopped is returned for triggers that arrive after Stop was called.
var ErrStopped = errors.New("scheduler stopped")

// Runner performs one sync pass.
type Runner interface {
	Run(ctx context.Context) (*model.RunReport, error)
}

// Observer is told when runs start, stop and get rejected.
type Observer interface {
	SetRunning(running bool)
	TriggerRejected(trigger string)
}

// Options configures a Scheduler.
type Options struct {
	Spec         string
	RunOnStartup bool
	// Lock, when set, makes the at-most-one-run rule hold across replicas.
	Lock     *coordination.Lock
	Observer Observer
	Logger   logger.Logger
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Running     bool             `json:"running"`
	Schedule    string           `json:"schedule"`
	NextRun     *time.Time       `json:"nextRun,omitempty"`
	LastTrigger string           `json:"lastTrigger,omitempty"`
	LastError   string           `json:"lastError,omitempty"`
	LastRun     *model.RunReport `json:"lastRun,omitempty"`
}

// Scheduler wraps robfig/cron and enforces that at most one run is active.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	opts   Options
	log    logger.Logger

	entry cron.EntryID
	wg    sync.WaitGroup

	mu          sync.Mutex
	running     bool
	started     bool
	stopped     bool
	idle        chan struct{} // closed when the active run ends
	last        *model.RunReport
	lastErr     error
	lastTrigger string
}

// New creates a Scheduler. The cron spec is validated here so that a bad
// schedule fails at startup.
func New(runner Runner, opts Options) (*Scheduler, error) {
	if opts.Spec == "" {
		opts.Spec = DefaultSpec
	}
	if _, err := cron.ParseStandard(opts.Spec); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", opts.Spec, err)
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	log = log.With(logger.String("component", "scheduler"))
	cl := cronLogger{log: log}

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		runner: runner,
		opts:   opts,
		log:    log,
	}, nil
}

// Start registers the job and starts the cron loop. With RunOnStartup, one
// run is also kicked off immediately (non-blocking).
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("scheduler already started")
	}
	id, err := s.cron.AddFunc(s.opts.Spec, func() {
		s.fire(ctx, TriggerCron)
	})
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.entry = id
	s.started = true
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info("cron started", logger.String("spec", s.opts.Spec))

	if s.opts.RunOnStartup {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.fire(ctx, TriggerStartup)
		}()
	}
	return nil
}

// Stop halts the cron loop, rejects further triggers with ErrStopped and
// waits for an in-flight run to finish, whichever surface started it, or for
// ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	active := s.idle
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		if active != nil {
			<-active
		}
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("cron stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// fire runs a background trigger and logs its result.
func (s *Scheduler) fire(ctx context.Context, trigger string) {
	_, err := s.Trigger(ctx, trigger)
	switch {
	case errors.Is(err, ErrSyncInProgress):
		s.log.Info("skipping run, another sync is in progress", logger.String("trigger", trigger))
	case errors.Is(err, ErrStopped):
		s.log.Debug("scheduler stopped, trigger dropped", logger.String("trigger", trigger))
	case err != nil:
		s.log.Error("sync run failed", logger.String("trigger", trigger), logger.Error(err))
	}
}

// Trigger runs one sync pass and blocks until it finishes. The run ignores
// cancellation of ctx so that an aborted request cannot leave a source half
// processed. A trigger that arrives while another run is active is rejected
// with ErrSyncInProgress; runs are never queued or interleaved.
func (s *Scheduler) Trigger(ctx context.Context, trigger string) (*model.RunReport, error) {
	if err := s.begin(); err != nil {
		s.rejected(trigger)
		return nil, err
	}
	defer s.end()

	runCtx := context.WithoutCancel(ctx)

	if s.opts.Lock != nil {
		lease, err := s.opts.Lock.TryAcquire(runCtx)
		if errors.Is(err, coordination.ErrLockNotAcquired) {
			s.rejected(trigger)
			return nil, ErrSyncInProgress
		}
		if err != nil {
			return nil, fmt.Errorf("acquire sync lock: %w", err)
		}
		keepCtx, stopKeep := context.WithCancel(runCtx)
		lost := lease.KeepAlive(keepCtx)
		defer func() {
			stopKeep()
			if err, ok := <-lost; ok && err != nil {
				s.log.Warn("sync lock lost during run", logger.Error(err))
			}
			if err := lease.Release(runCtx); err != nil {
				s.log.Warn("release sync lock failed", logger.Error(err))
			}
		}()
	}

	s.log.Info("sync triggered", logger.String("trigger", trigger))
	report, err := s.runner.Run(runCtx)

	s.mu.Lock()
	s.lastTrigger = trigger
	s.lastErr = err
	if report != nil {
		s.last = report
	}
	s.mu.Unlock()

	return report, err
}

func (s *Scheduler) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.running {
		return ErrSyncInProgress
	}
	s.running = true
	s.idle = make(chan struct{})
	if s.opts.Observer != nil {
		s.opts.Observer.SetRunning(true)
	}
	return nil
}

func (s *Scheduler) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	close(s.idle)
	s.idle = nil
	if s.opts.Observer != nil {
		s.opts.Observer.SetRunning(false)
	}
}

func (s *Scheduler) rejected(trigger string) {
	if s.opts.Observer != nil {
		s.opts.Observer.TriggerRejected(trigger)
	}
}

// Status reports whether a run is active, the last report and the next
// scheduled time (nil before Start).
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	st := Status{
		Running:     s.running,
		Schedule:    s.opts.Spec,
		LastTrigger: s.lastTrigger,
		LastRun:     s.last,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	started, entry := s.started, s.entry
	s.mu.Unlock()

	if started {
		if next := s.cron.Entry(entry).Next; !next.IsZero() {
			st.NextRun = &next
		}
	}
	return st
}

// cronLogger bridges cron's logr-style logger onto ours.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []any) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		fields = append(fields, logger.Any(key, kv[i+1]))
	}
	return fields
}
