package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/aggregator-service/internal/coordination"
	"jobmate/aggregator-service/internal/model"
)

// blockingRunner blocks every run until release is closed.
type blockingRunner struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	ctxErr  error
	err     error
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (r *blockingRunner) Run(ctx context.Context) (*model.RunReport, error) {
	n := r.calls.Add(1)
	r.started <- struct{}{}
	<-r.release
	r.ctxErr = ctx.Err()
	if r.err != nil {
		return nil, r.err
	}
	return &model.RunReport{RunID: "run-" + string(rune('0'+n)), TotalNew: 1}, nil
}

type countingObserver struct {
	mu       sync.Mutex
	running  []bool
	rejected []string
}

func (o *countingObserver) SetRunning(b bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = append(o.running, b)
}

func (o *countingObserver) TriggerRejected(trigger string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected = append(o.rejected, trigger)
}

func TestNew_RejectsBadSpec(t *testing.T) {
	_, err := New(newBlockingRunner(), Options{Spec: "whenever"})
	assert.Error(t, err)

	s, err := New(newBlockingRunner(), Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultSpec, s.Status().Schedule)
}

func TestTrigger_RejectsWhileRunning(t *testing.T) {
	runner := newBlockingRunner()
	obs := &countingObserver{}
	s, err := New(runner, Options{Observer: obs})
	require.NoError(t, err)

	type result struct {
		report *model.RunReport
		err    error
	}
	first := make(chan result, 1)
	go func() {
		r, err := s.Trigger(context.Background(), TriggerHTTP)
		first <- result{r, err}
	}()
	<-runner.started
	assert.True(t, s.Status().Running)

	_, err = s.Trigger(context.Background(), TriggerGRPC)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(runner.release)
	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.report.TotalNew)
	assert.Equal(t, int32(1), runner.calls.Load())

	st := s.Status()
	assert.False(t, st.Running)
	assert.Equal(t, TriggerHTTP, st.LastTrigger)
	assert.Same(t, res.report, st.LastRun)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []bool{true, false}, obs.running)
	assert.Equal(t, []string{TriggerGRPC}, obs.rejected)
}

func TestTrigger_IgnoresCallerCancellation(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)
	s, err := New(runner, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Trigger(ctx, TriggerHTTP)
	require.NoError(t, err)
	assert.NoError(t, runner.ctxErr)
}

func TestTrigger_RecordsRunError(t *testing.T) {
	runner := newBlockingRunner()
	runner.err = errors.New("registry unreachable")
	close(runner.release)
	s, err := New(runner, Options{})
	require.NoError(t, err)

	_, err = s.Trigger(context.Background(), TriggerCLI)
	require.Error(t, err)
	assert.Equal(t, "registry unreachable", s.Status().LastError)
	assert.Nil(t, s.Status().LastRun)
}

func TestTrigger_DistributedLock(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	lock := coordination.NewLock(rdb, "test:sync", time.Minute)

	runner := newBlockingRunner()
	close(runner.release)
	s, err := New(runner, Options{Lock: lock})
	require.NoError(t, err)

	// Another replica holds the lock.
	other, err := lock.TryAcquire(context.Background())
	require.NoError(t, err)
	_, err = s.Trigger(context.Background(), TriggerCron)
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.Zero(t, runner.calls.Load())
	require.NoError(t, other.Release(context.Background()))

	_, err = s.Trigger(context.Background(), TriggerCron)
	require.NoError(t, err)
	assert.Equal(t, int32(1), runner.calls.Load())
	assert.False(t, mr.Exists("test:sync"), "lock is released after the run")
}

func TestTrigger_LockBackendDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	runner := newBlockingRunner()
	s, err := New(runner, Options{Lock: coordination.NewLock(rdb, "", 0)})
	require.NoError(t, err)

	_, err = s.Trigger(context.Background(), TriggerHTTP)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSyncInProgress)
	assert.Zero(t, runner.calls.Load())
	assert.False(t, s.Status().Running)
}

func TestStart_RunOnStartupAndStop(t *testing.T) {
	runner := newBlockingRunner()
	close(runner.release)
	s, err := New(runner, Options{Spec: "@every 1h", RunOnStartup: true})
	require.NoError(t, err)

	assert.Nil(t, s.Status().NextRun)
	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return runner.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return s.Status().NextRun != nil }, time.Second, 10*time.Millisecond)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *s.Status().NextRun, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.Equal(t, TriggerStartup, s.Status().LastTrigger)
}

func TestStop_WaitsForManualTrigger(t *testing.T) {
	runner := newBlockingRunner()
	s, err := New(runner, Options{Spec: "@every 1h"})
	require.NoError(t, err)

	triggered := make(chan error, 1)
	go func() {
		_, err := s.Trigger(context.Background(), TriggerHTTP)
		triggered <- err
	}()
	<-runner.started

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a manual run was still active")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = s.Trigger(context.Background(), TriggerGRPC)
	assert.ErrorIs(t, err, ErrStopped)

	close(runner.release)
	require.NoError(t, <-triggered)
	require.NoError(t, <-stopped)
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestStop_TimesOutOnLongRun(t *testing.T) {
	runner := newBlockingRunner()
	defer close(runner.release)
	s, err := New(runner, Options{})
	require.NoError(t, err)

	go func() { _, _ = s.Trigger(context.Background(), TriggerCLI) }()
	<-runner.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)
}

func TestKVFields(t *testing.T) {
	fields := kvFields([]any{"entry", 1, "next", "soon", "dangling"})
	require.Len(t, fields, 2)
	assert.Equal(t, "entry", fields[0].Key)
	assert.Equal(t, "next", fields[1].Key)
}
