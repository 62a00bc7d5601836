package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	alarmmetrics "refundtrack/internal/alarms/metrics"
)

const (
	// batchSize bounds concurrent reconciliations and therefore peak load
	// on the storage collaborator.
	batchSize = 20
	// selectPageSize is the page size used when collecting eligible case IDs.
	selectPageSize = 500
)

// RunStats summarizes one batch reconciliation run.
type RunStats struct {
	RunAt              time.Time `json:"run_at"`
	CasesProcessed     int       `json:"cases_processed"`
	AlarmsTriggered    int       `json:"alarms_triggered"`
	AlarmsAutoResolved int       `json:"alarms_auto_resolved"`
	Errors             int       `json:"errors"`
	Duration           string    `json:"duration"`
	Skipped            bool      `json:"skipped,omitempty"`
}

// RunGate is a single-slot semaphore guarding batch runs and holding the
// last completed run's statistics. A process-local gate; a multi-instance
// deployment must pin the scheduler to one instance or swap this for a
// distributed lease.
type RunGate struct {
	mu   sync.Mutex
	busy bool
	last RunStats
}

// NewRunGate constructs a gate.
func NewRunGate() *RunGate {
	return &RunGate{}
}

// TryAcquire takes the slot if free.
func (g *RunGate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy {
		return false
	}
	g.busy = true
	return true
}

// Release frees the slot.
func (g *RunGate) Release() {
	g.mu.Lock()
	g.busy = false
	g.mu.Unlock()
}

// SetLast records the most recent completed run.
func (g *RunGate) SetLast(stats RunStats) {
	g.mu.Lock()
	g.last = stats
	g.mu.Unlock()
}

// Last returns the most recent completed run's statistics.
func (g *RunGate) Last() RunStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// BatchRunner reconciles the whole alarm-eligible case population in
// bounded-concurrency batches with per-case failure isolation.
type BatchRunner struct {
	caseStore  CaseStore
	alarmStore AlarmStore
	reconciler *Reconciler
	gate       *RunGate
	metrics    *alarmmetrics.Metrics
	runStore   RunStore
	clock      Clock
	logger     *log.Logger
}

// BatchOption customizes a BatchRunner.
type BatchOption func(*BatchRunner)

// WithRunStore persists completed run statistics.
func WithRunStore(store RunStore) BatchOption {
	return func(r *BatchRunner) { r.runStore = store }
}

// NewBatchRunner constructs a batch runner.
func NewBatchRunner(caseStore CaseStore, alarmStore AlarmStore, reconciler *Reconciler, gate *RunGate, m *alarmmetrics.Metrics, clock Clock, logger *log.Logger, opts ...BatchOption) (*BatchRunner, error) {
	if caseStore == nil || alarmStore == nil {
		return nil, errors.New("batch: nil store")
	}
	if reconciler == nil {
		return nil, errors.New("batch: nil reconciler")
	}
	if gate == nil {
		gate = NewRunGate()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	runner := &BatchRunner{
		caseStore:  caseStore,
		alarmStore: alarmStore,
		reconciler: reconciler,
		gate:       gate,
		metrics:    m,
		clock:      clock,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner, nil
}

// LastRun returns the statistics of the last completed run.
func (r *BatchRunner) LastRun() RunStats {
	return r.gate.Last()
}

// Restore seeds the gate with the last persisted run so LastRun reports
// across restarts. A no-op without a run store or prior runs.
func (r *BatchRunner) Restore(ctx context.Context) error {
	if r.runStore == nil {
		return nil
	}
	last, err := r.runStore.LastRun(ctx)
	if err != nil {
		return err
	}
	if last != nil {
		r.gate.SetLast(*last)
	}
	return nil
}

// RunSync executes one full reconciliation run. When a run is already in
// progress it returns the last completed run's statistics with Skipped set,
// never queueing or blocking. The gate is released on every exit path.
func (r *BatchRunner) RunSync(ctx context.Context) (RunStats, error) {
	if r == nil {
		return RunStats{}, errors.New("batch: nil runner")
	}
	if !r.gate.TryAcquire() {
		last := r.gate.Last()
		last.Skipped = true
		if r.metrics != nil {
			r.metrics.RunsTotal.WithLabelValues("skipped").Inc()
		}
		r.logf("reconcile_run_skipped", "run already in progress")
		return last, nil
	}
	defer r.gate.Release()

	started := r.clock.Now().UTC()
	stats := RunStats{RunAt: started}

	ids, err := r.collectEligibleIDs(ctx)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RunsTotal.WithLabelValues("failed").Inc()
		}
		r.logf("reconcile_run_failed", err.Error())
		return stats, err
	}

	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		r.runBatch(ctx, ids[start:end], &stats)
	}

	stats.Duration = r.clock.Now().UTC().Sub(started).String()
	r.publish(ctx, stats, started)
	r.logf("reconcile_run_completed", fmt.Sprintf("processed=%d triggered=%d auto_resolved=%d errors=%d duration=%s",
		stats.CasesProcessed, stats.AlarmsTriggered, stats.AlarmsAutoResolved, stats.Errors, stats.Duration))
	return stats, nil
}

// runBatch reconciles one batch concurrently. All cases in the batch
// complete (success or failure) before it returns; one case's failure never
// aborts its siblings.
func (r *BatchRunner) runBatch(ctx context.Context, ids []string, stats *RunStats) {
	before, err := r.alarmStore.CountOpenByCases(ctx, ids)
	if err != nil {
		r.logf("reconcile_count_before_failed", err.Error())
		before = nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		errCount int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(caseID string) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					mu.Lock()
					errCount++
					mu.Unlock()
					r.logf("reconcile_case_panic", fmt.Sprintf("case_id=%s panic=%v", caseID, rec))
				}
			}()
			if err := r.reconciler.Reconcile(ctx, caseID); err != nil {
				mu.Lock()
				errCount++
				mu.Unlock()
				r.logf("reconcile_case_failed", fmt.Sprintf("case_id=%s err=%v", caseID, err))
			}
		}(id)
	}
	wg.Wait()

	stats.CasesProcessed += len(ids) - errCount
	stats.Errors += errCount

	after, err := r.alarmStore.CountOpenByCases(ctx, ids)
	if err != nil {
		r.logf("reconcile_count_after_failed", err.Error())
		return
	}
	if before == nil {
		return
	}
	// Net per-case deltas approximate triggered/auto-resolved counts; exact
	// causal attribution is not required for run statistics.
	for _, id := range ids {
		delta := after[id] - before[id]
		if delta > 0 {
			stats.AlarmsTriggered += delta
		} else if delta < 0 {
			stats.AlarmsAutoResolved += -delta
		}
	}
}

func (r *BatchRunner) collectEligibleIDs(ctx context.Context) ([]string, error) {
	var (
		ids    []string
		cursor string
	)
	for {
		states, hasMore, nextCursor, err := r.caseStore.ListAlarmEligible(ctx, cursor, selectPageSize)
		if err != nil {
			return nil, err
		}
		for _, state := range states {
			ids = append(ids, state.ID)
		}
		if !hasMore || nextCursor == "" {
			return ids, nil
		}
		cursor = nextCursor
	}
}

func (r *BatchRunner) publish(ctx context.Context, stats RunStats, started time.Time) {
	r.gate.SetLast(stats)
	if r.runStore != nil {
		if err := r.runStore.SaveRun(ctx, stats); err != nil {
			r.logf("reconcile_run_save_failed", err.Error())
		}
	}
	if r.metrics == nil {
		return
	}
	result := "completed"
	if stats.Errors > 0 {
		result = "partial"
	}
	r.metrics.RunsTotal.WithLabelValues(result).Inc()
	r.metrics.RunDuration.Observe(r.clock.Now().UTC().Sub(started).Seconds())
	r.metrics.CasesProcessed.Add(float64(stats.CasesProcessed))
	r.metrics.AlarmsTriggered.Add(float64(stats.AlarmsTriggered))
	r.metrics.AlarmsAutoResolved.Add(float64(stats.AlarmsAutoResolved))
	r.metrics.CaseErrors.Add(float64(stats.Errors))
	r.metrics.LastRunTimestamp.Set(float64(started.Unix()))
}

func (r *BatchRunner) logf(event, detail string) {
	if r.logger == nil {
		return
	}
	r.logger.Printf("event=%s detail=%s", event, detail)
}
