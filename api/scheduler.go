/*
scheduler.go - Background recompute scheduler

PURPOSE:
  Keeps the published settlement current when source records change.
  Handlers call Trigger after a write; triggers that arrive close together
  collapse into one recompute. An optional interval recomputes
  periodically to pick up records written by other processes.

DESIGN:
  - One background goroutine owns every recompute it starts
  - Trigger never blocks; a pending trigger absorbs later ones
  - Interval 0 disables the periodic run

USAGE:
  scheduler := NewRecomputeScheduler(service, logger)
  scheduler.Interval = 15 * time.Minute
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Recompute endpoint (synchronous recompute)
  - settlement/service.go: policy-change recomputes
*/
package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/settlement-engine/settlement"
)

// Recomputer is the part of the settlement service the scheduler drives.
type Recomputer interface {
	Recompute(ctx context.Context) (*settlement.Snapshot, error)
}

// SchedulerStatus is reported by GET /api/scheduler.
type SchedulerStatus struct {
	Running   bool       `json:"running"`
	Interval  string     `json:"interval"`
	Runs      int        `json:"runs"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}

// RecomputeScheduler runs recomputes in the background.
type RecomputeScheduler struct {
	Service  Recomputer
	Interval time.Duration
	Debounce time.Duration

	logger  *zap.Logger
	trigger chan struct{}
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	statusMu  sync.Mutex
	runs      int
	lastRunAt time.Time
	lastErr   error
}

// NewRecomputeScheduler creates a scheduler with no periodic run.
func NewRecomputeScheduler(svc Recomputer, logger *zap.Logger) *RecomputeScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecomputeScheduler{
		Service:  svc,
		Debounce: 250 * time.Millisecond,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
}

// Start begins the background loop. Calling Start twice is a no-op.
func (rs *RecomputeScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.running {
		return
	}
	rs.running = true
	rs.stop = make(chan struct{})
	rs.wg.Add(1)
	go rs.run(rs.stop)

	rs.logger.Info("recompute scheduler started", zap.Duration("interval", rs.Interval), zap.Duration("debounce", rs.Debounce))
}

// Stop ends the loop and waits for a running recompute to finish.
func (rs *RecomputeScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.running {
		return
	}
	close(rs.stop)
	rs.wg.Wait()
	rs.running = false
	rs.logger.Info("recompute scheduler stopped")
}

// Trigger requests a recompute soon.
func (rs *RecomputeScheduler) Trigger() {
	select {
	case rs.trigger <- struct{}{}:
	default:
	}
}

func (rs *RecomputeScheduler) run(stop <-chan struct{}) {
	defer rs.wg.Done()

	var tick <-chan time.Time
	if rs.Interval > 0 {
		ticker := time.NewTicker(rs.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-stop:
			return
		case <-tick:
			rs.RunNow("interval")
		case <-rs.trigger:
			timer := time.NewTimer(rs.Debounce)
			select {
			case <-stop:
				timer.Stop()
				return
			case <-timer.C:
			}
			select {
			case <-rs.trigger:
			default:
			}
			rs.RunNow("records changed")
		}
	}
}

// RunNow recomputes synchronously and records the outcome.
func (rs *RecomputeScheduler) RunNow(reason string) {
	start := time.Now()
	snap, err := rs.Service.Recompute(context.Background())

	rs.statusMu.Lock()
	rs.runs++
	rs.lastRunAt = start
	rs.lastErr = err
	rs.statusMu.Unlock()

	if err != nil {
		rs.logger.Error("scheduled recompute failed", zap.String("reason", reason), zap.Error(err))
		return
	}
	rs.logger.Info("scheduled recompute done",
		zap.String("reason", reason),
		zap.String("run_id", snap.RunID),
		zap.Duration("took", time.Since(start)))
}

// GetNextRunTime returns when the next periodic run is due, or the zero
// time when there is none.
func (rs *RecomputeScheduler) GetNextRunTime() time.Time {
	if rs.Interval <= 0 {
		return time.Time{}
	}
	rs.statusMu.Lock()
	defer rs.statusMu.Unlock()
	if rs.lastRunAt.IsZero() {
		return time.Now().Add(rs.Interval)
	}
	return rs.lastRunAt.Add(rs.Interval)
}

// Status reports the scheduler state.
func (rs *RecomputeScheduler) Status() SchedulerStatus {
	rs.mu.Lock()
	running := rs.running
	rs.mu.Unlock()

	st := SchedulerStatus{Running: running, Interval: rs.Interval.String()}
	if next := rs.GetNextRunTime(); !next.IsZero() {
		st.NextRunAt = &next
	}

	rs.statusMu.Lock()
	defer rs.statusMu.Unlock()
	st.Runs = rs.runs
	if !rs.lastRunAt.IsZero() {
		last := rs.lastRunAt
		st.LastRunAt = &last
	}
	if rs.lastErr != nil {
		st.LastError = rs.lastErr.Error()
	}
	return st
}

// GetSchedulerStatus reports the background scheduler.
// GET /api/scheduler
func (h *Handler) GetSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Scheduler is not running", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.Scheduler.Status())
}
