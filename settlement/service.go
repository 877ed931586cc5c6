package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/settlement-engine/allowance"
	"github.com/warp/settlement-engine/eligibility"
	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/policy"
	"github.com/warp/settlement-engine/region"
	"github.com/warp/settlement-engine/travel"
)

// =============================================================================
// SNAPSHOT - Result of one full recompute
// =============================================================================

// Snapshot is immutable once published. Override changes publish a new
// snapshot that shares Settlements with the previous one.
type Snapshot struct {
	RunID          string
	Settlements    []InstructorSettlement
	Rows           []Row
	Diagnostics    generic.Diagnostics
	PolicyVersions map[policy.Kind]int
	CountingMode   eligibility.CountingMode
	Allowance      allowance.Policy
	ComputedAt     time.Time
}

// =============================================================================
// SERVICE
// =============================================================================

// Deps are the collaborators of a Service. Distances, Renderer, Calendar
// and Logger may be nil.
type Deps struct {
	Policies     *policy.Store
	Distances    region.DistanceProvider
	Renderer     travel.MapRenderer
	Resolver     *region.Resolver
	Instructors  InstructorDirectory
	Institutions InstitutionDirectory
	Source       RecordSource
	Overrides    *OverrideStore
	Calendar     generic.HolidayCalendar
	Logger       *zap.Logger

	// Debounce groups bursts of policy changes into one recompute.
	Debounce time.Duration
}

// Service owns the current snapshot. Recomputes are serialized; readers
// never block on a running recompute.
type Service struct {
	deps   Deps
	logger *zap.Logger
	now    func() time.Time

	runMu sync.Mutex

	mu       sync.RWMutex
	snapshot *Snapshot

	listenMu  sync.Mutex
	listeners []func(*Snapshot)
}

func NewService(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Resolver == nil {
		deps.Resolver = region.NewResolver()
	}
	if deps.Calendar == nil {
		deps.Calendar = &generic.DefaultHolidayCalendar{}
	}
	if deps.Distances == nil {
		deps.Distances = region.NewMatrixProvider(region.DefaultMatrix())
	}
	if deps.Debounce <= 0 {
		deps.Debounce = 200 * time.Millisecond
	}
	return &Service{deps: deps, logger: deps.Logger, now: time.Now}
}

// WithClock replaces the clock used for ComputedAt.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// OnRecompute registers fn to receive every published snapshot.
func (s *Service) OnRecompute(fn func(*Snapshot)) {
	s.listenMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenMu.Unlock()
}

// Snapshot returns the latest snapshot, or nil before the first recompute.
func (s *Service) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// Recompute reads every source record and the active policies, derives
// the full hierarchy and rows, merges stored overrides and publishes the
// result.
func (s *Service) Recompute(ctx context.Context) (*Snapshot, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := s.now()
	runID := uuid.NewString()
	active := s.deps.Policies.Snapshot(ctx)

	trainings, err := s.deps.Source.Trainings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load trainings: %w", err)
	}

	var diags generic.Diagnostics
	diags.Merge(active.Diagnostics)

	facts, factDiags, err := FactBuilder{
		Institutions: s.deps.Institutions,
		Resolver:     s.deps.Resolver,
		Filter:       eligibility.NewFilter(active.CountingMode),
		Calendar:     s.deps.Calendar,
	}.Build(ctx, trainings)
	if err != nil {
		return nil, fmt.Errorf("failed to build facts: %w", err)
	}
	diags.Merge(factDiags)

	pipeline := NewPipeline(
		allowance.NewEngine(active.Allowance),
		active.TravelExpense,
		travel.NewBuilder(s.deps.Distances, s.deps.Renderer, s.logger),
		s.logger,
	)
	settlements, runDiags, err := pipeline.Run(ctx, facts, resolvingDirectory{s.deps.Instructors, s.deps.Resolver})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate: %w", err)
	}
	diags.Merge(runDiags)

	rows := BuildRows(settlements)
	if s.deps.Overrides != nil {
		overrides, err := s.deps.Overrides.All(ctx)
		if err != nil {
			return nil, err
		}
		rows = ApplyOverrides(rows, overrides)
	}

	snap := &Snapshot{
		RunID:          runID,
		Settlements:    settlements,
		Rows:           rows,
		Diagnostics:    diags,
		PolicyVersions: active.Versions,
		CountingMode:   active.CountingMode,
		Allowance:      active.Allowance,
		ComputedAt:     s.now().UTC(),
	}
	s.publish(snap)

	s.logger.Info("settlement recomputed",
		zap.String("run_id", runID),
		zap.Int("trainings", len(trainings)),
		zap.Int("instructors", len(settlements)),
		zap.Int("rows", len(rows)),
		zap.Int("warnings", len(diags.Warnings)),
		zap.Duration("took", s.now().Sub(start)),
	)
	for _, w := range diags.Warnings {
		s.logger.Warn("settlement data warning", zap.String("code", string(w.Code)), zap.String("ref", w.Ref), zap.String("message", w.Message))
	}
	return snap, nil
}

func (s *Service) publish(snap *Snapshot) {
	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()

	s.listenMu.Lock()
	fns := make([]func(*Snapshot), len(s.listeners))
	copy(fns, s.listeners)
	s.listenMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// Start recomputes once, then recomputes after every policy change
// (debounced) until ctx ends.
func (s *Service) Start(ctx context.Context) error {
	if _, err := s.Recompute(ctx); err != nil {
		return err
	}

	pending := make(chan struct{}, 1)
	unsubscribe := s.deps.Policies.Subscribe(func(c policy.Change) {
		s.logger.Info("policy changed", zap.String("policy", string(c.Kind)), zap.Int("version", c.Version))
		select {
		case pending <- struct{}{}:
		default:
		}
	})

	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case <-pending:
			}
			timer := time.NewTimer(s.deps.Debounce)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			// Changes that arrived while waiting are covered by this run.
			select {
			case <-pending:
			default:
			}
			if _, err := s.Recompute(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("recompute after policy change failed", zap.Error(err))
			}
		}
	}()
	return nil
}

// =============================================================================
// OVERRIDES - Re-merged without recomputation
// =============================================================================

// SetOverride stores an override for a row of the current snapshot and
// publishes the re-merged rows.
func (s *Service) SetOverride(ctx context.Context, rowID string, o Override) (Row, error) {
	snap := s.Snapshot()
	if snap == nil || !hasRow(snap.Rows, rowID) {
		return Row{}, fmt.Errorf("row %s: %w", rowID, generic.ErrNotFound)
	}
	if _, err := s.deps.Overrides.Set(ctx, rowID, o); err != nil {
		return Row{}, err
	}
	next, err := s.remerge(ctx)
	if err != nil {
		return Row{}, err
	}
	row, _ := findRow(next.Rows, rowID)
	return row, nil
}

// RemoveOverride deletes a row's override; the row reverts to its
// computed values.
func (s *Service) RemoveOverride(ctx context.Context, rowID string) (Row, error) {
	if err := s.deps.Overrides.Remove(ctx, rowID); err != nil {
		return Row{}, err
	}
	next, err := s.remerge(ctx)
	if err != nil {
		return Row{}, err
	}
	row, ok := findRow(next.Rows, rowID)
	if !ok {
		return Row{}, fmt.Errorf("row %s: %w", rowID, generic.ErrNotFound)
	}
	return row, nil
}

func (s *Service) remerge(ctx context.Context) (*Snapshot, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	prev := s.Snapshot()
	if prev == nil {
		return nil, fmt.Errorf("no settlement computed yet: %w", generic.ErrNotFound)
	}
	overrides, err := s.deps.Overrides.All(ctx)
	if err != nil {
		return nil, err
	}
	next := *prev
	next.Rows = ApplyOverrides(prev.Rows, overrides)
	s.publish(&next)
	return &next, nil
}

func hasRow(rows []Row, id string) bool {
	_, ok := findRow(rows, id)
	return ok
}

func findRow(rows []Row, id string) (Row, bool) {
	for _, r := range rows {
		if r.ID == id {
			return r, true
		}
	}
	return Row{}, false
}

// =============================================================================
// QUERIES
// =============================================================================

// Settlement returns one instructor's hierarchy restricted to period.
// ErrNotFound means no data for that instructor in that period.
func (s *Service) Settlement(instructorID string, period generic.Period) (InstructorSettlement, error) {
	snap := s.Snapshot()
	if snap == nil {
		return InstructorSettlement{}, fmt.Errorf("no settlement computed yet: %w", generic.ErrNotFound)
	}
	for _, is := range snap.Settlements {
		if is.InstructorID != instructorID {
			continue
		}
		out := s.refilter(snap, is, period)
		if len(out.Years) == 0 {
			break
		}
		return out, nil
	}
	return InstructorSettlement{}, fmt.Errorf("settlement for %s in %s: %w", instructorID, period, generic.ErrNotFound)
}

// Settlements returns every instructor's hierarchy restricted to period,
// omitting instructors without data in it.
func (s *Service) Settlements(period generic.Period) []InstructorSettlement {
	snap := s.Snapshot()
	if snap == nil {
		return nil
	}
	var out []InstructorSettlement
	for _, is := range snap.Settlements {
		if r := s.refilter(snap, is, period); len(r.Years) > 0 {
			out = append(out, r)
		}
	}
	return out
}

func (s *Service) refilter(snap *Snapshot, is InstructorSettlement, period generic.Period) InstructorSettlement {
	if period.IsOpen() {
		return is
	}
	p := NewPipeline(allowance.NewEngine(snap.Allowance), travel.BracketTable{}, nil, s.logger)
	return p.Refilter(is, period)
}

// Rows returns the rows of the current snapshot.
func (s *Service) Rows() []Row {
	if snap := s.Snapshot(); snap != nil {
		return snap.Rows
	}
	return nil
}

// RowsFor rebuilds rows from the hierarchy restricted to period and merges
// the current overrides into them, each cut down to the row's days inside
// period.
func (s *Service) RowsFor(period generic.Period) []Row {
	if period.IsOpen() {
		return s.Rows()
	}
	snap := s.Snapshot()
	if snap == nil {
		return nil
	}
	overrides := make(map[string]Override)
	for _, r := range snap.Rows {
		if r.Override != nil {
			overrides[r.ID] = r.Override.ForPeriod(r.Dates, period)
		}
	}
	return ApplyOverrides(BuildRows(s.Settlements(period)), overrides)
}

// =============================================================================
// DIRECTORY ADAPTER
// =============================================================================

// resolvingDirectory resolves instructor home regions on lookup.
type resolvingDirectory struct {
	inner    InstructorDirectory
	resolver *region.Resolver
}

func (d resolvingDirectory) Instructor(ctx context.Context, id string) (Instructor, error) {
	inst, err := d.inner.Instructor(ctx, id)
	if err != nil {
		return inst, err
	}
	inst.Home = d.resolver.Apply(inst.Home)
	return inst, nil
}
