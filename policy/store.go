/*
Package policy holds the active, externally settable policies.

PURPOSE:
  The settlement computation reads three policies: allowance rates, the
  travel-expense bracket table and the counting mode. Operators change
  them at runtime. This package owns their storage and tells dependents
  when they change, so the computation never reads ambient state.

KEY CONCEPTS:
  - Kind: allowance | travel_expense | counting_mode
  - Record: Stored envelope {version, updated_at, updated_by, payload}
  - Active: All three parsed policies plus versions, read together
  - Change: Notification delivered to subscribers after a Set/Reset

FALLBACK:
  A missing record means "use the compiled-in default" (version 0). A
  corrupt record, or one that fails validation, also falls back to the
  default. That case logs a warning and adds an invalid_policy warning
  to Active.Diagnostics. It never fails the caller.

NOTIFICATION:
  Set publishes the key on the backend ChangeFeed (when present) so other
  processes hear about it. Watch forwards feed events to local
  subscribers. While Watch runs, local subscribers are notified through
  the feed only, so each change is delivered once.

SEE ALSO:
  - factory/: JSON parsing and validation
  - settlement/service.go: Subscribes and recomputes on change
*/
package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/warp/settlement-engine/allowance"
	"github.com/warp/settlement-engine/eligibility"
	"github.com/warp/settlement-engine/factory"
	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/travel"
)

// =============================================================================
// KINDS AND RECORDS
// =============================================================================

type Kind string

const (
	KindAllowance     Kind = "allowance"
	KindTravelExpense Kind = "travel_expense"
	KindCountingMode  Kind = "counting_mode"
)

// Kinds lists every policy kind.
var Kinds = []Kind{KindAllowance, KindTravelExpense, KindCountingMode}

const keyPrefix = "policy/"

// Key is the KVStore key of a kind.
func Key(kind Kind) string { return keyPrefix + string(kind) }

// ParseKind accepts a kind name.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown policy kind %q: %w", s, generic.ErrNotFound)
}

// Record is the stored envelope of one policy.
type Record struct {
	Version   int             `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
	UpdatedBy string          `json:"updated_by"`
	Payload   json.RawMessage `json:"payload"`
}

// Change is delivered to subscribers.
type Change struct {
	Kind    Kind
	Version int
}

// Active is a consistent read of every policy.
type Active struct {
	Allowance     allowance.Policy
	TravelExpense travel.BracketTable
	CountingMode  eligibility.CountingMode
	Versions      map[Kind]int // 0 = compiled-in default
	Diagnostics   generic.Diagnostics
}

// =============================================================================
// STORE
// =============================================================================

type Store struct {
	kv      generic.KVStore
	feed    generic.ChangeFeed
	factory *factory.PolicyFactory
	logger  *zap.Logger
	now     func() time.Time

	writeMu sync.Mutex

	subMu    sync.Mutex
	subs     map[int]func(Change)
	nextSub  int
	watching atomic.Bool
}

// NewStore creates a policy store. feed may be nil.
func NewStore(kv generic.KVStore, feed generic.ChangeFeed, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		kv:      kv,
		feed:    feed,
		factory: factory.NewPolicyFactory(),
		logger:  logger,
		now:     time.Now,
		subs:    make(map[int]func(Change)),
	}
}

// WithClock overrides the clock used for UpdatedAt. Tests only.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Record returns the stored envelope of kind, or ErrNotFound.
func (s *Store) Record(ctx context.Context, kind Kind) (Record, error) {
	raw, err := s.kv.Get(ctx, Key(kind))
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, &generic.PolicyError{Key: string(kind), Reason: fmt.Sprintf("corrupt record: %v", err)}
	}
	return rec, nil
}

// load reads a record and hands its payload to parse. On any failure it
// returns version 0 and records a warning; the caller uses its default.
func (s *Store) load(ctx context.Context, kind Kind, diags *generic.Diagnostics, parse func([]byte) error) int {
	rec, err := s.Record(ctx, kind)
	if errors.Is(err, generic.ErrNotFound) {
		return 0
	}
	if err == nil {
		err = parse(rec.Payload)
	}
	if err != nil {
		s.logger.Warn("stored policy unusable, falling back to default",
			zap.String("policy", string(kind)), zap.Error(err))
		diags.Warn(generic.WarnInvalidPolicy, string(kind), "stored %s policy unusable, using default: %v", kind, err)
		return 0
	}
	return rec.Version
}

// Allowance returns the active allowance policy and its version.
func (s *Store) Allowance(ctx context.Context) (allowance.Policy, int) {
	var d generic.Diagnostics
	return s.allowance(ctx, &d)
}

func (s *Store) allowance(ctx context.Context, d *generic.Diagnostics) (allowance.Policy, int) {
	p := allowance.DefaultPolicy()
	v := s.load(ctx, KindAllowance, d, func(raw []byte) error {
		parsed, err := s.factory.ParseAllowancePolicy(raw)
		if err == nil {
			p = parsed
		}
		return err
	})
	return p, v
}

// TravelExpense returns the active bracket table and its version.
func (s *Store) TravelExpense(ctx context.Context) (travel.BracketTable, int) {
	var d generic.Diagnostics
	return s.travelExpense(ctx, &d)
}

func (s *Store) travelExpense(ctx context.Context, d *generic.Diagnostics) (travel.BracketTable, int) {
	t := travel.DefaultBracketTable()
	v := s.load(ctx, KindTravelExpense, d, func(raw []byte) error {
		parsed, err := s.factory.ParseTravelExpensePolicy(raw)
		if err == nil {
			t = parsed
		}
		return err
	})
	return t, v
}

// CountingMode returns the active counting mode and its version.
func (s *Store) CountingMode(ctx context.Context) (eligibility.CountingMode, int) {
	var d generic.Diagnostics
	return s.countingMode(ctx, &d)
}

func (s *Store) countingMode(ctx context.Context, d *generic.Diagnostics) (eligibility.CountingMode, int) {
	m := eligibility.DefaultMode
	v := s.load(ctx, KindCountingMode, d, func(raw []byte) error {
		parsed, err := s.factory.ParseCountingMode(raw)
		if err == nil {
			m = parsed
		}
		return err
	})
	return m, v
}

// Snapshot reads every policy.
func (s *Store) Snapshot(ctx context.Context) Active {
	a := Active{Versions: make(map[Kind]int, len(Kinds))}
	a.Allowance, a.Versions[KindAllowance] = s.allowance(ctx, &a.Diagnostics)
	a.TravelExpense, a.Versions[KindTravelExpense] = s.travelExpense(ctx, &a.Diagnostics)
	a.CountingMode, a.Versions[KindCountingMode] = s.countingMode(ctx, &a.Diagnostics)
	return a
}

// =============================================================================
// WRITES
// =============================================================================

// Validate parses payload as kind without storing it.
func (s *Store) Validate(kind Kind, payload []byte) error {
	var err error
	switch kind {
	case KindAllowance:
		_, err = s.factory.ParseAllowancePolicy(payload)
	case KindTravelExpense:
		_, err = s.factory.ParseTravelExpensePolicy(payload)
	case KindCountingMode:
		_, err = s.factory.ParseCountingMode(payload)
	default:
		err = &generic.PolicyError{Key: string(kind), Reason: "unknown policy kind"}
	}
	return err
}

// Set validates payload, stores it under the next version and notifies.
func (s *Store) Set(ctx context.Context, kind Kind, payload []byte, updatedBy string) (Record, error) {
	if err := s.Validate(kind, payload); err != nil {
		return Record{}, err
	}

	s.writeMu.Lock()
	prev, err := s.Record(ctx, kind)
	next := 1
	switch {
	case err == nil:
		next = prev.Version + 1
	case errors.Is(err, generic.ErrNotFound), errors.Is(err, generic.ErrInvalidPolicy):
	default:
		s.writeMu.Unlock()
		return Record{}, fmt.Errorf("failed to read policy %s: %w", kind, err)
	}

	rec := Record{Version: next, UpdatedAt: s.now().UTC(), UpdatedBy: updatedBy, Payload: json.RawMessage(payload)}
	raw, err := json.Marshal(rec)
	if err != nil {
		s.writeMu.Unlock()
		return Record{}, fmt.Errorf("failed to encode policy %s: %w", kind, err)
	}
	if err := s.kv.Put(ctx, Key(kind), raw); err != nil {
		s.writeMu.Unlock()
		return Record{}, fmt.Errorf("failed to store policy %s: %w", kind, err)
	}
	s.writeMu.Unlock()

	s.logger.Info("policy updated",
		zap.String("policy", string(kind)), zap.Int("version", rec.Version), zap.String("updated_by", updatedBy))
	s.announce(ctx, Change{Kind: kind, Version: rec.Version})
	return rec, nil
}

// SetAllowance stores a typed allowance policy.
func (s *Store) SetAllowance(ctx context.Context, p allowance.Policy, updatedBy string) (Record, error) {
	raw, err := json.Marshal(s.factory.ToAllowanceJSON(p))
	if err != nil {
		return Record{}, err
	}
	return s.Set(ctx, KindAllowance, raw, updatedBy)
}

// SetTravelExpense stores a typed bracket table.
func (s *Store) SetTravelExpense(ctx context.Context, t travel.BracketTable, updatedBy string) (Record, error) {
	raw, err := json.Marshal(s.factory.ToTravelExpenseJSON(t))
	if err != nil {
		return Record{}, err
	}
	return s.Set(ctx, KindTravelExpense, raw, updatedBy)
}

// SetCountingMode stores the counting mode.
func (s *Store) SetCountingMode(ctx context.Context, mode eligibility.CountingMode, updatedBy string) (Record, error) {
	raw, err := json.Marshal(s.factory.ToCountingModeJSON(mode))
	if err != nil {
		return Record{}, err
	}
	return s.Set(ctx, KindCountingMode, raw, updatedBy)
}

// Reset deletes the stored record so the default applies again.
func (s *Store) Reset(ctx context.Context, kind Kind) error {
	s.writeMu.Lock()
	err := s.kv.Delete(ctx, Key(kind))
	s.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to reset policy %s: %w", kind, err)
	}
	s.logger.Info("policy reset to default", zap.String("policy", string(kind)))
	s.announce(ctx, Change{Kind: kind, Version: 0})
	return nil
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

// Subscribe registers fn for every change. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) announce(ctx context.Context, c Change) {
	if s.feed != nil {
		if err := s.feed.Publish(ctx, Key(c.Kind)); err != nil {
			s.logger.Warn("failed to publish policy change", zap.String("policy", string(c.Kind)), zap.Error(err))
		}
		if s.watching.Load() {
			return
		}
	}
	s.notify(c)
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Watch forwards policy changes from the backend feed to local subscribers
// until ctx ends. Without a feed it returns immediately.
func (s *Store) Watch(ctx context.Context) error {
	if s.feed == nil {
		return nil
	}
	changes, err := s.feed.Changes(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to policy changes: %w", err)
	}
	s.watching.Store(true)
	defer s.watching.Store(false)

	for {
		select {
		case <-ctx.Done():
			return nil
		case key, ok := <-changes:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(key, keyPrefix) {
				continue
			}
			kind, err := ParseKind(strings.TrimPrefix(key, keyPrefix))
			if err != nil {
				continue
			}
			version := 0
			if rec, err := s.Record(ctx, kind); err == nil {
				version = rec.Version
			}
			s.notify(Change{Kind: kind, Version: version})
		}
	}
}
