package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/warp/settlement-engine/generic"
)

// =============================================================================
// OVERRIDE - Manual correction of one row
// =============================================================================

// Override replaces computed row values. Nil fields keep the computed value.
type Override struct {
	DistanceKm      *generic.Amount
	TravelExpense   *generic.Amount
	AllowanceAmount *generic.Amount
	Reason          string
	UpdatedBy       string
	UpdatedAt       time.Time
}

// Validate requires at least one non-negative value.
func (o Override) Validate() error {
	set := 0
	for name, v := range map[string]*generic.Amount{
		"distance_km":      o.DistanceKm,
		"travel_expense":   o.TravelExpense,
		"allowance_amount": o.AllowanceAmount,
	} {
		if v == nil {
			continue
		}
		set++
		if v.IsNegative() {
			return fmt.Errorf("%w: %s is negative", generic.ErrInvalidOverride, name)
		}
	}
	if set == 0 {
		return fmt.Errorf("%w: no value set", generic.ErrInvalidOverride)
	}
	return nil
}

// overrideRecord is the persisted JSON form.
type overrideRecord struct {
	DistanceKm      *float64  `json:"distance_km,omitempty"`
	TravelExpense   *int64    `json:"travel_expense,omitempty"`
	AllowanceAmount *int64    `json:"allowance_amount,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	UpdatedBy       string    `json:"updated_by,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toRecord(o Override) overrideRecord {
	r := overrideRecord{Reason: o.Reason, UpdatedBy: o.UpdatedBy, UpdatedAt: o.UpdatedAt}
	if o.DistanceKm != nil {
		km := o.DistanceKm.Float64()
		r.DistanceKm = &km
	}
	if o.TravelExpense != nil {
		v := o.TravelExpense.Round().Int64()
		r.TravelExpense = &v
	}
	if o.AllowanceAmount != nil {
		v := o.AllowanceAmount.Round().Int64()
		r.AllowanceAmount = &v
	}
	return r
}

func fromRecord(r overrideRecord) Override {
	o := Override{Reason: r.Reason, UpdatedBy: r.UpdatedBy, UpdatedAt: r.UpdatedAt}
	if r.DistanceKm != nil {
		km := generic.Km(*r.DistanceKm)
		o.DistanceKm = &km
	}
	if r.TravelExpense != nil {
		v := generic.Won(*r.TravelExpense)
		o.TravelExpense = &v
	}
	if r.AllowanceAmount != nil {
		v := generic.Won(*r.AllowanceAmount)
		o.AllowanceAmount = &v
	}
	return o
}

// =============================================================================
// OVERRIDE STORE
// =============================================================================

const overridePrefix = "override/"

// OverrideKey is the storage key of a row's override.
func OverrideKey(rowID string) string { return overridePrefix + rowID }

// OverrideStore persists overrides in a KVStore keyed by row ID.
type OverrideStore struct {
	kv     generic.KVStore
	logger *zap.Logger
	now    func() time.Time
}

func NewOverrideStore(kv generic.KVStore, logger *zap.Logger) *OverrideStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverrideStore{kv: kv, logger: logger, now: time.Now}
}

// WithClock replaces the clock used for UpdatedAt.
func (s *OverrideStore) WithClock(now func() time.Time) *OverrideStore {
	s.now = now
	return s
}

func (s *OverrideStore) Get(ctx context.Context, rowID string) (Override, error) {
	raw, err := s.kv.Get(ctx, OverrideKey(rowID))
	if err != nil {
		return Override{}, fmt.Errorf("override %s: %w", rowID, err)
	}
	var rec overrideRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Override{}, fmt.Errorf("decode override %s: %w", rowID, err)
	}
	return fromRecord(rec), nil
}

// Set validates and stores o, stamping UpdatedAt.
func (s *OverrideStore) Set(ctx context.Context, rowID string, o Override) (Override, error) {
	if strings.TrimSpace(rowID) == "" {
		return Override{}, fmt.Errorf("%w: empty row id", generic.ErrInvalidOverride)
	}
	if err := o.Validate(); err != nil {
		return Override{}, err
	}
	o.UpdatedAt = s.now().UTC()
	raw, err := json.Marshal(toRecord(o))
	if err != nil {
		return Override{}, fmt.Errorf("encode override %s: %w", rowID, err)
	}
	if err := s.kv.Put(ctx, OverrideKey(rowID), raw); err != nil {
		return Override{}, fmt.Errorf("store override %s: %w", rowID, err)
	}
	s.logger.Info("override set", zap.String("row_id", rowID), zap.String("by", o.UpdatedBy), zap.String("reason", o.Reason))
	// Round-trip so callers see exactly what was persisted.
	return fromRecord(toRecord(o)), nil
}

func (s *OverrideStore) Remove(ctx context.Context, rowID string) error {
	if err := s.kv.Delete(ctx, OverrideKey(rowID)); err != nil {
		return fmt.Errorf("remove override %s: %w", rowID, err)
	}
	s.logger.Info("override removed", zap.String("row_id", rowID))
	return nil
}

// All returns every stored override keyed by row ID. Undecodable records
// are logged and skipped.
func (s *OverrideStore) All(ctx context.Context) (map[string]Override, error) {
	entries, err := s.kv.List(ctx, overridePrefix)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	out := make(map[string]Override, len(entries))
	for key, raw := range entries {
		var rec overrideRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.logger.Warn("skipping corrupt override", zap.String("key", key), zap.Error(err))
			continue
		}
		out[strings.TrimPrefix(key, overridePrefix)] = fromRecord(rec)
	}
	return out, nil
}
