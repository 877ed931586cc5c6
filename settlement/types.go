/*
Package settlement turns training records into instructor pay.

PURPOSE:
  Given every training with its per-day instructor assignments, compute
  what each instructor is owed: per day (training pay plus one travel
  allowance), rolled into months, years and an instructor total. The same
  pass produces settlement rows, one per (training, instructor, role),
  which carry manual overrides.

CONTROL FLOW:
  RecordSource.Trainings
      → BuildFacts     (directories, region resolution, eligibility, weekend)
      → Pipeline.Days  (merge per training/role, caps, route, travel)
      → Pipeline.Fold  (month equipment cap, month → year → instructor)
      → BuildRows      (per training/instructor/role, travel on first visit)
      → ApplyOverrides (persisted manual corrections)

KEY CONCEPTS:
  - Training / Assignment: Source records (input only)
  - DailyFact: One assignment joined with its training and institution
  - DailyPayment / MonthlyPayment / YearlyPayment: Derived aggregates
  - Totals: The numeric fields every aggregate level carries
  - Row / Override: Settlement row and its manual correction

INVARIANTS:
  - Parent totals equal the sum of children for every Totals field
  - Eligible values never exceed total values
  - Empty days, months and years are never emitted
  - Aggregates are recomputed from day records, never patched

SEE ALSO:
  - facts.go: DailyFact construction
  - pipeline.go: Day and fold logic
  - rows.go, override.go: Settlement rows and overrides
  - service.go: Recompute orchestration
*/
package settlement

import (
	"context"
	"fmt"

	"github.com/warp/settlement-engine/allowance"
	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/region"
)

// =============================================================================
// SOURCE RECORDS
// =============================================================================

// Training is one education program delivered at an institution.
type Training struct {
	ID               string
	Name             string
	InstitutionID    string
	Status           string
	SpecialEducation bool
	RemoteIsland     bool
	SchoolLevel      allowance.SchoolLevel
	StudentCount     int
	Assignments      []Assignment
}

// Assignment is one instructor's participation in a training on one date.
type Assignment struct {
	InstructorID string
	Role         allowance.Role
	Date         generic.TimePoint
	Start        string // "HH:MM", orders the day's visits
	End          string
	Sessions     int

	// WeekendSessions 0 on a weekend or holiday means every session is a
	// weekend session.
	WeekendSessions int

	EventParticipation bool
	EventHours         generic.Amount // hours

	MentoringSessions int
	MentoringHours    generic.Amount // hours

	EquipmentTransport bool
}

// Instructor is a directory entry.
type Instructor struct {
	ID   string
	Name string
	Home region.Region
}

// Institution is a directory entry.
type Institution struct {
	ID       string
	Name     string
	Category allowance.Category
	Region   region.Region
}

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// InstructorDirectory looks up instructors. Unknown IDs return ErrNotFound.
type InstructorDirectory interface {
	Instructor(ctx context.Context, id string) (Instructor, error)
}

// InstitutionDirectory looks up institutions. Unknown IDs return ErrNotFound.
type InstitutionDirectory interface {
	Institution(ctx context.Context, id string) (Institution, error)
}

// RecordSource lists every training with its assignments.
type RecordSource interface {
	Trainings(ctx context.Context) ([]Training, error)
}

// =============================================================================
// STATIC DIRECTORY - In-memory collaborators (tests, fixtures, imports)
// =============================================================================

// StaticDirectory serves instructors, institutions and trainings from memory.
type StaticDirectory struct {
	Instructors  map[string]Instructor
	Institutions map[string]Institution
	Records      []Training
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		Instructors:  make(map[string]Instructor),
		Institutions: make(map[string]Institution),
	}
}

func (d *StaticDirectory) AddInstructor(i Instructor)   { d.Instructors[i.ID] = i }
func (d *StaticDirectory) AddInstitution(i Institution) { d.Institutions[i.ID] = i }
func (d *StaticDirectory) AddTraining(t Training)       { d.Records = append(d.Records, t) }

func (d *StaticDirectory) Instructor(_ context.Context, id string) (Instructor, error) {
	if i, ok := d.Instructors[id]; ok {
		return i, nil
	}
	return Instructor{}, fmt.Errorf("instructor %s: %w", id, generic.ErrNotFound)
}

func (d *StaticDirectory) Institution(_ context.Context, id string) (Institution, error) {
	if i, ok := d.Institutions[id]; ok {
		return i, nil
	}
	return Institution{}, fmt.Errorf("institution %s: %w", id, generic.ErrNotFound)
}

func (d *StaticDirectory) Trainings(_ context.Context) ([]Training, error) {
	out := make([]Training, len(d.Records))
	copy(out, d.Records)
	return out, nil
}

var (
	_ InstructorDirectory  = (*StaticDirectory)(nil)
	_ InstitutionDirectory = (*StaticDirectory)(nil)
	_ RecordSource         = (*StaticDirectory)(nil)
)
