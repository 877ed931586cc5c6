package settlement

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/warp/settlement-engine/allowance"
	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/region"
	"github.com/warp/settlement-engine/travel"
)

// =============================================================================
// AGGREGATES
// =============================================================================

// Totals are the numeric fields carried at every aggregation level.
type Totals struct {
	Days            int
	Sessions        int
	TrainingPayment generic.Amount
	TravelAllowance generic.Amount
	TotalPayment    generic.Amount

	EligibleDays     int
	EligibleSessions int
	EligiblePayment  generic.Amount
}

func zeroTotals() Totals {
	z := generic.Won(0)
	return Totals{TrainingPayment: z, TravelAllowance: z, TotalPayment: z, EligiblePayment: z}
}

func (t Totals) add(o Totals) Totals {
	return Totals{
		Days:             t.Days + o.Days,
		Sessions:         t.Sessions + o.Sessions,
		TrainingPayment:  t.TrainingPayment.Add(o.TrainingPayment),
		TravelAllowance:  t.TravelAllowance.Add(o.TravelAllowance),
		TotalPayment:     t.TotalPayment.Add(o.TotalPayment),
		EligibleDays:     t.EligibleDays + o.EligibleDays,
		EligibleSessions: t.EligibleSessions + o.EligibleSessions,
		EligiblePayment:  t.EligiblePayment.Add(o.EligiblePayment),
	}
}

// TrainingPayment is the pay for one (training, role) on one day.
type TrainingPayment struct {
	TrainingID      string
	TrainingName    string
	InstitutionID   string
	InstitutionName string
	Role            allowance.Role
	Start           string
	Sessions        int
	Region          region.Region
	Breakdown       allowance.Breakdown
	Eligible        bool
}

func (tp TrainingPayment) Total() generic.Amount { return tp.Breakdown.GrossTotal }

// RowID is the settlement row this payment belongs to.
func (tp TrainingPayment) RowID(instructorID string) string {
	return RowID(tp.TrainingID, instructorID, tp.Role)
}

// DailyPayment is one instructor's pay for one calendar day.
type DailyPayment struct {
	InstructorID string
	Date         generic.TimePoint
	Trainings    []TrainingPayment // visiting order
	Route        travel.Route
	Travel       travel.TravelAllowance
	Totals       Totals
}

// MonthlyPayment folds the days of one calendar month.
type MonthlyPayment struct {
	Month  generic.MonthKey
	Days   []DailyPayment
	Totals Totals
}

// YearlyPayment folds the months of one year.
type YearlyPayment struct {
	Year   int
	Months []MonthlyPayment
	Totals Totals
}

// InstructorSettlement is the full hierarchy for one instructor.
type InstructorSettlement struct {
	InstructorID   string
	InstructorName string
	Home           region.Region
	Years          []YearlyPayment
	Totals         Totals
}

// AllDays flattens the hierarchy in chronological order.
func (s InstructorSettlement) AllDays() []DailyPayment {
	var out []DailyPayment
	for _, y := range s.Years {
		for _, m := range y.Months {
			out = append(out, m.Days...)
		}
	}
	return out
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline folds daily facts into the settlement hierarchy with one
// policy snapshot.
type Pipeline struct {
	engine   *allowance.Engine
	brackets travel.BracketTable
	routes   *travel.Builder
	logger   *zap.Logger
}

func NewPipeline(engine *allowance.Engine, brackets travel.BracketTable, routes *travel.Builder, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{engine: engine, brackets: brackets, routes: routes, logger: logger}
}

type dayKey struct {
	instructorID string
	date         string
}

type paymentKey struct {
	trainingID string
	role       allowance.Role
}

// Run builds the hierarchy of every instructor present in facts, sorted
// by instructor ID.
func (p *Pipeline) Run(ctx context.Context, facts []DailyFact, instructors InstructorDirectory) ([]InstructorSettlement, generic.Diagnostics, error) {
	var diags generic.Diagnostics

	byInstructor := make(map[string][]DailyFact)
	for _, f := range facts {
		byInstructor[f.InstructorID] = append(byInstructor[f.InstructorID], f)
	}
	ids := make([]string, 0, len(byInstructor))
	for id := range byInstructor {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]InstructorSettlement, 0, len(ids))
	for _, id := range ids {
		inst, err := instructors.Instructor(ctx, id)
		switch {
		case errors.Is(err, generic.ErrNotFound):
			diags.Warn(generic.WarnUnknownInstructor, id, "assignments reference unknown instructor %s", id)
			inst = Instructor{ID: id}
		case err != nil:
			return nil, diags, err
		}

		days, dayDiags := p.Days(ctx, inst, byInstructor[id])
		diags.Merge(dayDiags)

		s := p.Assemble(inst, days)
		if len(s.Years) > 0 {
			out = append(out, s)
		}
	}
	return out, diags, nil
}

// Days groups one instructor's facts by date and builds each day.
func (p *Pipeline) Days(ctx context.Context, inst Instructor, facts []DailyFact) ([]DailyPayment, generic.Diagnostics) {
	var diags generic.Diagnostics

	byDate := make(map[string][]DailyFact)
	var dates []string
	for _, f := range facts {
		k := f.Date.String()
		if _, ok := byDate[k]; !ok {
			dates = append(dates, k)
		}
		byDate[k] = append(byDate[k], f)
	}
	sort.Strings(dates)

	days := make([]DailyPayment, 0, len(dates))
	for _, d := range dates {
		day, dayDiags := p.Day(ctx, inst, byDate[d])
		diags.Merge(dayDiags)
		if len(day.Trainings) > 0 {
			days = append(days, day)
		}
	}
	return days, diags
}

// Day builds one instructor-day: facts merged per (training, role), visits
// ordered by start time, equipment transport once, mentoring hours capped,
// one route and one travel allowance.
func (p *Pipeline) Day(ctx context.Context, inst Instructor, facts []DailyFact) (DailyPayment, generic.Diagnostics) {
	if len(facts) == 0 {
		return DailyPayment{InstructorID: inst.ID, Totals: zeroTotals()}, generic.Diagnostics{}
	}
	day := DailyPayment{InstructorID: inst.ID, Date: facts[0].Date}

	merged := make(map[paymentKey]*DailyFact)
	var order []paymentKey
	for i := range facts {
		f := facts[i]
		if f.Facts.Sessions <= 0 && !hasExtras(f.Facts) {
			continue
		}
		k := paymentKey{f.TrainingID, f.Facts.Role}
		if existing, ok := merged[k]; ok {
			mergeFacts(existing, f)
			continue
		}
		merged[k] = &f
		order = append(order, k)
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := merged[order[i]], merged[order[j]]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.TrainingID != b.TrainingID {
			return a.TrainingID < b.TrainingID
		}
		return a.Facts.Role < b.Facts.Role
	})

	mentoring := p.engine.MentoringHourCap()
	equipmentPaid := false
	var stops []region.Region
	seen := make(map[string]bool)

	for _, k := range order {
		f := merged[k]
		b := p.engine.Compute(f.Facts)
		b = p.engine.ApplyMentoringHourCap(b, mentoring)
		if b.EquipmentTransport.IsPositive() {
			if equipmentPaid {
				b.EquipmentTransport = b.EquipmentTransport.Zero()
				b = b.Retotal()
			}
			equipmentPaid = true
		}

		day.Trainings = append(day.Trainings, TrainingPayment{
			TrainingID:      f.TrainingID,
			TrainingName:    f.TrainingName,
			InstitutionID:   f.InstitutionID,
			InstitutionName: f.InstitutionName,
			Role:            f.Facts.Role,
			Start:           f.Start,
			Sessions:        f.Facts.Sessions,
			Region:          f.Region,
			Breakdown:       b,
			Eligible:        f.IsCountingEligible,
		})

		if rk := regionKey(f.Region); !seen[rk] {
			seen[rk] = true
			stops = append(stops, f.Region)
		}
	}

	var diags generic.Diagnostics
	if len(day.Trainings) == 0 {
		day.Totals = zeroTotals()
		return day, diags
	}

	route, routeDiags := p.routes.Build(ctx, inst.Home, stops)
	for _, w := range routeDiags.Warnings {
		w.Ref = inst.ID + "@" + day.Date.String() + ": " + w.Ref
		diags.Warnings = append(diags.Warnings, w)
	}
	day.Route = route
	day.Travel = p.brackets.Allowance(route.DistanceKm)
	day.Totals = dayTotals(day)
	return day, diags
}

func hasExtras(f allowance.SessionFacts) bool {
	return f.EquipmentTransportDays > 0 || f.EventHours.IsPositive() ||
		f.MentoringSessions > 0 || f.MentoringHours.IsPositive()
}

func mergeFacts(dst *DailyFact, src DailyFact) {
	d, s := &dst.Facts, src.Facts
	d.Sessions += s.Sessions
	d.WeekendSessions += s.WeekendSessions
	d.EventParticipation = d.EventParticipation || s.EventParticipation
	d.EventHours = d.EventHours.Add(s.EventHours)
	d.MentoringSessions += s.MentoringSessions
	d.MentoringHours = d.MentoringHours.Add(s.MentoringHours)
	if s.EquipmentTransportDays > 0 {
		d.EquipmentTransportDays = 1
	}
	if src.Start != "" && (dst.Start == "" || src.Start < dst.Start) {
		dst.Start = src.Start
	}
}

func regionKey(r region.Region) string {
	if r.Resolved() {
		return string(*r.Code)
	}
	return "?" + r.Label()
}

// dayTotals derives a day's Totals from its trainings and travel.
// Travel counts as eligible when any training that day is eligible.
func dayTotals(day DailyPayment) Totals {
	t := zeroTotals()
	t.Days = 1
	anyEligible := false
	for _, tp := range day.Trainings {
		t.Sessions += tp.Sessions
		t.TrainingPayment = t.TrainingPayment.Add(tp.Total())
		if tp.Eligible {
			anyEligible = true
			t.EligibleSessions += tp.Sessions
			t.EligiblePayment = t.EligiblePayment.Add(tp.Total())
		}
	}
	travelAmount := day.Travel.Amount
	if travelAmount.Unit == "" {
		travelAmount = generic.Won(0)
	}
	t.TravelAllowance = travelAmount
	t.TotalPayment = t.TrainingPayment.Add(travelAmount)
	if anyEligible {
		t.EligibleDays = 1
		t.EligiblePayment = t.EligiblePayment.Add(travelAmount)
	}
	return t
}

// =============================================================================
// FOLDS
// =============================================================================

// Assemble folds days into months, years and the instructor total.
func (p *Pipeline) Assemble(inst Instructor, days []DailyPayment) InstructorSettlement {
	s := InstructorSettlement{
		InstructorID:   inst.ID,
		InstructorName: inst.Name,
		Home:           inst.Home,
		Totals:         zeroTotals(),
	}
	for _, y := range FoldYears(p.FoldMonths(days)) {
		s.Years = append(s.Years, y)
		s.Totals = s.Totals.add(y.Totals)
	}
	return s
}

// FoldMonths groups days by month and applies the monthly equipment
// transport cap in chronological, then visiting, order. Excess over the
// cap is discarded. Folding already-capped days changes nothing.
func (p *Pipeline) FoldMonths(days []DailyPayment) []MonthlyPayment {
	sorted := make([]DailyPayment, len(days))
	copy(sorted, days)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	var months []MonthlyPayment
	var limit *allowance.Cap
	for _, d := range sorted {
		if len(d.Trainings) == 0 {
			continue
		}
		key := d.Date.MonthKey()
		if len(months) == 0 || months[len(months)-1].Month != key {
			months = append(months, MonthlyPayment{Month: key, Totals: zeroTotals()})
			limit = p.engine.EquipmentCap()
		}
		d = capEquipment(d, limit)
		m := &months[len(months)-1]
		m.Days = append(m.Days, d)
		m.Totals = m.Totals.add(d.Totals)
	}
	return months
}

func capEquipment(d DailyPayment, limit *allowance.Cap) DailyPayment {
	trainings := make([]TrainingPayment, len(d.Trainings))
	copy(trainings, d.Trainings)
	changed := false
	for i, tp := range trainings {
		if !tp.Breakdown.EquipmentTransport.IsPositive() {
			continue
		}
		granted := limit.Take(tp.Breakdown.EquipmentTransport)
		if !granted.Equal(tp.Breakdown.EquipmentTransport) {
			tp.Breakdown.EquipmentTransport = granted
			tp.Breakdown = tp.Breakdown.Retotal()
			trainings[i] = tp
			changed = true
		}
	}
	d.Trainings = trainings
	if changed {
		d.Totals = dayTotals(d)
	}
	return d
}

// FoldYears groups months by year.
func FoldYears(months []MonthlyPayment) []YearlyPayment {
	var years []YearlyPayment
	for _, m := range months {
		if len(years) == 0 || years[len(years)-1].Year != m.Month.Year {
			years = append(years, YearlyPayment{Year: m.Month.Year, Totals: zeroTotals()})
		}
		y := &years[len(years)-1]
		y.Months = append(y.Months, m)
		y.Totals = y.Totals.add(m.Totals)
	}
	return years
}

// Refilter rebuilds the hierarchy from the day records inside period.
// Every total is recomputed; nodes left empty are dropped.
func (p *Pipeline) Refilter(s InstructorSettlement, period generic.Period) InstructorSettlement {
	var days []DailyPayment
	for _, d := range s.AllDays() {
		if period.Contains(d.Date) {
			days = append(days, d)
		}
	}
	return p.Assemble(Instructor{ID: s.InstructorID, Name: s.InstructorName, Home: s.Home}, days)
}
