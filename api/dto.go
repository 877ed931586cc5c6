/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

UNITS:
  Money is whole won (int64, rounded half away from zero). Distances and
  hours are float64. Dates are YYYY-MM-DD, months YYYY-MM.

SEE ALSO:
  - handlers.go: Uses these types
  - settlement/pipeline.go: Aggregate types mirrored here
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/warp/settlement-engine/allowance"
	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/region"
	"github.com/warp/settlement-engine/settlement"
	"github.com/warp/settlement-engine/travel"
)

func won(a generic.Amount) int64 { return a.Round().Int64() }

func wonPtr(a *generic.Amount) *int64 {
	if a == nil {
		return nil
	}
	v := won(*a)
	return &v
}

func floatPtr(a *generic.Amount) *float64 {
	if a == nil {
		return nil
	}
	v := a.Float64()
	return &v
}

func dates(tps []generic.TimePoint) []string {
	out := make([]string, len(tps))
	for i, tp := range tps {
		out[i] = tp.String()
	}
	return out
}

// =============================================================================
// SETTLEMENT HIERARCHY
// =============================================================================

type TotalsDTO struct {
	Days             int   `json:"days"`
	Sessions         int   `json:"sessions"`
	TrainingPayment  int64 `json:"training_payment"`
	TravelAllowance  int64 `json:"travel_allowance"`
	TotalPayment     int64 `json:"total_payment"`
	EligibleDays     int   `json:"eligible_days"`
	EligibleSessions int   `json:"eligible_sessions"`
	EligiblePayment  int64 `json:"eligible_payment"`
}

func toTotalsDTO(t settlement.Totals) TotalsDTO {
	return TotalsDTO{
		Days:             t.Days,
		Sessions:         t.Sessions,
		TrainingPayment:  won(t.TrainingPayment),
		TravelAllowance:  won(t.TravelAllowance),
		TotalPayment:     won(t.TotalPayment),
		EligibleDays:     t.EligibleDays,
		EligibleSessions: t.EligibleSessions,
		EligiblePayment:  won(t.EligiblePayment),
	}
}

type BreakdownDTO struct {
	Role               string  `json:"role"`
	Category           string  `json:"category"`
	Rate               int64   `json:"rate"`
	Formula            string  `json:"formula"`
	BaseFee            int64   `json:"base_fee"`
	RemoteIsland       int64   `json:"remote_island"`
	SpecialEducation   int64   `json:"special_education"`
	Understaffed       int64   `json:"understaffed"`
	Weekend            int64   `json:"weekend"`
	MiddleSchool       int64   `json:"middle_school"`
	HighSchool         int64   `json:"high_school"`
	EquipmentTransport int64   `json:"equipment_transport"`
	EventParticipation int64   `json:"event_participation"`
	Mentoring          int64   `json:"mentoring"`
	MentoringMode      string  `json:"mentoring_mode,omitempty"`
	MentoringHours     float64 `json:"mentoring_hours"`
	AllowancesTotal    int64   `json:"allowances_total"`
	GrossTotal         int64   `json:"gross_total"`
}

func toBreakdownDTO(b allowance.Breakdown) BreakdownDTO {
	return BreakdownDTO{
		Role:               string(b.Role),
		Category:           string(b.Category),
		Rate:               won(b.Rate),
		Formula:            b.Formula,
		BaseFee:            won(b.BaseFee),
		RemoteIsland:       won(b.RemoteIsland),
		SpecialEducation:   won(b.SpecialEducation),
		Understaffed:       won(b.Understaffed),
		Weekend:            won(b.Weekend),
		MiddleSchool:       won(b.MiddleSchool),
		HighSchool:         won(b.HighSchool),
		EquipmentTransport: won(b.EquipmentTransport),
		EventParticipation: won(b.EventParticipation),
		Mentoring:          won(b.Mentoring),
		MentoringMode:      string(b.MentoringMode),
		MentoringHours:     b.MentoringHours.Float64(),
		AllowancesTotal:    won(b.AllowancesTotal),
		GrossTotal:         won(b.GrossTotal),
	}
}

type TrainingPaymentDTO struct {
	TrainingID      string       `json:"training_id"`
	TrainingName    string       `json:"training_name"`
	InstitutionID   string       `json:"institution_id"`
	InstitutionName string       `json:"institution_name"`
	Role            string       `json:"role"`
	Start           string       `json:"start,omitempty"`
	Sessions        int          `json:"sessions"`
	Region          string       `json:"region"`
	Eligible        bool         `json:"eligible"`
	Total           int64        `json:"total"`
	Breakdown       BreakdownDTO `json:"breakdown"`
}

type LegDTO struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Km     float64 `json:"km"`
	Found  bool    `json:"found"`
	Source string  `json:"source"`
}

type RouteDTO struct {
	Description string   `json:"description"`
	DistanceKm  float64  `json:"distance_km"`
	Legs        []LegDTO `json:"legs"`
	MapImageURL string   `json:"map_image_url,omitempty"`
}

func toRouteDTO(r travel.Route) RouteDTO {
	legs := make([]LegDTO, len(r.Legs))
	for i, l := range r.Legs {
		legs[i] = LegDTO{From: string(l.From), To: string(l.To), Km: l.Km.Float64(), Found: l.Found, Source: l.Source}
	}
	return RouteDTO{
		Description: r.Description,
		DistanceKm:  r.DistanceKm.Float64(),
		Legs:        legs,
		MapImageURL: r.MapImageURL,
	}
}

type TravelDTO struct {
	DistanceKm  float64 `json:"distance_km"`
	Amount      int64   `json:"amount"`
	Bracket     string  `json:"bracket,omitempty"`
	Explanation string  `json:"explanation"`
}

func toTravelDTO(t travel.TravelAllowance) TravelDTO {
	dto := TravelDTO{DistanceKm: t.DistanceKm.Float64(), Amount: won(t.Amount), Explanation: t.Explanation}
	if t.MatchedBracket != nil {
		dto.Bracket = t.MatchedBracket.String()
	}
	return dto
}

type DailyPaymentDTO struct {
	Date      string               `json:"date"`
	Trainings []TrainingPaymentDTO `json:"trainings"`
	Route     RouteDTO             `json:"route"`
	Travel    TravelDTO            `json:"travel"`
	Totals    TotalsDTO            `json:"totals"`
}

type MonthlyPaymentDTO struct {
	Month  string            `json:"month"`
	Days   []DailyPaymentDTO `json:"days"`
	Totals TotalsDTO         `json:"totals"`
}

type YearlyPaymentDTO struct {
	Year   int                 `json:"year"`
	Months []MonthlyPaymentDTO `json:"months"`
	Totals TotalsDTO           `json:"totals"`
}

type InstructorSettlementDTO struct {
	InstructorID   string             `json:"instructor_id"`
	InstructorName string             `json:"instructor_name"`
	Home           string             `json:"home"`
	Years          []YearlyPaymentDTO `json:"years"`
	Totals         TotalsDTO          `json:"totals"`
}

func toSettlementDTO(s settlement.InstructorSettlement) InstructorSettlementDTO {
	years := make([]YearlyPaymentDTO, 0, len(s.Years))
	for _, y := range s.Years {
		months := make([]MonthlyPaymentDTO, 0, len(y.Months))
		for _, m := range y.Months {
			days := make([]DailyPaymentDTO, 0, len(m.Days))
			for _, d := range m.Days {
				days = append(days, toDailyDTO(d))
			}
			months = append(months, MonthlyPaymentDTO{Month: m.Month.String(), Days: days, Totals: toTotalsDTO(m.Totals)})
		}
		years = append(years, YearlyPaymentDTO{Year: y.Year, Months: months, Totals: toTotalsDTO(y.Totals)})
	}
	return InstructorSettlementDTO{
		InstructorID:   s.InstructorID,
		InstructorName: s.InstructorName,
		Home:           s.Home.Label(),
		Years:          years,
		Totals:         toTotalsDTO(s.Totals),
	}
}

func toDailyDTO(d settlement.DailyPayment) DailyPaymentDTO {
	trainings := make([]TrainingPaymentDTO, len(d.Trainings))
	for i, tp := range d.Trainings {
		trainings[i] = TrainingPaymentDTO{
			TrainingID:      tp.TrainingID,
			TrainingName:    tp.TrainingName,
			InstitutionID:   tp.InstitutionID,
			InstitutionName: tp.InstitutionName,
			Role:            string(tp.Role),
			Start:           tp.Start,
			Sessions:        tp.Sessions,
			Region:          tp.Region.Label(),
			Eligible:        tp.Eligible,
			Total:           won(tp.Total()),
			Breakdown:       toBreakdownDTO(tp.Breakdown),
		}
	}
	return DailyPaymentDTO{
		Date:      d.Date.String(),
		Trainings: trainings,
		Route:     toRouteDTO(d.Route),
		Travel:    toTravelDTO(d.Travel),
		Totals:    toTotalsDTO(d.Totals),
	}
}

// =============================================================================
// ROWS AND OVERRIDES
// =============================================================================

type RowValuesDTO struct {
	DistanceKm      float64 `json:"distance_km"`
	TravelExpense   int64   `json:"travel_expense"`
	AllowanceAmount int64   `json:"allowance_amount"`
	Total           int64   `json:"total,omitempty"`
}

type OverrideDTO struct {
	DistanceKm      *float64  `json:"distance_km,omitempty"`
	TravelExpense   *int64    `json:"travel_expense,omitempty"`
	AllowanceAmount *int64    `json:"allowance_amount,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	UpdatedBy       string    `json:"updated_by,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type RowDTO struct {
	ID             string       `json:"id"`
	EducationID    string       `json:"education_id"`
	EducationName  string       `json:"education_name"`
	InstructorID   string       `json:"instructor_id"`
	InstructorName string       `json:"instructor_name"`
	Role           string       `json:"role"`
	Dates          []string     `json:"dates"`
	Sessions       int          `json:"sessions"`
	Eligible       bool         `json:"eligible"`
	Computed       RowValuesDTO `json:"computed"`
	Effective      RowValuesDTO `json:"effective"`
	Override       *OverrideDTO `json:"override,omitempty"`
	Breakdown      BreakdownDTO `json:"breakdown"`
}

func toRowDTO(r settlement.Row) RowDTO {
	dto := RowDTO{
		ID:             r.ID,
		EducationID:    r.EducationID,
		EducationName:  r.EducationName,
		InstructorID:   r.InstructorID,
		InstructorName: r.InstructorName,
		Role:           string(r.Role),
		Dates:          dates(r.Dates),
		Sessions:       r.Sessions,
		Eligible:       r.Eligible,
		Computed: RowValuesDTO{
			DistanceKm:      r.Computed.DistanceKm.Float64(),
			TravelExpense:   won(r.Computed.TravelExpense),
			AllowanceAmount: won(r.Computed.AllowanceAmount),
			Total:           won(r.Computed.AllowanceAmount.Add(r.Computed.TravelExpense)),
		},
		Effective: RowValuesDTO{
			DistanceKm:      r.EffectiveDistanceKm().Float64(),
			TravelExpense:   won(r.EffectiveTravelExpense()),
			AllowanceAmount: won(r.EffectiveAllowanceAmount()),
			Total:           won(r.EffectiveTotal()),
		},
		Breakdown: toBreakdownDTO(r.Breakdown),
	}
	if o := r.Override; o != nil {
		dto.Override = &OverrideDTO{
			DistanceKm:      floatPtr(o.DistanceKm),
			TravelExpense:   wonPtr(o.TravelExpense),
			AllowanceAmount: wonPtr(o.AllowanceAmount),
			Reason:          o.Reason,
			UpdatedBy:       o.UpdatedBy,
			UpdatedAt:       o.UpdatedAt,
		}
	}
	return dto
}

// OverrideRequest sets any subset of the three overridable values.
type OverrideRequest struct {
	DistanceKm      *float64 `json:"distance_km"`
	TravelExpense   *int64   `json:"travel_expense"`
	AllowanceAmount *int64   `json:"allowance_amount"`
	Reason          string   `json:"reason"`
	UpdatedBy       string   `json:"updated_by"`
}

func (req OverrideRequest) toOverride() settlement.Override {
	o := settlement.Override{Reason: req.Reason, UpdatedBy: req.UpdatedBy}
	if req.DistanceKm != nil {
		v := generic.Km(*req.DistanceKm)
		o.DistanceKm = &v
	}
	if req.TravelExpense != nil {
		v := generic.Won(*req.TravelExpense)
		o.TravelExpense = &v
	}
	if req.AllowanceAmount != nil {
		v := generic.Won(*req.AllowanceAmount)
		o.AllowanceAmount = &v
	}
	return o
}

// =============================================================================
// SNAPSHOT / POLICIES
// =============================================================================

type SnapshotDTO struct {
	RunID          string            `json:"run_id"`
	ComputedAt     time.Time         `json:"computed_at"`
	Instructors    int               `json:"instructors"`
	Rows           int               `json:"rows"`
	CountingMode   string            `json:"counting_mode"`
	PolicyVersions map[string]int    `json:"policy_versions"`
	Warnings       []generic.Warning `json:"warnings"`
}

func toSnapshotDTO(s *settlement.Snapshot) SnapshotDTO {
	versions := make(map[string]int, len(s.PolicyVersions))
	for k, v := range s.PolicyVersions {
		versions[string(k)] = v
	}
	warnings := s.Diagnostics.Warnings
	if warnings == nil {
		warnings = []generic.Warning{}
	}
	return SnapshotDTO{
		RunID:          s.RunID,
		ComputedAt:     s.ComputedAt,
		Instructors:    len(s.Settlements),
		Rows:           len(s.Rows),
		CountingMode:   string(s.CountingMode),
		PolicyVersions: versions,
		Warnings:       warnings,
	}
}

// PolicyDTO is one active policy. Version 0 means the compiled-in default.
type PolicyDTO struct {
	Kind      string          `json:"kind"`
	Version   int             `json:"version"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
	UpdatedBy string          `json:"updated_by,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// =============================================================================
// DIRECTORY
// =============================================================================

type RegionFieldsDTO struct {
	CityCounty string   `json:"city_county"`
	RegionCode string   `json:"region_code,omitempty"`
	Address    string   `json:"address,omitempty"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
}

func toRegionFields(r region.Region) RegionFieldsDTO {
	dto := RegionFieldsDTO{CityCounty: r.CityCounty, Address: r.Address, Lat: r.Lat, Lng: r.Lng}
	if r.Code != nil {
		dto.RegionCode = string(*r.Code)
	}
	return dto
}

func (f RegionFieldsDTO) toRegion() region.Region {
	r := region.Region{CityCounty: f.CityCounty, Address: f.Address, Lat: f.Lat, Lng: f.Lng}
	if f.RegionCode != "" {
		c := region.Code(f.RegionCode)
		r.Code = &c
	}
	return r
}

type InstructorDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	RegionFieldsDTO
}

type InstitutionDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	RegionFieldsDTO
}

type AssignmentDTO struct {
	InstructorID       string  `json:"instructor_id"`
	Role               string  `json:"role"`
	Date               string  `json:"date"`
	Start              string  `json:"start,omitempty"`
	End                string  `json:"end,omitempty"`
	Sessions           int     `json:"sessions"`
	WeekendSessions    int     `json:"weekend_sessions,omitempty"`
	EventParticipation bool    `json:"event_participation,omitempty"`
	EventHours         float64 `json:"event_hours,omitempty"`
	MentoringSessions  int     `json:"mentoring_sessions,omitempty"`
	MentoringHours     float64 `json:"mentoring_hours,omitempty"`
	EquipmentTransport bool    `json:"equipment_transport,omitempty"`
}

type TrainingDTO struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	InstitutionID    string          `json:"institution_id"`
	Status           string          `json:"status"`
	SpecialEducation bool            `json:"special_education"`
	RemoteIsland     bool            `json:"remote_island"`
	SchoolLevel      string          `json:"school_level,omitempty"`
	StudentCount     int             `json:"student_count,omitempty"`
	Assignments      []AssignmentDTO `json:"assignments"`
}

func toTrainingDTO(t settlement.Training) TrainingDTO {
	dto := TrainingDTO{
		ID:               t.ID,
		Name:             t.Name,
		InstitutionID:    t.InstitutionID,
		Status:           t.Status,
		SpecialEducation: t.SpecialEducation,
		RemoteIsland:     t.RemoteIsland,
		SchoolLevel:      string(t.SchoolLevel),
		StudentCount:     t.StudentCount,
		Assignments:      make([]AssignmentDTO, len(t.Assignments)),
	}
	for i, a := range t.Assignments {
		dto.Assignments[i] = AssignmentDTO{
			InstructorID:       a.InstructorID,
			Role:               string(a.Role),
			Date:               a.Date.String(),
			Start:              a.Start,
			End:                a.End,
			Sessions:           a.Sessions,
			WeekendSessions:    a.WeekendSessions,
			EventParticipation: a.EventParticipation,
			EventHours:         a.EventHours.Float64(),
			MentoringSessions:  a.MentoringSessions,
			MentoringHours:     a.MentoringHours.Float64(),
			EquipmentTransport: a.EquipmentTransport,
		}
	}
	return dto
}

type RegionDTO struct {
	Code string  `json:"code"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

type DistanceDTO struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Km     float64 `json:"km"`
	Found  bool    `json:"found"`
	Source string  `json:"source"`
}

type DistanceRequest struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	Km   float64 `json:"km"`
}

type HolidayDTO struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
