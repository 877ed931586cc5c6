package settlement

import (
	"context"
	"errors"

	"github.com/warp/settlement-engine/allowance"
	"github.com/warp/settlement-engine/eligibility"
	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/region"
)

// =============================================================================
// DAILY FACT - One assignment joined with its training and institution
// =============================================================================

type DailyFact struct {
	TrainingID      string
	TrainingName    string
	InstitutionID   string
	InstitutionName string
	InstructorID    string
	Date            generic.TimePoint
	Start           string
	Region          region.Region

	Facts              allowance.SessionFacts
	IsCountingEligible bool
}

// FactBuilder joins assignments with directory data.
type FactBuilder struct {
	Institutions InstitutionDirectory
	Resolver     *region.Resolver
	Filter       eligibility.Filter
	Calendar     generic.HolidayCalendar
}

// Build produces one DailyFact per assignment. Unknown institutions are
// reported and computed at the GENERAL rate without a region.
func (b FactBuilder) Build(ctx context.Context, trainings []Training) ([]DailyFact, generic.Diagnostics, error) {
	var diags generic.Diagnostics
	var out []DailyFact

	for _, t := range trainings {
		inst, err := b.Institutions.Institution(ctx, t.InstitutionID)
		switch {
		case errors.Is(err, generic.ErrNotFound):
			diags.Warn(generic.WarnUnknownInstitution, t.InstitutionID, "training %s references unknown institution %s", t.ID, t.InstitutionID)
			inst = Institution{ID: t.InstitutionID, Category: allowance.CategoryGeneral}
		case err != nil:
			return nil, diags, err
		}
		if b.Resolver != nil {
			inst.Region = b.Resolver.Apply(inst.Region)
		}

		eligible := b.Filter.Counts(eligibilityRecord(t))

		for _, a := range t.Assignments {
			weekend := a.WeekendSessions
			if weekend == 0 && a.Date.IsRestDay(b.Calendar, "") {
				weekend = a.Sessions
			}
			equipmentDays := 0
			if a.EquipmentTransport {
				equipmentDays = 1
			}
			out = append(out, DailyFact{
				TrainingID:      t.ID,
				TrainingName:    t.Name,
				InstitutionID:   inst.ID,
				InstitutionName: inst.Name,
				InstructorID:    a.InstructorID,
				Date:            a.Date,
				Start:           a.Start,
				Region:          inst.Region,
				Facts: allowance.SessionFacts{
					Role:                   a.Role,
					Category:               inst.Category,
					Sessions:               a.Sessions,
					RemoteIsland:           t.RemoteIsland,
					SpecialEducation:       t.SpecialEducation,
					StudentCount:           t.StudentCount,
					HasAssistant:           hasAssistantOn(t, a.Date),
					WeekendSessions:        weekend,
					EventParticipation:     a.EventParticipation,
					EventHours:             a.EventHours,
					SchoolLevel:            t.SchoolLevel,
					EquipmentTransportDays: equipmentDays,
					MentoringSessions:      a.MentoringSessions,
					MentoringHours:         a.MentoringHours,
				},
				IsCountingEligible: eligible,
			})
		}
	}
	return out, diags, nil
}

func eligibilityRecord(t Training) eligibility.Record {
	r := eligibility.Record{Status: t.Status}
	for _, a := range t.Assignments {
		switch a.Role {
		case allowance.RoleMain:
			r.MainAssigned++
		case allowance.RoleAssistant:
			r.AssistantAssigned++
		}
	}
	return r
}

func hasAssistantOn(t Training, date generic.TimePoint) bool {
	for _, a := range t.Assignments {
		if a.Role == allowance.RoleAssistant && a.Date.Equal(date) {
			return true
		}
	}
	return false
}
