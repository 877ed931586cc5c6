package statement

import (
	"sort"

	"github.com/warp/settlement-engine/allowance"
	"github.com/warp/settlement-engine/generic"
	"github.com/warp/settlement-engine/settlement"
)

// Classification labels an instructor by the roles they were paid for.
type Classification string

const (
	ClassMain          Classification = "main"
	ClassAssistant     Classification = "assistant"
	ClassMainAssistant Classification = "main+assistant"
	ClassUnclassified  Classification = "unclassified"
)

// Classify derives the label from session counts.
func Classify(mainSessions, assistantSessions int) Classification {
	switch {
	case mainSessions > 0 && assistantSessions > 0:
		return ClassMainAssistant
	case mainSessions > 0:
		return ClassMain
	case assistantSessions > 0:
		return ClassAssistant
	default:
		return ClassUnclassified
	}
}

// Row is one instructor's statement line.
type Row struct {
	InstructorID   string
	Name           string
	Classification Classification

	Special            generic.Amount
	RemoteIsland       generic.Amount
	Weekend            generic.Amount
	EventParticipation generic.Amount
	Other              generic.Amount // understaffed + mentoring + allowance override delta
	EquipmentTransport generic.Amount
	Travel             generic.Amount
	MiddleHighSchool   generic.Amount

	MainSessions      int
	AssistantSessions int
	MainBaseFee       generic.Amount
	AssistantBaseFee  generic.Amount

	TotalAllowance generic.Amount // gross
	Tax            Tax
}

// Options select which settlement rows feed the statement.
type Options struct {
	EligibleOnly bool
	// InstructorIDs restricts the statement when non-empty.
	InstructorIDs []string
}

func newRow(id, name string) *Row {
	z := generic.Won(0)
	return &Row{
		InstructorID: id, Name: name,
		Special: z, RemoteIsland: z, Weekend: z, EventParticipation: z, Other: z,
		EquipmentTransport: z, Travel: z, MiddleHighSchool: z,
		MainBaseFee: z, AssistantBaseFee: z, TotalAllowance: z,
	}
}

// Build folds settlement rows into one statement row per instructor,
// sorted by name then ID. Overrides are honored through the rows'
// effective values.
func Build(rows []settlement.Row, opts Options) []Row {
	only := make(map[string]bool, len(opts.InstructorIDs))
	for _, id := range opts.InstructorIDs {
		only[id] = true
	}

	byInstructor := make(map[string]*Row)
	for _, r := range rows {
		if opts.EligibleOnly && !r.Eligible {
			continue
		}
		if len(only) > 0 && !only[r.InstructorID] {
			continue
		}
		st, ok := byInstructor[r.InstructorID]
		if !ok {
			st = newRow(r.InstructorID, r.InstructorName)
			byInstructor[r.InstructorID] = st
		}

		b := r.Breakdown
		st.Special = st.Special.Add(b.SpecialEducation)
		st.RemoteIsland = st.RemoteIsland.Add(b.RemoteIsland)
		st.Weekend = st.Weekend.Add(b.Weekend)
		st.EventParticipation = st.EventParticipation.Add(b.EventParticipation)
		st.Other = st.Other.Add(b.Understaffed).Add(b.Mentoring).Add(r.AllowanceDelta())
		st.EquipmentTransport = st.EquipmentTransport.Add(b.EquipmentTransport)
		st.Travel = st.Travel.Add(r.EffectiveTravelExpense())
		st.MiddleHighSchool = st.MiddleHighSchool.Add(b.MiddleSchool).Add(b.HighSchool)

		switch r.Role {
		case allowance.RoleMain:
			st.MainSessions += r.Sessions
			st.MainBaseFee = st.MainBaseFee.Add(b.BaseFee)
		case allowance.RoleAssistant:
			st.AssistantSessions += r.Sessions
			st.AssistantBaseFee = st.AssistantBaseFee.Add(b.BaseFee)
		}
		st.TotalAllowance = st.TotalAllowance.Add(r.EffectiveTotal())
	}

	out := make([]Row, 0, len(byInstructor))
	for _, st := range byInstructor {
		st.Classification = Classify(st.MainSessions, st.AssistantSessions)
		st.Tax = Withhold(st.TotalAllowance)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].InstructorID < out[j].InstructorID
	})
	return out
}

// Totals sums every numeric column of rows into one line.
func Totals(rows []Row) Row {
	t := newRow("", "TOTAL")
	for _, r := range rows {
		t.Special = t.Special.Add(r.Special)
		t.RemoteIsland = t.RemoteIsland.Add(r.RemoteIsland)
		t.Weekend = t.Weekend.Add(r.Weekend)
		t.EventParticipation = t.EventParticipation.Add(r.EventParticipation)
		t.Other = t.Other.Add(r.Other)
		t.EquipmentTransport = t.EquipmentTransport.Add(r.EquipmentTransport)
		t.Travel = t.Travel.Add(r.Travel)
		t.MiddleHighSchool = t.MiddleHighSchool.Add(r.MiddleHighSchool)
		t.MainSessions += r.MainSessions
		t.AssistantSessions += r.AssistantSessions
		t.MainBaseFee = t.MainBaseFee.Add(r.MainBaseFee)
		t.AssistantBaseFee = t.AssistantBaseFee.Add(r.AssistantBaseFee)
		t.TotalAllowance = t.TotalAllowance.Add(r.TotalAllowance)
	}
	t.Classification = Classify(t.MainSessions, t.AssistantSessions)
	// Per-instructor taxes are summed, not recomputed on the grand total.
	t.Tax = Tax{Gross: t.TotalAllowance, IncomeTax: generic.Won(0), LocalIncomeTax: generic.Won(0)}
	for _, r := range rows {
		t.Tax.IncomeTax = t.Tax.IncomeTax.Add(r.Tax.IncomeTax)
		t.Tax.LocalIncomeTax = t.Tax.LocalIncomeTax.Add(r.Tax.LocalIncomeTax)
	}
	t.Tax.Total = t.Tax.IncomeTax.Add(t.Tax.LocalIncomeTax)
	t.Tax.Net = t.TotalAllowance.Sub(t.Tax.Total)
	return *t
}
