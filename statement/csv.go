package statement

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/warp/settlement-engine/generic"
)

// Column is one statement column. The table below fixes the export order.
type Column struct {
	Header string
	Value  func(Row) any
}

func amount(get func(Row) generic.Amount) func(Row) any {
	return func(r Row) any { return get(r).Round().Int64() }
}

var Columns = []Column{
	{"classification", func(r Row) any { return string(r.Classification) }},
	{"name", func(r Row) any { return r.Name }},
	{"special_allowance", amount(func(r Row) generic.Amount { return r.Special })},
	{"remote_island_allowance", amount(func(r Row) generic.Amount { return r.RemoteIsland })},
	{"weekend_allowance", amount(func(r Row) generic.Amount { return r.Weekend })},
	{"event_participation_allowance", amount(func(r Row) generic.Amount { return r.EventParticipation })},
	{"other_allowance", amount(func(r Row) generic.Amount { return r.Other })},
	{"equipment_transport_allowance", amount(func(r Row) generic.Amount { return r.EquipmentTransport })},
	{"travel_allowance", amount(func(r Row) generic.Amount { return r.Travel })},
	{"middle_high_school_allowance", amount(func(r Row) generic.Amount { return r.MiddleHighSchool })},
	{"main_sessions", func(r Row) any { return r.MainSessions }},
	{"assistant_sessions", func(r Row) any { return r.AssistantSessions }},
	{"main_base_fee", amount(func(r Row) generic.Amount { return r.MainBaseFee })},
	{"assistant_base_fee", amount(func(r Row) generic.Amount { return r.AssistantBaseFee })},
	{"total_allowance", amount(func(r Row) generic.Amount { return r.TotalAllowance })},
	{"income_tax", amount(func(r Row) generic.Amount { return r.Tax.IncomeTax })},
	{"local_income_tax", amount(func(r Row) generic.Amount { return r.Tax.LocalIncomeTax })},
	{"total_tax", amount(func(r Row) generic.Amount { return r.Tax.Total })},
	{"net_payment", amount(func(r Row) generic.Amount { return r.Tax.Net })},
}

// Headers returns the column headers in export order.
func Headers() []string {
	out := make([]string, len(Columns))
	for i, c := range Columns {
		out[i] = c.Header
	}
	return out
}

// Record renders r in column order.
func Record(r Row) []string {
	out := make([]string, len(Columns))
	for i, c := range Columns {
		switch v := c.Value(r).(type) {
		case string:
			out[i] = v
		case int:
			out[i] = strconv.Itoa(v)
		case int64:
			out[i] = strconv.FormatInt(v, 10)
		default:
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}

const utf8BOM = "\uFEFF"

// WriteCSV writes a BOM-prefixed UTF-8 CSV with a header line. Fields
// containing a comma, quote or newline are quoted.
func WriteCSV(w io.Writer, rows []Row) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Headers()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(Record(r)); err != nil {
			return fmt.Errorf("write row %s: %w", r.InstructorID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
