/*
Package statement produces per-instructor payment statements.

PURPOSE:
  Settlement rows are per (training, instructor, role). Payroll needs one
  line per instructor with every allowance category in its own column,
  flat withholding tax and the net amount. This package builds those lines
  and writes them as CSV or XLSX.

KEY CONCEPTS:
  - Tax: Flat 3% income tax plus 0.3% local income tax, each rounded on
    its own
  - Classification: main, assistant, main+assistant or unclassified,
    derived from which session counts are non-zero
  - Columns: One fixed table drives both CSV and XLSX output

SEE ALSO:
  - settlement/rows.go: Input rows and overrides
  - archive/: Where generated files are stored
*/
package statement

import (
	"github.com/shopspring/decimal"

	"github.com/warp/settlement-engine/generic"
)

var (
	IncomeTaxRate      = decimal.RequireFromString("0.03")
	LocalIncomeTaxRate = decimal.RequireFromString("0.003")
)

// Tax is the withholding on one gross amount.
// Net + IncomeTax + LocalIncomeTax == Gross always holds.
type Tax struct {
	Gross          generic.Amount
	IncomeTax      generic.Amount
	LocalIncomeTax generic.Amount
	Total          generic.Amount
	Net            generic.Amount
}

// Withhold computes both taxes from gross, rounding each independently.
func Withhold(gross generic.Amount) Tax {
	income := gross.Mul(IncomeTaxRate).Round()
	local := gross.Mul(LocalIncomeTaxRate).Round()
	total := income.Add(local)
	return Tax{
		Gross:          gross,
		IncomeTax:      income,
		LocalIncomeTax: local,
		Total:          total,
		Net:            gross.Sub(total),
	}
}
