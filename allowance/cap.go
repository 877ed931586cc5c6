package allowance

import "github.com/warp/settlement-engine/generic"

// Cap grants amounts until Limit is reached. Whatever does not fit is
// discarded, never carried forward.
type Cap struct {
	Limit generic.Amount
	used  generic.Amount
}

func NewCap(limit generic.Amount) *Cap {
	return &Cap{Limit: limit, used: limit.Zero()}
}

// Take grants min(amount, remaining) and records it as used.
func (c *Cap) Take(amount generic.Amount) generic.Amount {
	if !amount.IsPositive() {
		return amount.Zero()
	}
	granted := amount.Min(c.Remaining())
	c.used = c.used.Add(granted)
	return granted
}

func (c *Cap) Used() generic.Amount { return c.used }

func (c *Cap) Remaining() generic.Amount {
	r := c.Limit.Sub(c.used)
	if r.IsNegative() {
		return r.Zero()
	}
	return r
}
