package domain

import "github.com/holiman/uint256"

// Phase is the sale's temporal state, derived from the clock against the
// configured [startTime, endTime] window. It is never stored.
type Phase string

// Sale phases.
const (
	PhaseNotStarted Phase = "NOT_STARTED"
	PhaseActive     Phase = "ACTIVE"
	PhaseEnded      Phase = "ENDED"
)

// Outcome is the sale's logical result once ENDED.
type Outcome string

// Sale outcomes. SUCCESS requires tokensSold >= maxTokens * 80%.
const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

// SuccessThresholdNum and SuccessThresholdDen express the fixed 80%
// success threshold as a ratio of maxTokens.
const (
	SuccessThresholdNum = 4
	SuccessThresholdDen = 5
)

// SaleConfig holds the administrator-set sale parameters plus the running
// sold counter. Mutated only through owner-authorized configuration calls
// or by the purchase path (TokensSold only grows).
type SaleConfig struct {
	Owner       Address
	Price       *uint256.Int // currency per unit, 1e18 fixed-point
	MinPurchase *uint256.Int // asset units, scaled
	MaxPurchase *uint256.Int // asset units, scaled
	StartTime   int64        // unix seconds
	EndTime     int64        // unix seconds, > StartTime
	TokensSold  *uint256.Int
	MaxTokens   *uint256.Int // sale's initial allocation, supply cap

	RefundEnabled bool
}

// SuccessThreshold returns the sold amount required for a SUCCESS
// outcome: maxTokens * 4 / 5.
func (c *SaleConfig) SuccessThreshold() *uint256.Int {
	t := new(uint256.Int).Mul(c.MaxTokens, uint256.NewInt(SuccessThresholdNum))
	return t.Div(t, uint256.NewInt(SuccessThresholdDen))
}
