package transaction

import "errors"

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidAddress     = errors.New("invalid address")
	ErrNoFeeEstimate      = errors.New("dynamic fee estimates not available")
	ErrCannotBumpFee      = errors.New("cannot bump fee: could not find suitable outputs")
	ErrTransactionFinal   = errors.New("cannot bump fee: transaction is final")
	ErrMultipleMaxOutputs = errors.New("more than one output set to spend max")
)

// FeeRecommendation is the mempool.space recommended fees response, in
// sat/vB.
type FeeRecommendation struct {
	FastestFee  int `json:"fastestFee"`
	HalfHourFee int `json:"halfHourFee"`
	HourFee     int `json:"hourFee"`
	EconomyFee  int `json:"economyFee"`
	MinimumFee  int `json:"minimumFee"`
}

// Priority picks one of the recommended fee rates.
type Priority int

const (
	PriorityFastest Priority = iota + 1
	PriorityHalfHour
	PriorityHour
	PriorityEconomy
	PriorityMinimum
)

// Rate returns the sat/vB rate for p.
func (r FeeRecommendation) Rate(p Priority) int {
	switch p {
	case PriorityFastest:
		return r.FastestFee
	case PriorityHalfHour:
		return r.HalfHourFee
	case PriorityEconomy:
		return r.EconomyFee
	case PriorityMinimum:
		return r.MinimumFee
	}
	return r.HourFee
}
