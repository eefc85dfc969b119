package ledger

import (
	"math"
	"math/big"
	"time"
)

// apyCeiling suppresses annualized figures above 1000%: short observation
// windows extrapolate into statistically meaningless numbers.
const apyCeiling = 10.0

// Earnings summarizes one position's realized performance. Raw amounts stay
// exact; percentages are display values.
type Earnings struct {
	NetPrincipalRaw    string  `json:"net_principal_raw"`
	CurrentBalanceRaw  string  `json:"current_balance_raw"`
	EarnedYieldRaw     string  `json:"earned_yield_raw"`
	EarnedYieldPercent float64 `json:"earned_yield_percent"`
	PeriodDays         float64 `json:"period_days"`
	APYKnown           bool    `json:"apy_known"`
	APYPercent         float64 `json:"apy_percent,omitempty"`
	Unattributed       bool    `json:"unattributed,omitempty"`
}

// NetPrincipal is the sum of deposits minus the sum of withdrawals, in raw
// units. Entries with unparseable amounts are skipped.
func NetPrincipal(entries []Entry) *big.Int {
	net := big.NewInt(0)
	for _, e := range entries {
		raw, ok := new(big.Int).SetString(e.RawAmount, 10)
		if !ok {
			continue
		}
		switch e.Action {
		case ActionDeposit:
			net.Add(net, raw)
		case ActionWithdraw:
			net.Sub(net, raw)
		}
	}
	return net
}

// ComputeEarnings derives realized yield from the transaction history and the
// current receipt balance. With no history, the whole balance is reported as
// unattributed yield with no APY. Earned yield can be negative (fees,
// slippage) and is surfaced as-is, never clamped.
func ComputeEarnings(entries []Entry, currentBalance *big.Int, now time.Time) Earnings {
	if currentBalance == nil {
		currentBalance = big.NewInt(0)
	}
	if len(entries) == 0 {
		return Earnings{
			NetPrincipalRaw:   "0",
			CurrentBalanceRaw: currentBalance.String(),
			EarnedYieldRaw:    currentBalance.String(),
			Unattributed:      true,
		}
	}

	net := NetPrincipal(entries)
	earned := new(big.Int).Sub(currentBalance, net)

	out := Earnings{
		NetPrincipalRaw:   net.String(),
		CurrentBalanceRaw: currentBalance.String(),
		EarnedYieldRaw:    earned.String(),
	}

	if net.Sign() > 0 {
		percent := new(big.Rat).SetFrac(earned, net)
		percent.Mul(percent, big.NewRat(100, 1))
		out.EarnedYieldPercent, _ = percent.Float64()
	}

	first, ok := firstDepositTime(entries)
	if !ok {
		return out
	}
	days := now.Sub(first).Hours() / 24
	if days < 0 {
		days = 0
	}
	out.PeriodDays = days

	if days < 1 || net.Sign() <= 0 {
		return out
	}
	ratio, _ := new(big.Rat).SetFrac(earned, net).Float64()
	apy := math.Pow(1+ratio, 365/days) - 1
	if math.IsNaN(apy) || math.IsInf(apy, 0) || apy > apyCeiling {
		return out
	}
	out.APYKnown = true
	out.APYPercent = apy * 100
	return out
}

func firstDepositTime(entries []Entry) (time.Time, bool) {
	var first time.Time
	found := false
	for _, e := range entries {
		if e.Action != ActionDeposit {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
		if err != nil {
			if ts, err = time.Parse(time.RFC3339, e.Timestamp); err != nil {
				continue
			}
		}
		if !found || ts.Before(first) {
			first = ts
			found = true
		}
	}
	return first, found
}
