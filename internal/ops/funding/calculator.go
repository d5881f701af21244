// Package funding computes disbursement figures. Pure arithmetic: no state,
// identical inputs give identical outputs.
package funding

import (
	"math"
	"time"

	ops "loanops/internal/ops/models"
)

// Fee schedule entries are flat amounts except origination, which is a rate
// applied to the loan amount.
type schedule struct {
	originationRate float64
	flat            map[string]float64
}

var schedules = map[string]schedule{
	"mortgage": {
		originationRate: 0.01,
		flat: map[string]float64{
			"appraisal_fee":   500,
			"title_insurance": 1200,
			"recording_fee":   150,
		},
	},
	"personal": {
		originationRate: 0.02,
		flat: map[string]float64{
			"processing_fee": 100,
		},
	},
	"auto": {
		originationRate: 0.015,
		flat: map[string]float64{
			"documentation_fee": 75,
		},
	},
	"business": {
		originationRate: 0.02,
		flat: map[string]float64{
			"documentation_fee": 500,
			"ucc_filing_fee":    200,
		},
	},
}

const (
	prepaidDays       = 15
	wireThreshold     = 50000
	fundingLeadDays   = 2
	daysPerYear       = 365
	originationFeeKey = "origination_fee"
)

// Calculator prepares funding plans.
type Calculator struct {
	now func() time.Time
}

// Option configures the Calculator.
type Option func(*Calculator)

// WithClock pins the estimated funding date.
func WithClock(now func() time.Time) Option {
	return func(c *Calculator) { c.now = now }
}

func New(opts ...Option) *Calculator {
	c := &Calculator{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calculate builds the disbursement breakdown. Overrides merge over the
// type's standard schedule with override precedence; unknown loan types use
// the personal schedule. All reported figures are rounded to 2 decimals.
func (c *Calculator) Calculate(amount, annualRate float64, loanType string, overrides map[string]float64) ops.FundingPlan {
	sched, ok := schedules[loanType]
	if !ok {
		sched = schedules["personal"]
	}

	fees := map[string]float64{
		originationFeeKey: amount * sched.originationRate,
	}
	for name, fee := range sched.flat {
		fees[name] = fee
	}
	for name, fee := range overrides {
		fees[name] = fee
	}

	var totalFees float64
	breakdown := make(map[string]float64, len(fees))
	for name, fee := range fees {
		totalFees += fee
		breakdown[name] = round2(fee)
	}

	dailyInterest := amount * (annualRate / 100) / daysPerYear
	prepaidInterest := dailyInterest * prepaidDays

	method := "ach"
	if amount > wireThreshold {
		method = "wire"
	}

	return ops.FundingPlan{
		LoanAmount:           amount,
		InterestRate:         annualRate,
		LoanType:             loanType,
		FeeBreakdown:         breakdown,
		TotalFees:            round2(totalFees),
		PrepaidInterest:      round2(prepaidInterest),
		NetDisbursement:      round2(amount - totalFees - prepaidInterest),
		FundingMethod:        method,
		EstimatedFundingDate: c.now().AddDate(0, 0, fundingLeadDays).Format("2006-01-02"),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
