package funding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func newTestCalculator() *Calculator {
	return New(WithClock(func() time.Time { return testNow }))
}

func TestCalculatePersonalLoan(t *testing.T) {
	c := newTestCalculator()

	plan := c.Calculate(100000, 6.0, "personal", nil)

	assert.Equal(t, 2000.0, plan.FeeBreakdown["origination_fee"])
	assert.Equal(t, 100.0, plan.FeeBreakdown["processing_fee"])
	assert.Equal(t, 2100.0, plan.TotalFees)
	assert.Equal(t, 246.58, plan.PrepaidInterest)
	assert.Equal(t, 97653.42, plan.NetDisbursement)
	assert.Equal(t, "wire", plan.FundingMethod)
	assert.Equal(t, "2026-09-02", plan.EstimatedFundingDate)
}

func TestCalculateMortgageSchedule(t *testing.T) {
	c := newTestCalculator()

	plan := c.Calculate(300000, 5.0, "mortgage", nil)

	assert.Equal(t, 3000.0, plan.FeeBreakdown["origination_fee"])
	assert.Equal(t, 500.0, plan.FeeBreakdown["appraisal_fee"])
	assert.Equal(t, 1200.0, plan.FeeBreakdown["title_insurance"])
	assert.Equal(t, 150.0, plan.FeeBreakdown["recording_fee"])
	assert.Equal(t, 4850.0, plan.TotalFees)
}

func TestCalculateSchedules(t *testing.T) {
	c := newTestCalculator()

	t.Run("auto", func(t *testing.T) {
		plan := c.Calculate(20000, 4.0, "auto", nil)
		assert.Equal(t, 300.0, plan.FeeBreakdown["origination_fee"])
		assert.Equal(t, 75.0, plan.FeeBreakdown["documentation_fee"])
		assert.Equal(t, 375.0, plan.TotalFees)
	})

	t.Run("business", func(t *testing.T) {
		plan := c.Calculate(100000, 7.0, "business", nil)
		assert.Equal(t, 2000.0, plan.FeeBreakdown["origination_fee"])
		assert.Equal(t, 500.0, plan.FeeBreakdown["documentation_fee"])
		assert.Equal(t, 200.0, plan.FeeBreakdown["ucc_filing_fee"])
		assert.Equal(t, 2700.0, plan.TotalFees)
	})

	t.Run("unknown type uses personal schedule", func(t *testing.T) {
		plan := c.Calculate(10000, 5.0, "boat", nil)
		assert.Equal(t, 200.0, plan.FeeBreakdown["origination_fee"])
		assert.Equal(t, 100.0, plan.FeeBreakdown["processing_fee"])
	})
}

func TestCalculateFundingMethodThreshold(t *testing.T) {
	c := newTestCalculator()

	assert.Equal(t, "ach", c.Calculate(50000, 5.0, "personal", nil).FundingMethod)
	assert.Equal(t, "wire", c.Calculate(50000.01, 5.0, "personal", nil).FundingMethod)
}

func TestCalculateOverrides(t *testing.T) {
	c := newTestCalculator()

	plan := c.Calculate(100000, 6.0, "personal", map[string]float64{
		"processing_fee": 0,
		"rush_fee":       250,
	})

	assert.Equal(t, 0.0, plan.FeeBreakdown["processing_fee"])
	assert.Equal(t, 250.0, plan.FeeBreakdown["rush_fee"])
	assert.Equal(t, 2250.0, plan.TotalFees)
}

func TestCalculateZeroRate(t *testing.T) {
	c := newTestCalculator()
	plan := c.Calculate(10000, 0, "personal", nil)
	assert.Equal(t, 0.0, plan.PrepaidInterest)
	assert.Equal(t, 10000.0-300.0, plan.NetDisbursement)
}

func TestCalculateDeterministic(t *testing.T) {
	c := newTestCalculator()
	first := c.Calculate(123456.78, 5.5, "mortgage", nil)
	second := c.Calculate(123456.78, 5.5, "mortgage", nil)
	require.Equal(t, first, second)
}

func TestNetDisbursementDecreasesWithFees(t *testing.T) {
	c := newTestCalculator()
	base := c.Calculate(100000, 6.0, "personal", nil)
	bumped := c.Calculate(100000, 6.0, "personal", map[string]float64{"rush_fee": 500})
	assert.Less(t, bumped.NetDisbursement, base.NetDisbursement)
}
