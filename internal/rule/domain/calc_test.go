package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }
func intp(v int) *int       { return &v }

func baseRule() *Rule {
	return &Rule{
		Kind:          RuleKindEarn,
		PointsPerUnit: 1,
		UnitAmount:    100,
		Active:        true,
	}
}

func TestCalculateEarn_FloorsPartialUnits(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rule := baseRule()
	result := CalculateEarn(rule, 10_050, now)
	assert.Equal(t, int64(100), result.Points)
	assert.Nil(t, result.ExpiresAt)

	// 99 cents is less than one unit.
	result = CalculateEarn(rule, 99, now)
	assert.Equal(t, int64(0), result.Points)
}

func TestCalculateEarn_MinAmountRejects(t *testing.T) {
	now := time.Now().UTC()

	rule := baseRule()
	rule.MinAmount = int64p(500)

	assert.Equal(t, int64(0), CalculateEarn(rule, 499, now).Points)
	assert.Equal(t, int64(5), CalculateEarn(rule, 500, now).Points)
}

func TestCalculateEarn_MaxPointsClamps(t *testing.T) {
	now := time.Now().UTC()

	rule := baseRule()
	rule.MaxPoints = int64p(50)

	assert.Equal(t, int64(50), CalculateEarn(rule, 100_000, now).Points)
	assert.Equal(t, int64(49), CalculateEarn(rule, 4_900, now).Points)
}

func TestCalculateEarn_ExpiryFromRule(t *testing.T) {
	now := time.Date(2026, 1, 31, 9, 30, 0, 0, time.UTC)

	rule := baseRule()
	rule.ExpiryDays = intp(30)

	result := CalculateEarn(rule, 1_000, now)
	require.NotNil(t, result.ExpiresAt)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC), *result.ExpiresAt)
}

func TestCalculateEarn_InvalidInputs(t *testing.T) {
	now := time.Now().UTC()

	assert.Equal(t, int64(0), CalculateEarn(nil, 1_000, now).Points)
	assert.Equal(t, int64(0), CalculateEarn(baseRule(), 0, now).Points)
	assert.Equal(t, int64(0), CalculateEarn(baseRule(), -500, now).Points)

	rule := baseRule()
	rule.UnitAmount = 0
	assert.Equal(t, int64(0), CalculateEarn(rule, 1_000, now).Points)
}

func TestCalculateEarn_Deterministic(t *testing.T) {
	now := time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

	rule := baseRule()
	rule.PointsPerUnit = 3
	rule.UnitAmount = 250
	rule.MinAmount = int64p(1_000)
	rule.MaxPoints = int64p(120)
	rule.ExpiryDays = intp(90)

	first := CalculateEarn(rule, 7_420, now)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, CalculateEarn(rule, 7_420, now))
	}
	// 7420 / 250 = 29 units, 29 * 3 = 87 points.
	assert.Equal(t, int64(87), first.Points)
}
