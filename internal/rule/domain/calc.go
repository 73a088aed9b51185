package domain

import "time"

// EarnResult is the outcome of applying an earn rule to a purchase amount.
// Points == 0 means the earn is rejected, never recorded as a zero-value
// transaction.
type EarnResult struct {
	Points    int64
	ExpiresAt *time.Time
}

// CalculateEarn applies rule to amount (minor units) at now. Pure function:
// identical inputs always produce identical results.
func CalculateEarn(rule *Rule, amount int64, now time.Time) EarnResult {
	if rule == nil || amount <= 0 || rule.UnitAmount <= 0 || rule.PointsPerUnit <= 0 {
		return EarnResult{}
	}

	if rule.MinAmount != nil && amount < *rule.MinAmount {
		return EarnResult{}
	}

	units := amount / rule.UnitAmount
	points := units * rule.PointsPerUnit

	if rule.MaxPoints != nil && points > *rule.MaxPoints {
		points = *rule.MaxPoints
	}
	if points <= 0 {
		return EarnResult{}
	}

	var expiresAt *time.Time
	if rule.ExpiryDays != nil && *rule.ExpiryDays > 0 {
		t := now.UTC().AddDate(0, 0, *rule.ExpiryDays)
		expiresAt = &t
	}

	return EarnResult{Points: points, ExpiresAt: expiresAt}
}
