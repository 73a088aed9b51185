package domain

import (
	"github.com/bwmarrin/snowflake"

	walletdomain "github.com/smallbiznis/loyara/internal/wallet/domain"
)

// BatchDeduction is one slice of a burn taken from a single batch.
type BatchDeduction struct {
	BatchID snowflake.ID `json:"batch_id"`
	Points  int64        `json:"points"`
}

// AllocateBurn splits requested points across live batches in the order
// given (soonest expiry first, never-expiring last). A shortfall returns
// ErrInsufficientBalance and no partial plan. Pure function.
func AllocateBurn(batches []walletdomain.PointBatch, requested int64) ([]BatchDeduction, error) {
	if requested <= 0 {
		return nil, ErrInvalidPoints
	}

	var available int64
	for _, b := range batches {
		if b.Live() {
			available += b.Points
		}
	}
	if available < requested {
		return nil, ErrInsufficientBalance
	}

	deductions := make([]BatchDeduction, 0, len(batches))
	remaining := requested
	for _, b := range batches {
		if remaining == 0 {
			break
		}
		if !b.Live() {
			continue
		}
		take := b.Points
		if take > remaining {
			take = remaining
		}
		deductions = append(deductions, BatchDeduction{BatchID: b.ID, Points: take})
		remaining -= take
	}
	return deductions, nil
}
