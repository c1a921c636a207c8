package dto

import (
	"motoledger/internal/core/types"
	"motoledger/internal/domain/ledger"
)

// PlanRequest asks for a FIFO allocation plan without committing it.
type PlanRequest struct {
	ProductID string         `json:"productId" binding:"required,uuid"`
	Quantity  types.Quantity `json:"quantity" binding:"required,gt=0"`
}

// CommitRequest commits a plan returned by the plan endpoint.
type CommitRequest struct {
	Plan       ledger.AllocationPlan `json:"plan" binding:"required"`
	ContextRef string                `json:"contextRef" binding:"required,max=200"`
}

// ConsumeRequest plans and commits in one call.
type ConsumeRequest struct {
	ProductID  string         `json:"productId" binding:"required,uuid"`
	Quantity   types.Quantity `json:"quantity" binding:"required,gt=0"`
	ContextRef string         `json:"contextRef" binding:"required,max=200"`
}

// ReverseRequest re-credits an allocation. Without Quantity or Lines the
// whole unreversed remainder goes back.
type ReverseRequest struct {
	ContextRef string                `json:"contextRef" binding:"required,max=200"`
	Quantity   *types.Quantity       `json:"quantity" binding:"omitempty,gt=0"`
	Lines      []ledger.ReversalLine `json:"lines" binding:"omitempty,dive"`
}
