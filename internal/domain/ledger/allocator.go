package ledger

import (
	"slices"
	"time"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/id"
	"motoledger/internal/core/types"
)

// CompareFIFO orders lots by receipt time, then by lot ID.
func CompareFIFO(a, b *Lot) int {
	if c := a.ReceivedAt.Compare(b.ReceivedAt); c != 0 {
		return c
	}
	return id.Compare(a.ID, b.ID)
}

// SortFIFO sorts lots oldest first with a deterministic tie-break.
func SortFIFO(lots []Lot) {
	slices.SortStableFunc(lots, func(a, b Lot) int { return CompareFIFO(&a, &b) })
}

// PlanFIFO builds an allocation plan over the given lots.
//
// Lots without remaining stock are skipped. The plan either covers the full
// quantity or the call fails with INSUFFICIENT_STOCK; a partial plan is never returned.
func PlanFIFO(productID id.ID, lots []Lot, qty types.Quantity, now time.Time) (*AllocationPlan, error) {
	if !qty.IsPositive() {
		return nil, apperror.NewValidation("quantity must be positive").WithDetail("quantity", qty)
	}

	candidates := make([]Lot, 0, len(lots))
	var available types.Quantity
	for _, l := range lots {
		if l.ProductID != productID || !l.IsActive() {
			continue
		}
		candidates = append(candidates, l)
		available += l.RemainingQty
	}

	if available < qty {
		return nil, apperror.NewInsufficientStock(productID.String(), qty, available, qty-available)
	}

	SortFIFO(candidates)

	plan := &AllocationPlan{
		ProductID: productID,
		Requested: qty,
		PlannedAt: now.UTC(),
	}

	left := qty
	for _, l := range candidates {
		if left.IsZero() {
			break
		}
		take := types.MinQuantity(left, l.RemainingQty)
		plan.Lines = append(plan.Lines, AllocationLine{
			LotID:      l.ID,
			Quantity:   take,
			UnitCost:   l.UnitCost,
			ReceivedAt: l.ReceivedAt,
			LotVersion: l.Version,
		})
		left -= take
	}

	return plan, nil
}

// checkPlanShape rejects plans that could not have come from PlanFIFO.
func checkPlanShape(plan *AllocationPlan) error {
	if plan == nil || len(plan.Lines) == 0 {
		return apperror.NewValidation("allocation plan is empty")
	}
	if total := plan.TotalQuantity(); total != plan.Requested {
		return apperror.NewValidation("plan lines do not add up to the requested quantity").
			WithDetail("requested", plan.Requested).
			WithDetail("lines_total", total)
	}
	for _, line := range plan.Lines {
		if line.LotVersion == 0 {
			return apperror.NewValidation("plan line has no lot version").
				WithDetail("lot_id", line.LotID.String())
		}
	}
	return nil
}

// verifyPlan requires plan to be exactly the FIFO plan over lots as they are
// now: same lots in the same order, same quantities, same lot versions.
// Any difference is CONCURRENT_MODIFICATION.
func verifyPlan(plan *AllocationPlan, lots []Lot) error {
	if err := checkPlanShape(plan); err != nil {
		return err
	}
	fresh, err := PlanFIFO(plan.ProductID, lots, plan.Requested, plan.PlannedAt)
	if err != nil {
		if apperror.IsInsufficientStock(err) {
			return apperror.NewConcurrentModification("product", plan.ProductID.String()).WithCause(err)
		}
		return err
	}
	if len(fresh.Lines) != len(plan.Lines) {
		return apperror.NewConcurrentModification("product", plan.ProductID.String()).
			WithDetail("planned_lines", len(plan.Lines)).
			WithDetail("fifo_lines", len(fresh.Lines))
	}
	for i, want := range fresh.Lines {
		got := plan.Lines[i]
		if got.LotID != want.LotID || got.Quantity != want.Quantity || got.LotVersion != want.LotVersion {
			return apperror.NewConcurrentModification("lot", got.LotID.String()).
				WithDetail("line", i).
				WithDetail("fifo_lot_id", want.LotID.String()).
				WithDetail("fifo_quantity", want.Quantity).
				WithDetail("fifo_version", want.LotVersion)
		}
	}
	return nil
}
