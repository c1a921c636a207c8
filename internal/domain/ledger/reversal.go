package ledger

import (
	"motoledger/internal/core/apperror"
	"motoledger/internal/core/id"
	"motoledger/internal/core/types"
)

// Outstanding returns, per lot, how much of an allocation has not been reversed yet.
func Outstanding(rec *AllocationRecord, prior []Reversal) map[id.ID]types.Quantity {
	out := make(map[id.ID]types.Quantity, len(rec.Lines))
	for _, l := range rec.Lines {
		out[l.LotID] += l.Quantity
	}
	for _, r := range prior {
		for _, l := range r.Lines {
			out[l.LotID] -= l.Quantity
		}
	}
	return out
}

// FullReversalLines re-credits everything still outstanding, in allocation order.
func FullReversalLines(rec *AllocationRecord, prior []Reversal) []ReversalLine {
	left := Outstanding(rec, prior)
	lines := make([]ReversalLine, 0, len(rec.Lines))
	for _, l := range rec.Lines {
		q := left[l.LotID]
		if q.IsPositive() {
			lines = append(lines, ReversalLine{LotID: l.LotID, Quantity: q})
			left[l.LotID] = 0
		}
	}
	return lines
}

// PlanPartialReversal picks lots for returning qty units of an allocation.
// The most recently consumed lot is re-credited first, undoing the tail of the FIFO walk.
func PlanPartialReversal(rec *AllocationRecord, prior []Reversal, qty types.Quantity) ([]ReversalLine, error) {
	if !qty.IsPositive() {
		return nil, apperror.NewValidation("quantity must be positive").WithDetail("quantity", qty)
	}

	left := Outstanding(rec, prior)
	var total types.Quantity
	for _, q := range left {
		total += q
	}
	if qty > total {
		return nil, apperror.NewConflict("reversal exceeds unreversed quantity").
			WithDetail("allocation_id", rec.ID.String()).
			WithDetail("requested", qty).
			WithDetail("outstanding", total)
	}

	var lines []ReversalLine
	need := qty
	for i := len(rec.Lines) - 1; i >= 0 && need.IsPositive(); i-- {
		lotID := rec.Lines[i].LotID
		take := types.MinQuantity(need, left[lotID])
		if !take.IsPositive() {
			continue
		}
		lines = append(lines, ReversalLine{LotID: lotID, Quantity: take})
		left[lotID] -= take
		need -= take
	}
	return lines, nil
}

// ValidateReversalLines checks that lines belong to the allocation and do not exceed what is outstanding.
// Lines for the same lot are merged.
func ValidateReversalLines(rec *AllocationRecord, prior []Reversal, lines []ReversalLine) ([]ReversalLine, error) {
	if len(lines) == 0 {
		return nil, apperror.NewValidation("at least one reversal line is required")
	}

	merged := make(map[id.ID]types.Quantity, len(lines))
	order := make([]id.ID, 0, len(lines))
	for _, l := range lines {
		if !l.Quantity.IsPositive() {
			return nil, apperror.NewValidation("reversal quantity must be positive").
				WithDetail("lot_id", l.LotID.String())
		}
		if _, ok := rec.Line(l.LotID); !ok {
			return nil, apperror.NewValidation("lot is not part of the allocation").
				WithDetail("allocation_id", rec.ID.String()).
				WithDetail("lot_id", l.LotID.String())
		}
		if _, seen := merged[l.LotID]; !seen {
			order = append(order, l.LotID)
		}
		merged[l.LotID] += l.Quantity
	}

	left := Outstanding(rec, prior)
	out := make([]ReversalLine, 0, len(order))
	for _, lotID := range order {
		q := merged[lotID]
		if q > left[lotID] {
			return nil, apperror.NewConflict("reversal exceeds unreversed quantity").
				WithDetail("allocation_id", rec.ID.String()).
				WithDetail("lot_id", lotID.String()).
				WithDetail("requested", q).
				WithDetail("outstanding", left[lotID])
		}
		out = append(out, ReversalLine{LotID: lotID, Quantity: q})
	}
	return out, nil
}

// applyReversal re-credits lots in place. It checks every line before touching
// any lot so a LotOverflow leaves all lots unchanged.
func applyReversal(lots map[id.ID]*Lot, lines []ReversalLine) error {
	need := make(map[id.ID]types.Quantity, len(lines))
	for _, l := range lines {
		need[l.LotID] += l.Quantity
	}
	for lotID, q := range need {
		lot, ok := lots[lotID]
		if !ok {
			return apperror.NewNotFound("lot", lotID.String())
		}
		if q > lot.Headroom() {
			return apperror.NewLotOverflow(lot.ID.String(), lot.OriginalQty, lot.RemainingQty, q)
		}
	}
	for _, l := range lines {
		if err := lots[l.LotID].restore(l.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// applyPlan decrements lots for each plan line, checking the version seen at planning.
func applyPlan(lots map[id.ID]*Lot, plan *AllocationPlan) error {
	need := make(map[id.ID]types.Quantity, len(plan.Lines))
	for _, line := range plan.Lines {
		if !line.Quantity.IsPositive() {
			return apperror.NewValidation("plan line quantity must be positive").
				WithDetail("lot_id", line.LotID.String())
		}
		lot, ok := lots[line.LotID]
		if !ok || lot.ProductID != plan.ProductID {
			return apperror.NewConcurrentModification("lot", line.LotID.String())
		}
		if line.LotVersion != 0 && lot.Version != line.LotVersion {
			return apperror.NewConcurrentModification("lot", line.LotID.String()).
				WithDetail("planned_version", line.LotVersion).
				WithDetail("current_version", lot.Version)
		}
		need[line.LotID] += line.Quantity
	}
	for lotID, q := range need {
		if lot := lots[lotID]; q > lot.RemainingQty {
			return apperror.NewConcurrentModification("lot", lotID.String()).
				WithDetail("remaining", lot.RemainingQty).
				WithDetail("planned", q)
		}
	}
	for _, line := range plan.Lines {
		if err := lots[line.LotID].take(line.Quantity); err != nil {
			return err
		}
	}
	return nil
}
