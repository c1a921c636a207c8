package ledger

import (
	"motoledger/internal/core/types"
)

// OldestActive returns the lot that FIFO would consume next, or nil.
func OldestActive(lots []Lot) *Lot {
	var oldest *Lot
	for i := range lots {
		l := &lots[i]
		if !l.IsActive() {
			continue
		}
		if oldest == nil || CompareFIFO(l, oldest) < 0 {
			oldest = l
		}
	}
	return oldest
}

// EffectiveCost is the unit cost of the oldest lot with stock, zero when none is left.
func EffectiveCost(lots []Lot) types.Money {
	if l := OldestActive(lots); l != nil {
		return l.UnitCost
	}
	return types.Zero()
}

// Valuation sums remaining * unit cost over lots (FIFO inventory value).
func Valuation(lots []Lot) types.Money {
	total := types.Zero()
	for _, l := range lots {
		if l.RemainingQty.IsPositive() {
			total = total.Add(l.RemainingQty.Cost(l.UnitCost))
		}
	}
	return total
}

// TotalRemaining sums remaining over lots.
func TotalRemaining(lots []Lot) types.Quantity {
	var total types.Quantity
	for _, l := range lots {
		total += l.RemainingQty
	}
	return total
}
