package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/id"
	"motoledger/internal/core/types"
)

func sampleRecord(l1, l2 id.ID) *AllocationRecord {
	return &AllocationRecord{
		ID: id.New(),
		Lines: []AllocationLine{
			{LotID: l1, Quantity: types.Units(10), UnitCost: types.MustMoney("5")},
			{LotID: l2, Quantity: types.Units(5), UnitCost: types.MustMoney("7")},
		},
		Quantity: types.Units(15),
	}
}

func TestReversalPlanning(t *testing.T) {
	l1, l2 := id.New(), id.New()
	rec := sampleRecord(l1, l2)

	t.Run("full reversal mirrors the allocation", func(t *testing.T) {
		lines := FullReversalLines(rec, nil)
		assert.Equal(t, []ReversalLine{
			{LotID: l1, Quantity: types.Units(10)},
			{LotID: l2, Quantity: types.Units(5)},
		}, lines)
	})

	t.Run("partial reversal credits newest lot first", func(t *testing.T) {
		lines, err := PlanPartialReversal(rec, nil, types.Units(7))
		require.NoError(t, err)
		assert.Equal(t, []ReversalLine{
			{LotID: l2, Quantity: types.Units(5)},
			{LotID: l1, Quantity: types.Units(2)},
		}, lines)
	})

	t.Run("prior reversals reduce what is outstanding", func(t *testing.T) {
		prior := []Reversal{{Lines: []ReversalLine{{LotID: l2, Quantity: types.Units(5)}}}}

		assert.Equal(t, []ReversalLine{{LotID: l1, Quantity: types.Units(10)}}, FullReversalLines(rec, prior))

		_, err := PlanPartialReversal(rec, prior, types.Units(11))
		assert.True(t, apperror.IsConflict(err))
	})

	t.Run("explicit lines are merged and bounded", func(t *testing.T) {
		lines, err := ValidateReversalLines(rec, nil, []ReversalLine{
			{LotID: l1, Quantity: types.Units(3)},
			{LotID: l1, Quantity: types.Units(2)},
		})
		require.NoError(t, err)
		assert.Equal(t, []ReversalLine{{LotID: l1, Quantity: types.Units(5)}}, lines)

		_, err = ValidateReversalLines(rec, nil, []ReversalLine{{LotID: l2, Quantity: types.Units(6)}})
		assert.True(t, apperror.IsConflict(err))

		_, err = ValidateReversalLines(rec, nil, []ReversalLine{{LotID: id.New(), Quantity: types.Units(1)}})
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeValidation, appErr.Code)
	})
}

func TestApplyReversal(t *testing.T) {
	productID := id.New()
	a := mustLot(t, productID, 10, "5", day1)
	b := mustLot(t, productID, 10, "7", day2)
	a.RemainingQty, a.State = 0, LotExhausted
	b.RemainingQty = types.Units(9)

	t.Run("overflow leaves every lot untouched", func(t *testing.T) {
		ac, bc := a, b
		lots := map[id.ID]*Lot{ac.ID: &ac, bc.ID: &bc}

		err := applyReversal(lots, []ReversalLine{
			{LotID: ac.ID, Quantity: types.Units(10)},
			{LotID: bc.ID, Quantity: types.Units(2)},
		})
		require.True(t, apperror.IsLotOverflow(err))

		appErr, _ := apperror.AsAppError(err)
		assert.Equal(t, bc.ID.String(), appErr.Details["lot_id"])
		assert.Equal(t, types.Units(10), appErr.Details["original"])
		assert.Equal(t, types.Units(9), appErr.Details["remaining"])
		assert.Equal(t, types.Units(2), appErr.Details["requested"])

		assert.Equal(t, types.Quantity(0), ac.RemainingQty)
		assert.Equal(t, types.Units(9), bc.RemainingQty)
	})

	t.Run("re-credits and reactivates", func(t *testing.T) {
		ac := a
		lots := map[id.ID]*Lot{ac.ID: &ac}
		require.NoError(t, applyReversal(lots, []ReversalLine{{LotID: ac.ID, Quantity: types.Units(10)}}))
		assert.Equal(t, types.Units(10), ac.RemainingQty)
		assert.Equal(t, LotActive, ac.State)
	})

	t.Run("unknown lot", func(t *testing.T) {
		err := applyReversal(map[id.ID]*Lot{}, []ReversalLine{{LotID: id.New(), Quantity: 1}})
		assert.True(t, apperror.IsNotFound(err))
	})
}

func TestApplyPlan(t *testing.T) {
	productID := id.New()
	l := mustLot(t, productID, 10, "5", day1)

	t.Run("stale version", func(t *testing.T) {
		lc := l
		lc.Version = 3
		plan := &AllocationPlan{ProductID: productID, Lines: []AllocationLine{{LotID: lc.ID, Quantity: 1, LotVersion: 2}}}
		err := applyPlan(map[id.ID]*Lot{lc.ID: &lc}, plan)
		assert.True(t, apperror.IsConcurrentModification(err))
		assert.Equal(t, l.RemainingQty, lc.RemainingQty)
	})

	t.Run("duplicate lines cannot over-take", func(t *testing.T) {
		lc := l
		plan := &AllocationPlan{ProductID: productID, Lines: []AllocationLine{
			{LotID: lc.ID, Quantity: types.Units(6)},
			{LotID: lc.ID, Quantity: types.Units(6)},
		}}
		err := applyPlan(map[id.ID]*Lot{lc.ID: &lc}, plan)
		assert.True(t, apperror.IsConcurrentModification(err))
		assert.Equal(t, types.Units(10), lc.RemainingQty)
	})
}
