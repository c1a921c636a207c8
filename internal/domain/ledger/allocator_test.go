package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/id"
	"motoledger/internal/core/types"
)

var (
	day1 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	day2 = day1.AddDate(0, 0, 1)
	day3 = day1.AddDate(0, 0, 2)
)

func mustLot(t *testing.T, productID id.ID, qty int64, cost string, at time.Time) Lot {
	t.Helper()
	l, err := NewLot(productID, types.Units(qty), types.MustMoney(cost), at, "test")
	require.NoError(t, err)
	return *l
}

func assertMoney(t *testing.T, want string, got types.Money) {
	t.Helper()
	assert.True(t, types.MustMoney(want).Equal(got), "want %s, got %s", want, got)
}

func TestPlanFIFO(t *testing.T) {
	productID := id.New()
	l1 := mustLot(t, productID, 10, "5", day1)
	l2 := mustLot(t, productID, 10, "7", day2)
	// passed out of order on purpose
	lots := []Lot{l2, l1}

	t.Run("spans lots oldest first", func(t *testing.T) {
		plan, err := PlanFIFO(productID, lots, types.Units(15), day3)
		require.NoError(t, err)
		require.Len(t, plan.Lines, 2)

		assert.Equal(t, l1.ID, plan.Lines[0].LotID)
		assert.Equal(t, types.Units(10), plan.Lines[0].Quantity)
		assertMoney(t, "5", plan.Lines[0].UnitCost)

		assert.Equal(t, l2.ID, plan.Lines[1].LotID)
		assert.Equal(t, types.Units(5), plan.Lines[1].Quantity)
		assertMoney(t, "7", plan.Lines[1].UnitCost)

		assert.Equal(t, types.Units(15), plan.TotalQuantity())
		assertMoney(t, "85", plan.TotalCost())
	})

	t.Run("exact fit uses one lot", func(t *testing.T) {
		plan, err := PlanFIFO(productID, lots, types.Units(10), day3)
		require.NoError(t, err)
		require.Len(t, plan.Lines, 1)
		assert.Equal(t, l1.ID, plan.Lines[0].LotID)
	})

	t.Run("insufficient stock reports shortfall", func(t *testing.T) {
		plan, err := PlanFIFO(productID, lots, types.Units(25), day3)
		assert.Nil(t, plan)
		require.True(t, apperror.IsInsufficientStock(err))

		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, types.Units(5), appErr.Details["shortfall"])
		assert.Equal(t, types.Units(20), appErr.Details["available"])
	})

	t.Run("zero and negative quantities are rejected", func(t *testing.T) {
		for _, q := range []types.Quantity{0, types.Units(-1)} {
			_, err := PlanFIFO(productID, lots, q, day3)
			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperror.CodeValidation, appErr.Code)
		}
	})

	t.Run("skips exhausted lots and other products", func(t *testing.T) {
		empty := mustLot(t, productID, 3, "1", day1.Add(-time.Hour))
		empty.RemainingQty = 0
		empty.State = LotExhausted
		foreign := mustLot(t, id.New(), 100, "1", day1.Add(-2*time.Hour))

		plan, err := PlanFIFO(productID, []Lot{foreign, empty, l1, l2}, types.Units(2), day3)
		require.NoError(t, err)
		require.Len(t, plan.Lines, 1)
		assert.Equal(t, l1.ID, plan.Lines[0].LotID)
	})

	t.Run("same receipt time breaks ties by id", func(t *testing.T) {
		a := mustLot(t, productID, 1, "1", day1)
		b := mustLot(t, productID, 1, "2", day1)
		first := a
		if id.Compare(b.ID, a.ID) < 0 {
			first = b
		}
		plan, err := PlanFIFO(productID, []Lot{b, a}, types.Units(1), day3)
		require.NoError(t, err)
		assert.Equal(t, first.ID, plan.Lines[0].LotID)
	})

	t.Run("never over-allocates a lot", func(t *testing.T) {
		for q := int64(1); q <= 20; q++ {
			plan, err := PlanFIFO(productID, lots, types.Units(q), day3)
			require.NoError(t, err)
			byLot := map[id.ID]types.Quantity{}
			for i, line := range plan.Lines {
				byLot[line.LotID] += line.Quantity
				if i > 0 {
					assert.False(t, line.ReceivedAt.Before(plan.Lines[i-1].ReceivedAt))
				}
			}
			assert.LessOrEqual(t, byLot[l1.ID], l1.RemainingQty)
			assert.LessOrEqual(t, byLot[l2.ID], l2.RemainingQty)
			assert.Equal(t, types.Units(q), plan.TotalQuantity())
		}
	})
}

func TestEffectiveCost(t *testing.T) {
	productID := id.New()
	l1 := mustLot(t, productID, 10, "5", day1)
	l2 := mustLot(t, productID, 10, "7", day2)

	t.Run("oldest active lot", func(t *testing.T) {
		assertMoney(t, "5", EffectiveCost([]Lot{l2, l1}))
	})

	t.Run("next oldest after exhaustion", func(t *testing.T) {
		ex := l1
		ex.RemainingQty = 0
		ex.State = LotExhausted
		assertMoney(t, "7", EffectiveCost([]Lot{ex, l2}))
	})

	t.Run("zero without stock", func(t *testing.T) {
		assertMoney(t, "0", EffectiveCost(nil))
	})

	t.Run("valuation and totals", func(t *testing.T) {
		half := l2
		half.RemainingQty = types.Units(5)
		assertMoney(t, "85", Valuation([]Lot{l1, half}))
		assert.Equal(t, types.Units(15), TotalRemaining([]Lot{l1, half}))
	})
}

func TestLotTakeRestore(t *testing.T) {
	l := mustLot(t, id.New(), 10, "5", day1)

	require.NoError(t, l.take(types.Units(10)))
	assert.Equal(t, LotExhausted, l.State)
	assert.Error(t, l.take(types.Units(1)))

	require.NoError(t, l.restore(types.Units(4)))
	assert.Equal(t, LotActive, l.State)
	assert.Equal(t, types.Units(4), l.RemainingQty)

	err := l.restore(types.Units(7))
	require.True(t, apperror.IsLotOverflow(err))
	assert.Equal(t, types.Units(4), l.RemainingQty, "overflow never clamps")
}

func TestNewLot_Validation(t *testing.T) {
	_, err := NewLot(id.New(), 0, types.MustMoney("1"), day1, "")
	assert.Error(t, err)
	_, err = NewLot(id.New(), types.Units(1), types.MustMoney("-1"), day1, "")
	assert.Error(t, err)
	_, err = NewLot(id.New(), types.MaxQuantity+1, types.MustMoney("1"), day1, "")
	assert.Error(t, err)
	_, err = NewLot(id.New(), types.MaxQuantity, types.MustMoney("1"), day1, "")
	assert.NoError(t, err)
}

func TestVerifyPlan(t *testing.T) {
	productID := id.New()
	l1 := mustLot(t, productID, 10, "5", day1)
	l2 := mustLot(t, productID, 10, "7", day2)
	lots := []Lot{l2, l1}

	plan, err := PlanFIFO(productID, lots, types.Units(12), day3)
	require.NoError(t, err)
	require.NoError(t, verifyPlan(plan, lots))

	t.Run("lot moved since planning", func(t *testing.T) {
		moved := l1
		moved.Version++
		err := verifyPlan(plan, []Lot{l2, moved})
		assert.True(t, apperror.IsConcurrentModification(err))
	})

	t.Run("stock gone since planning", func(t *testing.T) {
		err := verifyPlan(plan, []Lot{l2})
		assert.True(t, apperror.IsConcurrentModification(err))
	})

	t.Run("newer lot first", func(t *testing.T) {
		skewed := &AllocationPlan{ProductID: productID, Requested: types.Units(2), Lines: []AllocationLine{
			{LotID: l2.ID, Quantity: types.Units(2), LotVersion: l2.Version},
		}}
		assert.True(t, apperror.IsConcurrentModification(verifyPlan(skewed, lots)))
	})

	t.Run("requested differs from lines", func(t *testing.T) {
		short := &AllocationPlan{ProductID: productID, Requested: types.Units(99), Lines: plan.Lines}
		err := verifyPlan(short, lots)
		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeValidation, appErr.Code)
	})
}
