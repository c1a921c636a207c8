package credit_sale

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"motoledger/internal/core/apperror"
	"motoledger/internal/core/types"
	"motoledger/internal/domain/ledger"
)

func TestPricePolicy(t *testing.T) {
	p := ledger.NewProduct("CHN-520", "Drive chain", types.MustMoney("45"), types.MustMoney("20"))
	p.UnitCost = types.MustMoney("18")

	tests := []struct {
		name  string
		expr  string
		price string
		ok    bool
	}{
		{"default at floor", "", "20", true},
		{"default below floor", "", "19.99", false},
		{"margin over cost", "unit_price >= unit_cost * 1.1", "19.80", true},
		{"margin too thin", "unit_price >= unit_cost * 1.1", "19.79", false},
		{"bulk discount", "quantity >= 10.0 ? unit_price >= price_floor * 0.9 : unit_price >= price_floor", "18", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := NewPricePolicy(tt.expr)
			require.NoError(t, err)

			err = policy.Check(p, types.MustMoney(tt.price), types.Units(1))
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			appErr, isApp := apperror.AsAppError(err)
			require.True(t, isApp)
			assert.Equal(t, apperror.CodePriceBelowFloor, appErr.Code)
		})
	}

	bulk, err := NewPricePolicy("quantity >= 10.0 ? unit_price >= price_floor * 0.9 : unit_price >= price_floor")
	require.NoError(t, err)
	assert.NoError(t, bulk.Check(p, types.MustMoney("18"), types.Units(10)))
}

func TestNewPricePolicy_Rejects(t *testing.T) {
	_, err := NewPricePolicy("unit_price +")
	assert.Error(t, err, "syntax error")

	_, err = NewPricePolicy("unit_price * 2.0")
	assert.Error(t, err, "non-bool result")

	_, err = NewPricePolicy("discount > 0.0")
	assert.Error(t, err, "undeclared variable")
}
