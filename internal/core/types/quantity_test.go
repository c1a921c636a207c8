package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantity_String(t *testing.T) {
	assert.Equal(t, "15.0000", Units(15).String())
	assert.Equal(t, "-2.5000", NewQuantityFromFloat64(-2.5).String())
	assert.Equal(t, "0.0001", Quantity(1).String())
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in   string
		want Quantity
	}{
		{"10", Units(10)},
		{"10.5", NewQuantityFromFloat64(10.5)},
		{"-3.25", NewQuantityFromFloat64(-3.25)},
		{".5", NewQuantityFromFloat64(0.5)},
		{"0.0001", Quantity(1)},
		{" 42 ", Units(42)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseQuantity(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseQuantity("")
	assert.Error(t, err)
	_, err = ParseQuantity("abc")
	assert.Error(t, err)
	_, err = ParseQuantity("1.123456")
	assert.Error(t, err, "sub-step precision is rejected")
	_, err = ParseQuantity("99999999999999999999")
	assert.Error(t, err)
}

func TestParseQuantity_Bounds(t *testing.T) {
	got, err := ParseQuantity("1000000000000")
	require.NoError(t, err)
	assert.Equal(t, MaxQuantity, got)

	got, err = ParseQuantity("-1000000000000")
	require.NoError(t, err)
	assert.Equal(t, -MaxQuantity, got)

	// fits in int64 once scaled, but two of them would not add up
	_, err = ParseQuantity("900000000000000")
	assert.Error(t, err)
	_, err = ParseQuantity("1000000000000.0001")
	assert.Error(t, err)

	var payload struct {
		Qty Quantity `json:"qty"`
	}
	assert.Error(t, json.Unmarshal([]byte(`{"qty": 900000000000000}`), &payload))

	assert.True(t, MaxQuantity.InRange())
	assert.False(t, (MaxQuantity + 1).InRange())
	assert.True(t, (MaxQuantity + MaxQuantity).IsPositive(), "sum of two bounded quantities does not wrap")
}

func TestQuantity_JSON(t *testing.T) {
	var payload struct {
		Qty Quantity `json:"qty"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"qty": "7.5"}`), &payload))
	assert.Equal(t, NewQuantityFromFloat64(7.5), payload.Qty)

	require.NoError(t, json.Unmarshal([]byte(`{"qty": 3}`), &payload))
	assert.Equal(t, Units(3), payload.Qty)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"qty": 3.0}`, string(out))
}

func TestQuantity_Cost(t *testing.T) {
	cost := Units(5).Cost(MustMoney("7"))
	assert.True(t, cost.Equal(MustMoney("35")), cost.String())

	half := NewQuantityFromFloat64(0.5).Cost(MustMoney("3"))
	assert.True(t, half.Equal(MustMoney("1.5")), half.String())
}

func TestMinQuantity(t *testing.T) {
	assert.Equal(t, Units(2), MinQuantity(Units(2), Units(3)))
	assert.Equal(t, Units(2), MinQuantity(Units(3), Units(2)))
}
