package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"motoledger/internal/core/id"
	"motoledger/internal/core/types"
	"motoledger/internal/domain/ledger"
)

func TestExtractDBColumns_Lot(t *testing.T) {
	cols := ExtractDBColumns[ledger.Lot]()

	for _, expected := range []string{
		"id", "version", "product_id", "original_qty", "remaining_qty",
		"unit_cost", "received_at", "state", "source_ref", "created_at",
	} {
		assert.Contains(t, cols, expected)
	}
	assert.Len(t, cols, 10)
}

func TestExtractDBColumns_SkipsIgnoredFields(t *testing.T) {
	cols := ExtractDBColumns[ledger.AllocationRecord]()
	assert.NotContains(t, cols, "-")
	assert.NotContains(t, cols, "lines")
}

func TestStructToMap_Lot(t *testing.T) {
	productID := id.New()
	lot, err := ledger.NewLot(productID, types.Units(3), types.MustMoney("12.50"), time.Now(), "IN-2026-00001")
	assert.NoError(t, err)

	m := StructToMap(lot)

	assert.Equal(t, lot.ID, m["id"])
	assert.Equal(t, 1, m["version"])
	assert.Equal(t, productID, m["product_id"])
	assert.Equal(t, types.Units(3), m["remaining_qty"])
	assert.Equal(t, ledger.LotActive, m["state"])
	assert.Equal(t, "IN-2026-00001", m["source_ref"])
}

func TestColumns(t *testing.T) {
	data := map[string]any{"id": 1, "version": 2, "name": "x", "extra": true}

	got := Columns(data, []string{"id", "version", "name"}, "id", "version")

	assert.Equal(t, map[string]any{"name": "x"}, got)
}
