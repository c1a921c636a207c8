package reports

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// XLSXContentType is the media type of WriteXLSX output.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const valuationSheet = "Valuation"

var valuationHeader = []any{
	"SKU", "Name", "Stock", "Unit cost", "Book value", "FIFO value", "Active lots", "Lots remaining", "Drift",
}

// WriteXLSX renders the valuation report as a single-sheet workbook.
func WriteXLSX(w io.Writer, v *Valuation) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", valuationSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(valuationSheet, "A1", &valuationHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(valuationSheet, "A1", "I1", bold); err != nil {
		return err
	}

	row := 2
	for _, item := range v.Items {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := []any{
			item.SKU,
			item.Name,
			item.StockQty.Float64(),
			item.UnitCost.InexactFloat64(),
			item.BookValue.InexactFloat64(),
			item.FIFOValue.InexactFloat64(),
			item.ActiveLots,
			item.LotsRemaining.Float64(),
			item.Drift.Float64(),
		}
		if err := f.SetSheetRow(valuationSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
		row++
	}

	// Totals
	cell, _ := excelize.CoordinatesToCellName(1, row+1)
	totals := []any{
		"Total", "",
		v.TotalQuantity.Float64(), "",
		v.TotalBookValue.InexactFloat64(),
		v.TotalFIFOValue.InexactFloat64(),
	}
	if err := f.SetSheetRow(valuationSheet, cell, &totals); err != nil {
		return fmt.Errorf("write totals: %w", err)
	}
	totalsRow := fmt.Sprint(row + 1)
	if err := f.SetCellStyle(valuationSheet, "A"+totalsRow, "I"+totalsRow, bold); err != nil {
		return err
	}
	if err := f.SetCellStyle(valuationSheet, "D2", "F"+totalsRow, money); err != nil {
		return err
	}
	if err := f.SetColWidth(valuationSheet, "B", "B", 36); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
