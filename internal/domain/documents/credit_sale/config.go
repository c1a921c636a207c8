package credit_sale

import "motoledger/internal/core/numerator"

const (
	// NumberPrefix starts every credit sale number: CR-2026-00001.
	NumberPrefix = "CR"

	// NumeratorStrategy defines the numbering strategy for this document type.
	// Credit sales are customer-facing debt records, so numbers must not skip.
	NumeratorStrategy = numerator.StrategyStrict

	// DefaultPricePolicy accepts any price at or above the product floor.
	DefaultPricePolicy = "unit_price >= price_floor"
)
