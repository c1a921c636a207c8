package return_request

import "motoledger/internal/core/numerator"

const (
	// NumberPrefix starts every return number: RT-2026-00001.
	NumberPrefix = "RT"

	// NumeratorStrategy defines the numbering strategy for this document type.
	NumeratorStrategy = numerator.StrategyStrict
)
