package intake

import "motoledger/internal/core/numerator"

const (
	// NumberPrefix starts every intake number: IN-2026-00001.
	NumberPrefix = "IN"

	// NumeratorStrategy defines the numbering strategy for this document type.
	// Intakes are internal paperwork, so gaps after a restart are acceptable.
	NumeratorStrategy = numerator.StrategyCached
)
