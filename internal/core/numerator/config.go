package numerator

import (
	"fmt"
	"time"
)

// Strategy selects how numbers are reserved in the sequence store.
type Strategy int

const (
	// StrategyStrict reserves every number in the store. Gap-free unless the
	// surrounding document create fails; used for credit sales and returns.
	StrategyStrict Strategy = iota

	// StrategyCached hands out numbers from a range reserved in memory.
	// A restart leaves gaps; fine for stock intakes.
	StrategyCached
)

// Options tune a single GetNextNumber call.
type Options struct {
	Strategy Strategy
	// RangeSize is the cached range length (default 50).
	RangeSize int64
}

// DefaultOptions returns strict numbering.
func DefaultOptions() *Options {
	return &Options{Strategy: StrategyStrict}
}

// ResetPeriod decides when a sequence starts again from 1.
type ResetPeriod string

const (
	ResetYearly  ResetPeriod = "year"
	ResetMonthly ResetPeriod = "month"
	ResetNever   ResetPeriod = "never"
)

// Config describes the number format of one document type.
type Config struct {
	Prefix      string // IN, CR, RT
	IncludeYear bool
	PadWidth    int // default 5
	ResetPeriod ResetPeriod
}

// DefaultConfig returns the PREFIX-YYYY-00001 format with yearly reset.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: ResetYearly,
	}
}

// SequenceKey names the counter that numbers documents dated in period.
func (c Config) SequenceKey(period time.Time) string {
	switch c.ResetPeriod {
	case ResetMonthly:
		return c.Prefix + "_" + period.Format("2006_01")
	case ResetYearly:
		return c.Prefix + "_" + period.Format("2006")
	default:
		return c.Prefix
	}
}

// Format renders sequence value n.
func (c Config) Format(period time.Time, n int64) string {
	width := c.PadWidth
	if width <= 0 {
		width = 5
	}
	if c.IncludeYear {
		return fmt.Sprintf("%s-%s-%0*d", c.Prefix, period.Format("2006"), width, n)
	}
	return fmt.Sprintf("%s-%0*d", c.Prefix, width, n)
}
