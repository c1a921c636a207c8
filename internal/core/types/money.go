// Package types holds the money and quantity types shared by the ledger,
// documents and reports.
package types

import "github.com/shopspring/decimal"

// Money is an exact decimal amount. JSON encodes it as a string ("12.50").
type Money = decimal.Decimal

// NewMoneyFromString parses an amount such as "45.90".
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney is NewMoneyFromString for literals; it panics on bad input.
func MustMoney(s string) Money {
	m, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns 0.
func Zero() Money { return decimal.Zero }
