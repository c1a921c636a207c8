// Package id issues the UUIDv7 identifiers used for products, lots,
// allocation records and documents.
package id

import (
	"bytes"

	"github.com/google/uuid"
)

// ID is a UUID. Version 7 IDs sort by creation time, which the FIFO
// allocator relies on as its tie-breaker.
type ID = uuid.UUID

// New returns a fresh UUIDv7.
func New() ID {
	v7, err := uuid.NewV7()
	if err != nil {
		// only fails when the random source does
		return uuid.New()
	}
	return v7
}

func Parse(s string) (ID, error) { return uuid.Parse(s) }

// MustParse is for literals in tests and seeds.
func MustParse(s string) ID { return uuid.MustParse(s) }

func Nil() ID { return uuid.Nil }

func IsNil(v ID) bool { return v == uuid.Nil }

// Compare orders IDs bytewise: creation order for UUIDv7, stable for any
// other version.
func Compare(a, b ID) int {
	return bytes.Compare(a[:], b[:])
}
