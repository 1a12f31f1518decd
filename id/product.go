package id

import (
	"fmt"
	"strconv"
)

// ProductID addresses a product. The ledger store assigns product IDs
// sequentially starting at 1; an ID is never reused. Zero means unassigned.
type ProductID uint64

// String returns the decimal form of the ID.
func (p ProductID) String() string {
	return strconv.FormatUint(uint64(p), 10)
}

// IsZero reports whether the ID has not been assigned.
func (p ProductID) IsZero() bool { return p == 0 }

// ParseProductID parses a decimal product ID. Zero is rejected.
func ParseProductID(s string) (ProductID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id: parse product id %q: %w", s, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("id: parse product id %q: must be positive", s)
	}

	return ProductID(n), nil
}
