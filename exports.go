package pullpay

import "github.com/xraph/pullpay/types"

// Re-export common types for convenience so users don't have to import types package.

// Amount is re-exported from types package.
type Amount = types.Amount

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Amount constructors
var (
	NewAmount   = types.NewAmount
	ParseAmount = types.ParseAmount
	ParseUnits  = types.ParseUnits
	Sum         = types.Sum
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
