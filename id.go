package pullpay

import "github.com/xraph/pullpay/id"

// ID is the TypeID identifier of subscriptions, charges and withdrawals.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// ProductID is the sequential product identifier.
type ProductID = id.ProductID
