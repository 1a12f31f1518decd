// Package pullpay provides a pull-payment subscription engine for
// token-denominated products.
//
// Pullpay is designed as a library, not a service. Import it into your Go
// application, or run the pullpayd daemon in cmd/pullpayd. It provides:
//
//   - Products with a fixed cost per period in a fungible token
//   - Subscriptions that authorize an escrow account to pull the cost each period
//   - Batch charging of due subscriptions with per-subscriber failure isolation
//   - Owner withdrawals bounded by the product balance
//   - A queryable payment history mirrored from the charge journal
//   - Product metadata resolved from off-ledger references (ipfs, https, s3)
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/pullpay"
//	    "github.com/xraph/pullpay/store/postgres"
//	)
//
//	store := postgres.New(db)
//	engine := pullpay.New(store, mover, pullpay.WithEscrow("0xEscrow"))
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Core Concepts
//
// A product bills a fixed Cost of one Token every Period:
//
//	p := &product.Product{
//	    Owner:  "0xOwner",
//	    Token:  "0xUSD",
//	    Cost:   types.NewAmount(5),
//	    Period: product.Every10Minutes,
//	}
//	err := engine.CreateProduct(ctx, p)
//
// Subscribing requires the subscriber to have authorized the escrow account
// for at least one period's cost. The first charge is due at once:
//
//	sub, err := engine.Subscribe(ctx, p.ID, "0xAlice", "alice@example.com")
//
// ProcessDue charges every due subscription of a product. A subscriber who
// cannot pay is evicted without affecting the others:
//
//	res, err := engine.ProcessDue(ctx, p.ID)
//
// Collected funds accrue to the product balance, which only the owner can
// withdraw:
//
//	w, err := engine.Withdraw(ctx, p.ID, "0xOwner", types.NewAmount(5))
//
// # Consistency
//
// The ledger store is authoritative. Every charge is applied under the
// product lock with a compare-and-set on the subscription's next charge
// time, so a billing slot is charged at most once even when runs overlap.
// The payment mirror is updated after the ledger and may briefly lag it;
// SyncMirror and RebuildMirror repair it from the charge journal.
//
// All amounts are integers in the token's smallest unit.
package pullpay
