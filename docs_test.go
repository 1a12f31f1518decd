package pullpay_test

import (
	"context"
	"log"
	"log/slog"
	"testing"

	"github.com/xraph/pullpay"
	"github.com/xraph/pullpay/payment"
	"github.com/xraph/pullpay/product"
	"github.com/xraph/pullpay/store/memory"
	"github.com/xraph/pullpay/token/memtoken"
	"github.com/xraph/pullpay/types"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from README
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		// Simulated token ledger; the escrow account is its operator
		tokens := memtoken.New("0xEscrow")
		tokens.Mint("0xUSD", "0xAlice", types.NewAmount(100))
		tokens.Approve("0xUSD", "0xAlice", "0xEscrow", types.NewAmount(100))

		engine := pullpay.New(store, tokens,
			pullpay.WithLogger(slog.Default()),
			pullpay.WithEvictAfter(1),
		)

		// Start the engine
		ctx := context.Background()
		if err := engine.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer engine.Stop()

		// Create a product billing 5 units every ten minutes
		p := &product.Product{
			Owner:  "0xOwner",
			Token:  "0xUSD",
			Cost:   types.NewAmount(5),
			Period: product.Every10Minutes,
		}
		if err := engine.CreateProduct(ctx, p); err != nil {
			t.Fatal(err)
		}

		// Subscribe; the first charge is due immediately
		if _, err := engine.Subscribe(ctx, p.ID, "0xAlice", "alice@example.com"); err != nil {
			t.Fatal(err)
		}

		// Charge everything due
		res, err := engine.ProcessDue(ctx, p.ID)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("charged %d, evicted %d\n", res.Charged, res.Evicted)

		// Payment history
		records, err := engine.QueryPayments(ctx, p.ID, payment.QueryOpts{Subscriber: "0xAlice"})
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("payments: %d\n", len(records))

		// Owner withdraws the collected balance
		w, err := engine.Withdraw(ctx, p.ID, "0xOwner", types.NewAmount(5))
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("withdrawn %s in %s\n", w.Amount, w.TxRef)
	})

	// Test Amount type examples
	t.Run("AmountExamples", func(t *testing.T) {
		// Constructors
		_ = types.NewAmount(4900)
		a, _ := types.ParseUnits("1.5", 18) // 1.5 tokens with 18 decimals

		// Arithmetic
		m1 := types.NewAmount(100)
		m2 := types.NewAmount(200)
		_ = m1.Add(m2)
		_ = m1.Mul(3)

		// Comparison
		if m1.LessThan(m2) {
			// m1 is less than m2
		}

		// Formatting
		_ = a.String()        // "1500000000000000000"
		_ = a.FormatUnits(18) // "1.5"
	})
}
