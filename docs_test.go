package creditledger_test

import (
	"context"
	"log"
	"log/slog"
	"testing"

	ledger "github.com/xraph/creditledger"
	"github.com/xraph/creditledger/pricing"
	"github.com/xraph/creditledger/spendlimit"
	"github.com/xraph/creditledger/store/memory"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from README
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		// Prices per million tokens, in nanos
		prices := pricing.NewTable().
			SetModel("openai", "gpt-4o", pricing.ModelRate{
				InputPerMillion:  ledger.FromMicros(2_500_000), // $2.50
				OutputPerMillion: ledger.FromMicros(10_000_000),
			}).
			SetTool("internal", "web_search", ledger.FromMicros(5_000))

		l := ledger.New(store,
			ledger.WithLogger(slog.Default()),
			ledger.WithPricingOracle(prices),
			ledger.WithSpendingLimitGate(&spendlimit.Rules{
				WorkspacePerRequest: ledger.FromUnits(5),
			}),
		)

		// Start the engine
		ctx := context.Background()
		if err := l.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer l.Stop()

		if _, err := l.OpenWorkspace(ctx, "ws_123", ledger.FromUnits(10)); err != nil {
			t.Fatal(err)
		}

		// Hold an estimate before calling the model
		rsv, err := l.Reserve(ctx, ledger.ReserveRequest{
			WorkspaceID: "ws_123",
			AgentID:     "agent_456",
			Source:      ledger.SourceTextGeneration,
			Supplier:    "openai",
			Model:       "gpt-4o",
			Estimated:   ledger.FromMicros(50_000),
		})
		if err != nil {
			t.Fatal(err)
		}

		// Settle against real usage, then commit everything the request did
		buf := ledger.NewBuffer()
		if err := l.Settle(ctx, buf, rsv.ID, pricing.Usage{
			Source:       ledger.SourceTextGeneration,
			Supplier:     "openai",
			Model:        "gpt-4o",
			InputTokens:  1200,
			OutputTokens: 300,
		}); err != nil {
			t.Fatal(err)
		}
		buf.Add(ledger.Entry{
			WorkspaceID: "ws_123",
			Source:      ledger.SourceToolExecution,
			Supplier:    "internal",
			ToolCall:    "web_search",
			Amount:      -ledger.FromMicros(5_000),
		})

		res, err := l.Commit(ctx, buf, "")
		if err != nil {
			t.Fatal(err)
		}

		log.Printf("Committed %s: balance %s\n", res.RequestID, ledger.FormatUnits(res.Balances[0].Amount))
	})

	// Test BYOK example
	t.Run("BringYourOwnKeyExample", func(t *testing.T) {
		l := ledger.New(memory.New())
		ctx := context.Background()

		rsv, err := l.Reserve(ctx, ledger.ReserveRequest{
			WorkspaceID: "ws_123",
			Estimated:   ledger.FromUnits(1),
			Mode:        ledger.BringYourOwnKey,
		})
		if err != nil {
			t.Fatal(err)
		}
		if rsv.ID != ledger.SentinelBYOK {
			t.Fatalf("expected sentinel, got %s", rsv.ID)
		}

		// Settling a sentinel is a no-op
		if err := l.Settle(ctx, ledger.NewBuffer(), rsv.ID, pricing.Usage{}); err != nil {
			t.Fatal(err)
		}
	})

	// Test amount examples
	t.Run("AmountExamples", func(t *testing.T) {
		// Constructors
		_ = ledger.FromUnits(25)     // "25"
		_ = ledger.FromMicros(1_500) // "0.0015"

		// Parsing and formatting
		n, err := ledger.ParseUnits("-1.25")
		if err != nil {
			t.Fatal(err)
		}
		if got := ledger.FormatUnits(n); got != "-1.25" {
			t.Fatalf("FormatUnits = %q", got)
		}
	})
}
