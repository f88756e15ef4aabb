// Package creditledger is a pay-per-use credit ledger for multi-tenant
// workspaces.
//
// Every metered action (a model generation, a tool call, an embedding)
// debits or credits an integer workspace balance, and every change leaves
// an immutable, strictly ordered audit record. The package is a library:
// import it and hand it a store.
//
// # Amounts
//
// All amounts are signed int64 nano-units: one unit of the base currency
// is 1,000,000,000. Negative entry amounts debit the workspace. The types
// package converts to and from micros, whole units and decimal strings.
// Rounding happens once, upward, inside a pricing.Oracle; the ledger
// itself never rounds.
//
// # Committing
//
// A request collects its charges in an entry.Buffer and commits once:
//
//	buf := ledger.NewBuffer()
//	buf.Add(ledger.Entry{
//	    WorkspaceID: "ws_acme",
//	    Source:      ledger.SourceTextGeneration,
//	    Supplier:    "openai",
//	    Model:       "gpt-4o",
//	    Description: "chat completion",
//	    Amount:      -1_250_000,
//	})
//
//	res, err := l.Commit(ctx, buf, requestID)
//
// Commit updates every workspace in the buffer in one atomic store update.
// Each entry gets an audit record whose BalanceBefore and BalanceAfter
// chain in insertion order into the new balance. A missing workspace fails
// the whole commit with ErrWorkspaceNotFound and writes nothing.
//
// # Reservations
//
// When the cost of an operation is only known afterwards, reserve an
// estimate first:
//
//	rsv, err := l.Reserve(ctx, ledger.ReserveRequest{
//	    WorkspaceID: "ws_acme",
//	    Source:      ledger.SourceTextGeneration,
//	    Supplier:    "openai",
//	    Model:       "gpt-4o",
//	    Estimated:   2_000_000,
//	})
//
// Reserve consults the spendlimit.Gate and then, atomically, stores the
// reservation and debits the hold. After the operation, Settle pushes the
// difference between the estimate and the priced usage into the buffer;
// on failure Refund pushes the whole hold back. Both remove the
// reservation, so calling either twice is a logged no-op. Neither commits.
//
// Bring-your-own-key and free operations get the SentinelBYOK and
// SentinelFree reservations, which never touch the store or the buffer.
//
// # Stores
//
// store.Store is implemented by store/memory, store/postgres,
// store/sqlite, store/mongo and store/redis. store/retry adds bounded
// exponential backoff on ErrStorageConflict.
//
// # TypeID
//
// Reservations and generated request IDs are TypeIDs:
//
//	rsv_01h2xcejqtf2nbrexx3vqjhp41  // Reservation ID
//	req_01h455vb4pex5vsknk084sn02q  // Request ID
package creditledger
