package store

import (
	"fmt"

	"github.com/xraph/creditledger/audit"
	"github.com/xraph/creditledger/balance"
	"github.com/xraph/creditledger/reservation"
	"github.com/xraph/creditledger/types"
)

// Clone returns a deep copy of r so callers never share backend state.
func Clone(r Record) Record {
	switch v := r.(type) {
	case *balance.Balance:
		c := *v
		return &c
	case *audit.Record:
		c := *v
		return &c
	case *reservation.Reservation:
		c := *v
		return &c
	}
	return r
}

// CheckWrite validates that a record returned by an UpdateFunc belongs to
// the table its key names.
func CheckWrite(r Record) error {
	if r == nil {
		return fmt.Errorf("store: nil record")
	}
	k := r.RecordKey()
	var ok bool
	switch r.(type) {
	case *balance.Balance:
		ok = k.Table == types.TableBalances
	case *audit.Record:
		ok = k.Table == types.TableAudit
	case *reservation.Reservation:
		ok = k.Table == types.TableReservations
	}
	if !ok || k.PrimaryKey == "" {
		return fmt.Errorf("store: unsupported record %T for key %s", r, k)
	}
	return nil
}
