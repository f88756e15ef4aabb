package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/creditledger/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
		prefix  string
	}{
		{"ReservationID", id.NewReservationID, id.ParseReservationID, "rsv_"},
		{"RequestID", id.NewRequestID, id.ParseRequestID, "req_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			if !strings.HasPrefix(original.String(), tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, original.String())
			}
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	if _, err := id.ParseReservationID(id.NewRequestID().String()); err == nil {
		t.Error("ParseReservationID accepted a req_ id")
	}
	if _, err := id.ParseRequestID(id.NewReservationID().String()); err == nil {
		t.Error("ParseRequestID accepted a rsv_ id")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	original := id.NewReservationID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if unmarshalErr := restored.UnmarshalText(data); unmarshalErr != nil {
		t.Fatalf("UnmarshalText failed: %v", unmarshalErr)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}

	var nilID id.ID
	data, err = nilID.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText(nil) failed: %v", err)
	}
	var restored2 id.ID
	if err := restored2.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText(nil) failed: %v", err)
	}
	if !restored2.IsNil() {
		t.Error("expected nil after round-trip of nil ID")
	}
}

func TestParseWithPrefixRejectsGarbage(t *testing.T) {
	for _, in := range []string{"rsv", "rsv_", "rsv_not-a-suffix", "RSV_01h2xcejqtf2nbrexx3vqjhp41"} {
		if _, err := id.ParseReservationID(in); err == nil {
			t.Errorf("ParseReservationID(%q) succeeded", in)
		}
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewReservationID()
	b := id.NewReservationID()
	if a.String() == b.String() {
		t.Errorf("two consecutive NewReservationID() calls returned the same ID: %q", a.String())
	}
}
