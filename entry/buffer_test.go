package entry_test

import (
	"testing"

	"github.com/xraph/creditledger/entry"
)

func TestBufferZeroAmountFiltering(t *testing.T) {
	tests := []struct {
		name   string
		source entry.Source
		amount int64
		kept   bool
	}{
		{"zero text generation dropped", entry.SourceTextGeneration, 0, false},
		{"zero embedding dropped", entry.SourceEmbeddingGeneration, 0, false},
		{"zero tool execution kept", entry.SourceToolExecution, 0, true},
		{"debit kept", entry.SourceTextGeneration, -5, true},
		{"credit kept", entry.SourceEmbeddingGeneration, 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := entry.NewBuffer()
			buf.Add(entry.Entry{WorkspaceID: "ws_1", Source: tt.source, Amount: tt.amount})

			if got := buf.Len() == 1; got != tt.kept {
				t.Errorf("kept: got %v, want %v", got, tt.kept)
			}
			if got := buf.IsEmpty(); got == tt.kept {
				t.Errorf("IsEmpty: got %v, want %v", got, !tt.kept)
			}
		})
	}
}

func TestBufferPreservesInsertionOrder(t *testing.T) {
	buf := entry.NewBuffer()
	buf.Add(entry.Entry{WorkspaceID: "ws_b", Source: entry.SourceTextGeneration, Amount: -1, Description: "b1"})
	buf.Add(entry.Entry{WorkspaceID: "ws_a", Source: entry.SourceTextGeneration, Amount: -2, Description: "a1"})
	buf.Add(entry.Entry{WorkspaceID: "ws_b", Source: entry.SourceToolExecution, Amount: 0, Description: "b2"})
	buf.Add(entry.Entry{WorkspaceID: "ws_b", Source: entry.SourceTextGeneration, Amount: 7, Description: "b3"})

	ws := buf.Workspaces()
	if len(ws) != 2 || ws[0] != "ws_b" || ws[1] != "ws_a" {
		t.Fatalf("Workspaces: got %v, want [ws_b ws_a]", ws)
	}

	got := buf.Entries("ws_b")
	want := []string{"b1", "b2", "b3"}
	if len(got) != len(want) {
		t.Fatalf("Entries: got %d entries, want %d", len(got), len(want))
	}
	for i, e := range got {
		if e.Description != want[i] {
			t.Errorf("entry %d: got %q, want %q", i, e.Description, want[i])
		}
	}

	if sum := buf.Sum("ws_b"); sum != 6 {
		t.Errorf("Sum(ws_b): got %d, want 6", sum)
	}
	if sum := buf.Sum("ws_a"); sum != -2 {
		t.Errorf("Sum(ws_a): got %d, want -2", sum)
	}
	if n := buf.Len(); n != 4 {
		t.Errorf("Len: got %d, want 4", n)
	}
}

func TestBufferEntriesReturnsCopy(t *testing.T) {
	buf := entry.NewBuffer()
	buf.Add(entry.Entry{WorkspaceID: "ws_1", Source: entry.SourceTextGeneration, Amount: -3})

	got := buf.Entries("ws_1")
	got[0].Amount = 100

	if sum := buf.Sum("ws_1"); sum != -3 {
		t.Errorf("Sum after caller mutation: got %d, want -3", sum)
	}
	if buf.Entries("missing") != nil {
		t.Error("Entries for unknown workspace should be nil")
	}
}

func TestZeroValueBuffer(t *testing.T) {
	var buf entry.Buffer
	if !buf.IsEmpty() {
		t.Error("zero Buffer should be empty")
	}
	buf.Add(entry.Entry{WorkspaceID: "ws_1", Source: entry.SourceTextGeneration, Amount: 1})
	if buf.Len() != 1 {
		t.Errorf("Len: got %d, want 1", buf.Len())
	}
}

func TestSourceValid(t *testing.T) {
	for _, s := range []entry.Source{entry.SourceEmbeddingGeneration, entry.SourceTextGeneration, entry.SourceToolExecution} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
	if entry.Source("image-generation").Valid() {
		t.Error("unknown source should be invalid")
	}
}
