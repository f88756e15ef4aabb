// Package entry holds ledger entries and the request-scoped Buffer that
// collects them before a commit.
package entry

// Buffer accumulates pending entries grouped by workspace. Within a
// workspace, entries keep their insertion order; that order is the order
// in which the commit replays them.
//
// A Buffer belongs to a single request and is not safe for concurrent use.
type Buffer struct {
	order   []string
	entries map[string][]Entry
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{entries: make(map[string][]Entry)}
}

// Add appends e to its workspace's list. Zero-amount entries are dropped
// unless they record a tool execution.
func (b *Buffer) Add(e Entry) {
	if e.Amount == 0 && e.Source != SourceToolExecution {
		return
	}
	if b.entries == nil {
		b.entries = make(map[string][]Entry)
	}
	if _, ok := b.entries[e.WorkspaceID]; !ok {
		b.order = append(b.order, e.WorkspaceID)
	}
	b.entries[e.WorkspaceID] = append(b.entries[e.WorkspaceID], e)
}

// Workspaces returns the workspaces present, in first-insertion order.
func (b *Buffer) Workspaces() []string {
	out := make([]string, len(b.order))
	copy(out, b.order)
	return out
}

// Entries returns a copy of the entries buffered for a workspace.
func (b *Buffer) Entries(workspaceID string) []Entry {
	src := b.entries[workspaceID]
	if len(src) == 0 {
		return nil
	}
	out := make([]Entry, len(src))
	copy(out, src)
	return out
}

// Sum returns the aggregate signed amount buffered for a workspace.
func (b *Buffer) Sum(workspaceID string) int64 {
	var total int64
	for _, e := range b.entries[workspaceID] {
		total += e.Amount
	}
	return total
}

// Len returns the total number of buffered entries.
func (b *Buffer) Len() int {
	n := 0
	for _, list := range b.entries {
		n += len(list)
	}
	return n
}

// IsEmpty reports whether no workspace has pending entries.
func (b *Buffer) IsEmpty() bool {
	return len(b.order) == 0
}
