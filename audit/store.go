package audit

import "context"

type Store interface {
	ListAuditRecords(ctx context.Context, workspaceID string, opts ListOpts) ([]*Record, error)
}

// ListOpts pages through a workspace's trail in sort-key order. After is
// an exclusive lower bound; a Limit of zero means no limit.
type ListOpts struct {
	After string
	Limit int
}
