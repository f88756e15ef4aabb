package balance

import "context"

type Store interface {
	CreateBalance(ctx context.Context, b *Balance) error
	GetBalance(ctx context.Context, workspaceID string) (*Balance, error)
}
