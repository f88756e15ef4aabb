package reservation

import "context"

type Store interface {
	GetReservation(ctx context.Context, id ID) (*Reservation, error)
	// TakeReservation deletes the reservation and returns it. Only one
	// caller can take a given reservation.
	TakeReservation(ctx context.Context, id ID) (*Reservation, error)
	ListReservations(ctx context.Context, workspaceID string) ([]*Reservation, error)
}
