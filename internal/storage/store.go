package storage

import (
	"context"
	"errors"

	"github.com/example/cab-pooling/internal/models"
)

// ErrNotFound is returned by lookups for absent entities.
var ErrNotFound = errors.New("not found")

// Tx is the view of the store inside one atomic scope. Every read and
// write issued through it is applied all-or-nothing when the scope
// commits; a concurrent scope observes either the full pre-state or
// the full post-state.
type Tx interface {
	GetCab(ctx context.Context, id string) (*models.Cab, error)
	GetRide(ctx context.Context, id string) (*models.RideRequest, error)
	GetPool(ctx context.Context, id string) (*models.RidePool, error)
	ListActivePools(ctx context.Context) ([]*models.RidePool, error)
	FindAvailableCab(ctx context.Context) (*models.Cab, error)
	SaveCab(ctx context.Context, c *models.Cab) error
	SaveRide(ctx context.Context, r *models.RideRequest) error
	SavePool(ctx context.Context, p *models.RidePool) error
}

// Store is the persistence surface for cabs, ride requests and ride
// pools. Atomically runs fn inside one transactional scope: if fn
// returns an error nothing it wrote is visible afterwards.
type Store interface {
	Atomically(ctx context.Context, fn func(tx Tx) error) error
	CreateCab(ctx context.Context, c *models.Cab) error
	CreateRide(ctx context.Context, r *models.RideRequest) error
	GetRide(ctx context.Context, id string) (*models.RideRequest, error)
	ListPools(ctx context.Context) ([]*models.RidePool, error)
}
