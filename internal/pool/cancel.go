package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/cab-pooling/internal/lock"
	"github.com/example/cab-pooling/internal/models"
	"github.com/example/cab-pooling/internal/observability"
	"github.com/example/cab-pooling/internal/storage"
)

// Canceller removes a ride from its pool, reprices the riders left
// behind, and hands the cab back when the pool empties.
type Canceller struct {
	Store   storage.Store
	Locker  lock.Locker
	LockTTL time.Duration

	BaseDistanceKm float64

	Events EventPublisher // optional
	Notify Notifier       // optional
	Logger *slog.Logger   // optional
}

// Cancel moves the ride to CANCELLED. A ride that never matched needs
// no locking; a pooled ride takes its pool's lock for the membership
// update. Everything runs in one atomic scope and is rolled back
// whole on any error.
func (c *Canceller) Cancel(ctx context.Context, rideID string) error {
	var (
		pool    *models.RidePool
		emptied bool
	)
	err := c.Store.Atomically(ctx, func(tx storage.Tx) error {
		ride, err := tx.GetRide(ctx, rideID)
		if err != nil {
			return err
		}
		if ride.Status == models.RideCancelled {
			return fmt.Errorf("ride %s: %w", rideID, ErrAlreadyCancelled)
		}

		if ride.PoolID == nil {
			ride.Status = models.RideCancelled
			ride.Price = 0
			return tx.SaveRide(ctx, ride)
		}

		p, err := tx.GetPool(ctx, *ride.PoolID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("pool %s referenced by ride %s: %w", *ride.PoolID, rideID, ErrIntegrityFault)
			}
			return err
		}

		err = withPoolLock(ctx, c.Locker, p.ID, c.LockTTL, func() error {
			return c.removeFromPool(ctx, tx, p, ride)
		})
		if err != nil {
			return err
		}
		pool, emptied = p, len(p.Members) == 0
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrLockContention) {
			observability.LockContentionTotal.Inc()
		}
		return err
	}

	observability.CancellationsTotal.Inc()
	if emptied {
		observability.PoolsActive.Dec()
	}
	c.afterCancel(rideID, pool, emptied)
	return nil
}

func (c *Canceller) removeFromPool(ctx context.Context, tx storage.Tx, pool *models.RidePool, ride *models.RideRequest) error {
	members := pool.Members[:0]
	for _, id := range pool.Members {
		if id != ride.ID {
			members = append(members, id)
		}
	}
	pool.Members = members
	pool.TotalSeatsUsed -= ride.SeatRequired
	pool.TotalLuggageUsed -= ride.LuggageCount

	ride.Status = models.RideCancelled
	ride.PoolID = nil
	ride.Price = 0
	if err := tx.SaveRide(ctx, ride); err != nil {
		return err
	}

	if len(pool.Members) > 0 {
		// fares rise as the pool shrinks
		if err := repriceMembers(ctx, tx, pool, c.baseKm()); err != nil {
			return err
		}
	} else {
		pool.Status = models.PoolCancelled
		cab, err := tx.GetCab(ctx, pool.CabID)
		switch {
		case err == nil:
			cab.IsAvailable = true
			cab.CurrentPoolID = nil
			if err := tx.SaveCab(ctx, cab); err != nil {
				return err
			}
		case errors.Is(err, storage.ErrNotFound):
			// anomalous but not fatal; the pool still closes
		default:
			return err
		}
	}

	return tx.SavePool(ctx, pool)
}

func (c *Canceller) afterCancel(rideID string, pool *models.RidePool, emptied bool) {
	if pool == nil {
		if c.Logger != nil {
			c.Logger.Info("ride cancelled", "ride_id", rideID, "pooled", false)
		}
		return
	}
	if c.Events != nil {
		_ = c.Events.Publish(models.PoolEvent{
			Type:     models.EventRideCancelled,
			RideID:   rideID,
			PoolID:   pool.ID,
			CabID:    pool.CabID,
			PoolSize: len(pool.Members),
			At:       time.Now(),
		})
		if emptied {
			_ = c.Events.Publish(models.PoolEvent{
				Type:   models.EventPoolClosed,
				PoolID: pool.ID,
				CabID:  pool.CabID,
				At:     time.Now(),
			})
		}
	}
	if c.Notify != nil {
		action := "left"
		if emptied {
			action = "closed"
		}
		_ = c.Notify.PoolUpdate(pool.CabID, models.PoolUpdate{
			PoolID:           pool.ID,
			CabID:            pool.CabID,
			Action:           action,
			PoolSize:         len(pool.Members),
			TotalSeatsUsed:   pool.TotalSeatsUsed,
			TotalLuggageUsed: pool.TotalLuggageUsed,
		})
	}
	if c.Logger != nil {
		c.Logger.Info("ride cancelled", "ride_id", rideID, "pool_id", pool.ID, "pool_closed", emptied)
	}
}

func (c *Canceller) baseKm() float64 {
	if c.BaseDistanceKm > 0 {
		return c.BaseDistanceKm
	}
	return DefaultBaseDistanceKm
}
