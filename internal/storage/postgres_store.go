package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/example/cab-pooling/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

// Atomically runs fn inside a serializable transaction. Serializable
// keeps a concurrent scope from observing a half-applied pool update.
func (p *PostgresStore) Atomically(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	if err := fn(&pgTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) CreateCab(ctx context.Context, c *models.Cab) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	return p.Atomically(ctx, func(tx Tx) error { return tx.SaveCab(ctx, c) })
}

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.RideRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now()
	r.CreatedAt, r.UpdatedAt = now, now
	return p.Atomically(ctx, func(tx Tx) error { return tx.SaveRide(ctx, r) })
}

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.RideRequest, error) {
	return scanRide(p.db.QueryRowContext(ctx, rideSelect+` WHERE id=$1`, id), id)
}

func (p *PostgresStore) ListPools(ctx context.Context) ([]*models.RidePool, error) {
	rows, err := p.db.QueryContext(ctx, poolSelect+` ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPools(rows)
}

type pgTx struct {
	tx *sql.Tx
}

const (
	cabSelect  = `SELECT id, driver_name, vehicle_number, seat_capacity, luggage_capacity, is_available, current_pool_id, created_at, updated_at FROM cabs`
	rideSelect = `SELECT id, passenger_name, passenger_phone, source_lat, source_lng, dest_lat, dest_lng, luggage_count, seat_required, detour_tolerance_km, base_distance_km, price, status, pool_id, created_at, updated_at FROM ride_requests`
	poolSelect = `SELECT id, cab_id, members, total_seats_used, total_luggage_used, estimated_route_distance_km, status, created_at, updated_at FROM ride_pools`
)

func (t *pgTx) GetCab(ctx context.Context, id string) (*models.Cab, error) {
	return scanCab(t.tx.QueryRowContext(ctx, cabSelect+` WHERE id=$1`, id), id)
}

func (t *pgTx) GetRide(ctx context.Context, id string) (*models.RideRequest, error) {
	return scanRide(t.tx.QueryRowContext(ctx, rideSelect+` WHERE id=$1`, id), id)
}

func (t *pgTx) GetPool(ctx context.Context, id string) (*models.RidePool, error) {
	return scanPool(t.tx.QueryRowContext(ctx, poolSelect+` WHERE id=$1`, id), id)
}

func (t *pgTx) ListActivePools(ctx context.Context) ([]*models.RidePool, error) {
	rows, err := t.tx.QueryContext(ctx, poolSelect+` WHERE status=$1 ORDER BY created_at, id`, models.PoolActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPools(rows)
}

func (t *pgTx) FindAvailableCab(ctx context.Context) (*models.Cab, error) {
	c, err := scanCab(t.tx.QueryRowContext(ctx, cabSelect+` WHERE is_available ORDER BY created_at, id LIMIT 1`), "")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("available cab: %w", ErrNotFound)
		}
		return nil, err
	}
	return c, nil
}

func (t *pgTx) SaveCab(ctx context.Context, c *models.Cab) error {
	c.UpdatedAt = time.Now()
	_, err := t.tx.ExecContext(ctx, `INSERT INTO cabs(id, driver_name, vehicle_number, seat_capacity, luggage_capacity, is_available, current_pool_id, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET driver_name=$2, vehicle_number=$3, seat_capacity=$4, luggage_capacity=$5, is_available=$6, current_pool_id=$7, updated_at=$9`,
		c.ID, c.DriverName, c.VehicleNumber, c.SeatCapacity, c.LuggageCapacity, c.IsAvailable, c.CurrentPoolID, c.CreatedAt, c.UpdatedAt)
	return err
}

func (t *pgTx) SaveRide(ctx context.Context, r *models.RideRequest) error {
	r.UpdatedAt = time.Now()
	_, err := t.tx.ExecContext(ctx, `INSERT INTO ride_requests(id, passenger_name, passenger_phone, source_lat, source_lng, dest_lat, dest_lng, luggage_count, seat_required, detour_tolerance_km, base_distance_km, price, status, pool_id, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET price=$12, status=$13, pool_id=$14, updated_at=$16`,
		r.ID, r.PassengerName, r.PassengerPhone, r.Source.Lat, r.Source.Lng, r.Destination.Lat, r.Destination.Lng,
		r.LuggageCount, r.SeatRequired, r.DetourToleranceKm, r.BaseDistanceKm, r.Price, r.Status, r.PoolID, r.CreatedAt, r.UpdatedAt)
	return err
}

func (t *pgTx) SavePool(ctx context.Context, p *models.RidePool) error {
	p.UpdatedAt = time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = p.UpdatedAt
	}
	_, err := t.tx.ExecContext(ctx, `INSERT INTO ride_pools(id, cab_id, members, total_seats_used, total_luggage_used, estimated_route_distance_km, status, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET members=$3, total_seats_used=$4, total_luggage_used=$5, estimated_route_distance_km=$6, status=$7, updated_at=$9`,
		p.ID, p.CabID, pq.Array(p.Members), p.TotalSeatsUsed, p.TotalLuggageUsed, p.EstimatedRouteDistanceKm, p.Status, p.CreatedAt, p.UpdatedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCab(row rowScanner, id string) (*models.Cab, error) {
	var c models.Cab
	var poolID sql.NullString
	err := row.Scan(&c.ID, &c.DriverName, &c.VehicleNumber, &c.SeatCapacity, &c.LuggageCapacity, &c.IsAvailable, &poolID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cab %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if poolID.Valid {
		c.CurrentPoolID = &poolID.String
	}
	return &c, nil
}

func scanRide(row rowScanner, id string) (*models.RideRequest, error) {
	var r models.RideRequest
	var poolID sql.NullString
	err := row.Scan(&r.ID, &r.PassengerName, &r.PassengerPhone, &r.Source.Lat, &r.Source.Lng, &r.Destination.Lat, &r.Destination.Lng,
		&r.LuggageCount, &r.SeatRequired, &r.DetourToleranceKm, &r.BaseDistanceKm, &r.Price, &r.Status, &poolID, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ride %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if poolID.Valid {
		r.PoolID = &poolID.String
	}
	return &r, nil
}

func scanPool(row rowScanner, id string) (*models.RidePool, error) {
	var p models.RidePool
	err := row.Scan(&p.ID, &p.CabID, pq.Array(&p.Members), &p.TotalSeatsUsed, &p.TotalLuggageUsed, &p.EstimatedRouteDistanceKm, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pool %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func collectPools(rows *sql.Rows) ([]*models.RidePool, error) {
	var out []*models.RidePool
	for rows.Next() {
		p, err := scanPool(rows, "")
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
