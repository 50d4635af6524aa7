package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RideStatus transitions one way: PENDING -> MATCHED -> CANCELLED,
// or PENDING -> CANCELLED directly. CANCELLED is terminal.
type RideStatus string

const (
	RidePending   RideStatus = "PENDING"
	RideMatched   RideStatus = "MATCHED"
	RideCancelled RideStatus = "CANCELLED"
)

type PoolStatus string

const (
	PoolActive    PoolStatus = "ACTIVE"
	PoolCompleted PoolStatus = "COMPLETED"
	PoolCancelled PoolStatus = "CANCELLED"
)

// Cab is a vehicle available for pooled rides. IsAvailable is false
// exactly when CurrentPoolID is set; both flip together inside the
// same atomic scope.
type Cab struct {
	ID              string    `json:"id"`
	DriverName      string    `json:"driver_name"`
	VehicleNumber   string    `json:"vehicle_number"`
	SeatCapacity    int       `json:"seat_capacity"`
	LuggageCapacity int       `json:"luggage_capacity"`
	IsAvailable     bool      `json:"is_available"`
	CurrentPoolID   *string   `json:"current_pool_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RideRequest is one passenger's trip ask. PoolID is set exactly when
// Status is MATCHED.
type RideRequest struct {
	ID                string     `json:"id"`
	PassengerName     string     `json:"passenger_name"`
	PassengerPhone    string     `json:"passenger_phone"`
	Source            Coord      `json:"source"`
	Destination       Coord      `json:"destination"`
	LuggageCount      int        `json:"luggage_count"`
	SeatRequired      int        `json:"seat_required"`
	DetourToleranceKm float64    `json:"detour_tolerance_km"`
	BaseDistanceKm    float64    `json:"base_distance_km"`
	Price             int        `json:"price"`
	Status            RideStatus `json:"status"`
	PoolID            *string    `json:"pool_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// RidePool is a set of ride requests sharing one cab. Members is
// ordered by join time; the last entry is the reference point for
// incremental-detour estimation. The pool owns its membership; the
// back-references on Cab and RideRequest are denormalized copies
// maintained only inside the atomic scope that updates the pool.
type RidePool struct {
	ID                       string     `json:"id"`
	CabID                    string     `json:"cab_id"`
	Members                  []string   `json:"members"`
	TotalSeatsUsed           int        `json:"total_seats_used"`
	TotalLuggageUsed         int        `json:"total_luggage_used"`
	EstimatedRouteDistanceKm float64    `json:"estimated_route_distance_km"`
	Status                   PoolStatus `json:"status"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

type PoolEventType string

const (
	EventPoolCreated   PoolEventType = "pool_created"
	EventRideMatched   PoolEventType = "ride_matched"
	EventRideCancelled PoolEventType = "ride_cancelled"
	EventPoolClosed    PoolEventType = "pool_closed"
)

// PoolEvent is published to kafka whenever pool membership changes.
type PoolEvent struct {
	Type     PoolEventType `json:"type"`
	RideID   string        `json:"ride_id,omitempty"`
	PoolID   string        `json:"pool_id"`
	CabID    string        `json:"cab_id"`
	PoolSize int           `json:"pool_size"`
	At       time.Time     `json:"at"`
}

// PoolUpdate is pushed to a connected driver over websocket when the
// composition of their cab's pool changes.
type PoolUpdate struct {
	PoolID           string `json:"pool_id"`
	CabID            string `json:"cab_id"`
	Action           string `json:"action"` // joined, left, closed
	PoolSize         int    `json:"pool_size"`
	TotalSeatsUsed   int    `json:"total_seats_used"`
	TotalLuggageUsed int    `json:"total_luggage_used"`
}
