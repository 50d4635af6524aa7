package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/cab-pooling/internal/dispatch"
	"github.com/example/cab-pooling/internal/models"
	"github.com/example/cab-pooling/internal/pool"
	"github.com/example/cab-pooling/internal/storage"
)

type Server struct {
	Store     storage.Store
	Matcher   *pool.Matcher
	Canceller *pool.Canceller
	WSReg     *dispatch.WSRegistry

	DefaultBaseDistanceKm float64

	logger *slog.Logger
	mux    *mux.Router
}

// New wires the request layer around explicitly injected collaborators;
// nothing is reached through package globals.
func New(logger *slog.Logger, store storage.Store, matcher *pool.Matcher, canceller *pool.Canceller, wsreg *dispatch.WSRegistry, defaultBaseKm float64) *Server {
	if defaultBaseKm <= 0 {
		defaultBaseKm = pool.DefaultBaseDistanceKm
	}
	s := &Server{
		Store:                 store,
		Matcher:               matcher,
		Canceller:             canceller,
		WSReg:                 wsreg,
		DefaultBaseDistanceKm: defaultBaseKm,
		logger:                logger,
		mux:                   mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/cabs", s.handleCreateCab).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides", s.handleCreateRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/match", s.handleMatch).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/cancel", s.handleCancel).Methods("POST")
	s.mux.HandleFunc("/api/v1/pools", s.handleListPools).Methods("GET")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{cab_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleCreateCab(w http.ResponseWriter, r *http.Request) {
	var cab models.Cab
	if err := json.NewDecoder(r.Body).Decode(&cab); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if cab.DriverName == "" || cab.VehicleNumber == "" || cab.SeatCapacity < 1 || cab.LuggageCapacity < 0 {
		http.Error(w, "driver_name, vehicle_number and seat_capacity >= 1 required", http.StatusBadRequest)
		return
	}
	cab.IsAvailable = true
	cab.CurrentPoolID = nil
	if err := s.Store.CreateCab(r.Context(), &cab); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, cab)
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var ride models.RideRequest
	if err := json.NewDecoder(r.Body).Decode(&ride); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if ride.PassengerName == "" || ride.SeatRequired < 0 || ride.LuggageCount < 0 || ride.DetourToleranceKm < 0 {
		http.Error(w, "passenger_name required, counts must be non-negative", http.StatusBadRequest)
		return
	}
	if ride.SeatRequired == 0 {
		ride.SeatRequired = 1
	}
	if ride.BaseDistanceKm <= 0 {
		ride.BaseDistanceKm = s.DefaultBaseDistanceKm
	}
	ride.Status = models.RidePending
	ride.PoolID = nil
	ride.Price = 0
	if err := s.Store.CreateRide(r.Context(), &ride); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	p, err := s.Matcher.Match(r.Context(), rideID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	if err := s.Canceller.Cancel(r.Context(), rideID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "ride cancelled"})
}

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.Store.ListPools(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if pools == nil {
		pools = []*models.RidePool{}
	}
	s.writeJSON(w, http.StatusOK, pools)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	cabID := mux.Vars(r)["cab_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(cabID, conn)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.WSReg.Remove(cabID)
				_ = conn.Close()
				return
			}
		}
	}()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pool.ErrInvalidState), errors.Is(err, pool.ErrAlreadyCancelled):
		status = http.StatusConflict
	case errors.Is(err, pool.ErrLockContention):
		status = http.StatusConflict
	case errors.Is(err, pool.ErrNoAvailableCab):
		status = http.StatusServiceUnavailable
	case errors.Is(err, pool.ErrIntegrityFault):
		status = http.StatusInternalServerError
	}
	if status >= 500 && s.logger != nil {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
