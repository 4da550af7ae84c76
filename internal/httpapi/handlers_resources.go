package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/parcelmatch/internal/apperr"
	"github.com/example/parcelmatch/internal/models"
)

type createPackageRequest struct {
	CustomerID      string       `json:"customer_id"`
	Pickup          models.Coord `json:"pickup"`
	Delivery        models.Coord `json:"delivery"`
	PickupAddress   string       `json:"pickup_address"`
	DeliveryAddress string       `json:"delivery_address"`
	SizeTier        string       `json:"size_tier"`
	PriceOffered    float64      `json:"price_offered"`
	WeightKg        float64      `json:"weight_kg"`
}

func (s *Server) handleCreatePackage(w http.ResponseWriter, r *http.Request) {
	var in createPackageRequest
	if !s.decode(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.CustomerID) == "" {
		s.respondErr(w, r, apperr.Validation("customer id is required"))
		return
	}
	tier := models.CapacityTier(in.SizeTier)
	if !tier.Valid() {
		s.respondErr(w, r, apperr.Validation("size tier must be one of SMALL, MEDIUM, LARGE, EXTRA_LARGE"))
		return
	}
	if in.PriceOffered <= 0 {
		s.respondErr(w, r, apperr.Validation("price offered must be positive"))
		return
	}
	now := time.Now().UTC()
	pkg := &models.Package{
		ID:              uuid.NewString(),
		CustomerID:      in.CustomerID,
		Pickup:          in.Pickup,
		Delivery:        in.Delivery,
		PickupAddress:   in.PickupAddress,
		DeliveryAddress: in.DeliveryAddress,
		SizeTier:        tier,
		PriceOffered:    in.PriceOffered,
		WeightKg:        in.WeightKg,
		Status:          models.PackagePending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.packages.Create(r.Context(), pkg); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, pkg)
}

func (s *Server) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	pkg, err := s.packages.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, pkg)
}

type createTripRequest struct {
	DriverID           string       `json:"driver_id"`
	Origin             models.Coord `json:"origin"`
	Destination        models.Coord `json:"destination"`
	OriginAddress      string       `json:"origin_address"`
	DestinationAddress string       `json:"destination_address"`
	DepartureTime      time.Time    `json:"departure_time"`
	CapacityTier       string       `json:"capacity_tier"`
}

func (s *Server) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	var in createTripRequest
	if !s.decode(w, r, &in) {
		return
	}
	if strings.TrimSpace(in.DriverID) == "" {
		s.respondErr(w, r, apperr.Validation("driver id is required"))
		return
	}
	tier := models.CapacityTier(in.CapacityTier)
	if !tier.Valid() {
		s.respondErr(w, r, apperr.Validation("capacity tier must be one of SMALL, MEDIUM, LARGE, EXTRA_LARGE"))
		return
	}
	if !in.DepartureTime.After(time.Now()) {
		s.respondErr(w, r, apperr.Validation("departure time must be in the future"))
		return
	}
	now := time.Now().UTC()
	trip := &models.Trip{
		ID:                 uuid.NewString(),
		DriverID:           in.DriverID,
		Origin:             in.Origin,
		Destination:        in.Destination,
		OriginAddress:      in.OriginAddress,
		DestinationAddress: in.DestinationAddress,
		DepartureTime:      in.DepartureTime,
		CapacityTier:       tier,
		Status:             models.TripScheduled,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.trips.Create(r.Context(), trip); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if s.tripIndex != nil {
		if err := s.tripIndex.Upsert(r.Context(), *trip); err != nil {
			s.logger.Warn("trip index upsert failed", "trip_id", trip.ID, "error", err)
		}
	}
	s.respond(w, http.StatusCreated, trip)
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := s.trips.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, trip)
}

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.wallets.Get(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, wallet)
}

func (s *Server) handleTopUpWallet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount float64 `json:"amount"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	if body.Amount <= 0 {
		s.respondErr(w, r, apperr.Validation("top-up amount must be positive"))
		return
	}
	wallet, err := s.wallets.Credit(r.Context(), mux.Vars(r)["user_id"], body.Amount)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, wallet)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			s.respond(w, http.StatusServiceUnavailable, map[string]string{"status": "db unreachable"})
			return
		}
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "ready"})
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.wsreg.Add(driverID, conn)
	s.logger.Info("driver socket connected", "driver_id", driverID)
}
