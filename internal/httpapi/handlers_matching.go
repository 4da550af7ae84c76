package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/example/parcelmatch/internal/apperr"
	"github.com/example/parcelmatch/internal/commission"
	"github.com/example/parcelmatch/internal/matching"
	"github.com/example/parcelmatch/internal/models"
)

// criteriaFromQuery reads optional matching knobs off the query string.
// Absent knobs keep the engine defaults.
func (s *Server) criteriaFromQuery(w http.ResponseWriter, r *http.Request) (matching.Criteria, bool) {
	var c matching.Criteria
	q := r.URL.Query()
	for key, dst := range map[string]*float64{
		"max_distance_km":   &c.MaxDistanceKm,
		"time_window_hours": &c.TimeWindowHours,
		"min_match_score":   &c.MinMatchScore,
		"min_driver_rating": &c.MinDriverRating,
	} {
		if v := q.Get(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				s.respondErr(w, r, apperr.Validation("invalid "+key))
				return c, false
			}
			*dst = f
		}
	}
	if v := q.Get("capacity_required"); v != "" {
		tier := models.CapacityTier(v)
		if !tier.Valid() {
			s.respondErr(w, r, apperr.Validation("invalid capacity_required"))
			return c, false
		}
		c.CapacityRequired = &tier
	}
	return c, true
}

func (s *Server) handlePackageMatches(w http.ResponseWriter, r *http.Request) {
	c, ok := s.criteriaFromQuery(w, r)
	if !ok {
		return
	}
	res, err := s.matcher.FindMatchesForPackage(r.Context(), mux.Vars(r)["id"], c)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, res)
}

func (s *Server) handleTripMatches(w http.ResponseWriter, r *http.Request) {
	c, ok := s.criteriaFromQuery(w, r)
	if !ok {
		return
	}
	res, err := s.matcher.FindMatchesForTrip(r.Context(), mux.Vars(r)["id"], c)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, res)
}

func (s *Server) handleOptimalMatches(w http.ResponseWriter, r *http.Request) {
	var c matching.Criteria
	if r.ContentLength > 0 && !s.decode(w, r, &c) {
		return
	}
	res, err := s.matcher.FindOptimalMatches(r.Context(), c)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, res)
}

func (s *Server) handleOptimalMatchesML(w http.ResponseWriter, r *http.Request) {
	var c matching.Criteria
	if r.ContentLength > 0 && !s.decode(w, r, &c) {
		return
	}
	res, err := s.matcher.FindOptimalMatchesWithML(r.Context(), c)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, res)
}

func (s *Server) handleCalculateCommission(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount float64 `json:"amount"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	if body.Amount <= 0 {
		s.respondErr(w, r, apperr.Validation("amount must be positive"))
		return
	}
	s.respond(w, http.StatusOK, commission.Calculate(body.Amount))
}

func (s *Server) handlePreAuthorize(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DriverID string  `json:"driver_id"`
		TripID   *string `json:"trip_id,omitempty"`
		Amount   float64 `json:"amount"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	res, err := s.commission.PreAuthorize(r.Context(), body.DriverID, body.TripID, body.Amount)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, res)
}

func (s *Server) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := s.commission.GetReservation(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, res)
}

func (s *Server) handleConfirmReservation(w http.ResponseWriter, r *http.Request) {
	if err := s.commission.Confirm(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

func (s *Server) handleReleaseReservation(w http.ResponseWriter, r *http.Request) {
	if err := s.commission.Release(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "released"})
}

func (s *Server) handleCleanupReservations(w http.ResponseWriter, r *http.Request) {
	released := s.commission.CleanupExpired(r.Context())
	s.respond(w, http.StatusOK, map[string]int{"released": released})
}
