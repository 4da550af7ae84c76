package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/parcelmatch/internal/apperr"
	"github.com/example/parcelmatch/internal/bids"
	"github.com/example/parcelmatch/internal/models"
)

func (s *Server) handleCreateBid(w http.ResponseWriter, r *http.Request) {
	var in bids.CreateBidInput
	if !s.decode(w, r, &in) {
		return
	}
	bid, err := s.bids.CreateBid(r.Context(), in)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusCreated, bid)
}

func (s *Server) handleGetBid(w http.ResponseWriter, r *http.Request) {
	bid, err := s.bids.GetBidByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, bid)
}

// handleListBids translates query parameters into bid filters. Unknown
// parameters are ignored; malformed ones are a validation error.
func (s *Server) handleListBids(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f bids.Filters

	strParam := func(key string) *string {
		if v := q.Get(key); v != "" {
			return &v
		}
		return nil
	}
	f.PackageID = strParam("package_id")
	f.DriverID = strParam("driver_id")
	f.TripID = strParam("trip_id")
	if v := q.Get("status"); v != "" {
		st := models.BidStatus(v)
		f.Status = &st
	}
	for key, dst := range map[string]**float64{"min_amount": &f.MinAmount, "max_amount": &f.MaxAmount} {
		if v := q.Get(key); v != "" {
			amt, err := strconv.ParseFloat(v, 64)
			if err != nil {
				s.respondErr(w, r, apperr.Validation("invalid "+key))
				return
			}
			*dst = &amt
		}
	}
	for key, dst := range map[string]**time.Time{"start_date": &f.StartDate, "end_date": &f.EndDate} {
		if v := q.Get(key); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				s.respondErr(w, r, apperr.Validation("invalid "+key))
				return
			}
			*dst = &t
		}
	}
	if v := q.Get("limit"); v != "" {
		f.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		f.Offset, _ = strconv.Atoi(v)
	}

	out, err := s.bids.GetBids(r.Context(), f)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]interface{}{"bids": out, "count": len(out)})
}

func (s *Server) handleUpdateBid(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DriverID string     `json:"driver_id"`
		Patch    bids.Patch `json:"patch"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	bid, err := s.bids.UpdateBid(r.Context(), mux.Vars(r)["id"], body.DriverID, body.Patch)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, bid)
}

func (s *Server) handleAcceptBid(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CustomerID string `json:"customer_id"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	bid, err := s.bids.AcceptBid(r.Context(), mux.Vars(r)["id"], body.CustomerID)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, bid)
}

func (s *Server) handleRejectBid(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	if err := s.bids.RejectBid(r.Context(), mux.Vars(r)["id"], body.Reason); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (s *Server) handleCancelBid(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DriverID string `json:"driver_id"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	if err := s.bids.CancelBid(r.Context(), mux.Vars(r)["id"], body.DriverID); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleStartDelivery(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DriverID string `json:"driver_id"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	if err := s.bids.StartDelivery(r.Context(), mux.Vars(r)["id"], body.DriverID); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "in_transit"})
}

func (s *Server) handleCompleteDelivery(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DriverID string `json:"driver_id"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	if err := s.bids.CompleteDelivery(r.Context(), mux.Vars(r)["id"], body.DriverID); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "delivered"})
}
