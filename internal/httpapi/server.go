// Package httpapi exposes the marketplace over REST plus a websocket push
// channel for drivers.
package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/parcelmatch/internal/apperr"
	"github.com/example/parcelmatch/internal/bids"
	"github.com/example/parcelmatch/internal/commission"
	"github.com/example/parcelmatch/internal/matching"
	"github.com/example/parcelmatch/internal/models"
	"github.com/example/parcelmatch/internal/notify"
)

// PackageStore and TripStore are the slices of storage the API needs
// directly, for resource creation; lifecycle changes go through the services.
type PackageStore interface {
	Create(ctx context.Context, p *models.Package) error
	GetByID(ctx context.Context, id string) (*models.Package, error)
}

type TripStore interface {
	Create(ctx context.Context, t *models.Trip) error
	GetByID(ctx context.Context, id string) (*models.Trip, error)
}

type WalletStore interface {
	Get(ctx context.Context, userID string) (*models.Wallet, error)
	Credit(ctx context.Context, userID string, amount float64) (*models.Wallet, error)
}

// TripIndexer mirrors new trips into the geo prefilter. Optional; indexing
// failures are logged and ignored.
type TripIndexer interface {
	Upsert(ctx context.Context, t models.Trip) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	bids       *bids.Service
	commission *commission.Service
	matcher    *matching.Engine
	packages   PackageStore
	trips      TripStore
	wallets    WalletStore
	tripIndex  TripIndexer
	wsreg      *notify.WSRegistry
	db         Pinger
	logger     *slog.Logger
	mux        *mux.Router
}

type Deps struct {
	Bids       *bids.Service
	Commission *commission.Service
	Matcher    *matching.Engine
	Packages   PackageStore
	Trips      TripStore
	Wallets    WalletStore
	TripIndex  TripIndexer
	WSReg      *notify.WSRegistry
	DB         Pinger
	Logger     *slog.Logger
}

func NewServer(d Deps) *Server {
	s := &Server{
		bids:       d.Bids,
		commission: d.Commission,
		matcher:    d.Matcher,
		packages:   d.Packages,
		trips:      d.Trips,
		wallets:    d.Wallets,
		tripIndex:  d.TripIndex,
		wsreg:      d.WSReg,
		db:         d.DB,
		logger:     d.Logger,
		mux:        mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/packages", s.handleCreatePackage).Methods("POST")
	api.HandleFunc("/packages/{id}", s.handleGetPackage).Methods("GET")
	api.HandleFunc("/packages/{id}/matches", s.handlePackageMatches).Methods("GET")
	api.HandleFunc("/packages/{id}/delivery/start", s.handleStartDelivery).Methods("POST")
	api.HandleFunc("/packages/{id}/delivery/complete", s.handleCompleteDelivery).Methods("POST")

	api.HandleFunc("/trips", s.handleCreateTrip).Methods("POST")
	api.HandleFunc("/trips/{id}", s.handleGetTrip).Methods("GET")
	api.HandleFunc("/trips/{id}/matches", s.handleTripMatches).Methods("GET")

	api.HandleFunc("/matches/optimal", s.handleOptimalMatches).Methods("POST")
	api.HandleFunc("/matches/optimal-ml", s.handleOptimalMatchesML).Methods("POST")

	api.HandleFunc("/bids", s.handleCreateBid).Methods("POST")
	api.HandleFunc("/bids", s.handleListBids).Methods("GET")
	api.HandleFunc("/bids/{id}", s.handleGetBid).Methods("GET")
	api.HandleFunc("/bids/{id}", s.handleUpdateBid).Methods("PATCH")
	api.HandleFunc("/bids/{id}/accept", s.handleAcceptBid).Methods("POST")
	api.HandleFunc("/bids/{id}/reject", s.handleRejectBid).Methods("POST")
	api.HandleFunc("/bids/{id}/cancel", s.handleCancelBid).Methods("POST")

	api.HandleFunc("/commission/calculate", s.handleCalculateCommission).Methods("POST")
	api.HandleFunc("/commission/reservations", s.handlePreAuthorize).Methods("POST")
	api.HandleFunc("/commission/reservations/{id}", s.handleGetReservation).Methods("GET")
	api.HandleFunc("/commission/reservations/{id}/confirm", s.handleConfirmReservation).Methods("POST")
	api.HandleFunc("/commission/reservations/{id}/release", s.handleReleaseReservation).Methods("POST")
	api.HandleFunc("/commission/reservations/cleanup", s.handleCleanupReservations).Methods("POST")

	api.HandleFunc("/wallets/{user_id}", s.handleGetWallet).Methods("GET")
	api.HandleFunc("/wallets/{user_id}/topup", s.handleTopUpWallet).Methods("POST")

	s.mux.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	s.mux.HandleFunc("/readyz", s.handleReadyz).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{driver_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) respond(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			s.logger.Error("response encode failed", "error", err)
		}
	}
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// respondErr maps typed service errors onto their status and machine code;
// anything untyped becomes an opaque 500.
func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.StatusOf(err)
	var body errorBody
	body.Error.Code = string(apperr.CodeOf(err))
	body.Error.Message = "internal error"
	var e *apperr.Error
	if errors.As(err, &e) {
		body.Error.Message = e.Message
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.respond(w, status, body)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.respondErr(w, r, apperr.Validation("invalid request body"))
		return false
	}
	return true
}

func newID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
