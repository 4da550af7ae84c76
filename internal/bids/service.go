// Package bids owns the bid lifecycle: creation, updates, and the atomic
// settlement that turns one PENDING bid into the package's accepted offer.
package bids

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/parcelmatch/internal/apperr"
	"github.com/example/parcelmatch/internal/commission"
	"github.com/example/parcelmatch/internal/db"
	"github.com/example/parcelmatch/internal/models"
	"github.com/example/parcelmatch/internal/notify"
	"github.com/example/parcelmatch/internal/observability"
)

const (
	MinBidAmount = 1.0
	MaxBidAmount = 10000.0
)

type PackageStore interface {
	GetByID(ctx context.Context, id string) (*models.Package, error)
	// GetByIDForUpdate locks the package row for the duration of tx.
	GetByIDForUpdate(ctx context.Context, tx db.Tx, id string) (*models.Package, error)
	UpdateStatusTx(ctx context.Context, tx db.Tx, id string, status models.PackageStatus, at time.Time) error
}

type TripStore interface {
	GetByID(ctx context.Context, id string) (*models.Trip, error)
	UpdateStatusTx(ctx context.Context, tx db.Tx, id string, status models.TripStatus, at time.Time) error
}

type BidStore interface {
	Create(ctx context.Context, b *models.Bid) error
	GetByID(ctx context.Context, id string) (*models.Bid, error)
	GetByIDForUpdate(ctx context.Context, tx db.Tx, id string) (*models.Bid, error)
	List(ctx context.Context, f Filters) ([]models.Bid, error)
	Update(ctx context.Context, b *models.Bid) error
	UpdateStatusTx(ctx context.Context, tx db.Tx, id string, status models.BidStatus, at time.Time) error
	// RejectSiblingsTx flips every other PENDING bid on the package to REJECTED.
	RejectSiblingsTx(ctx context.Context, tx db.Tx, packageID, exceptBidID string, at time.Time) error
	HasPending(ctx context.Context, packageID, driverID string) (bool, error)
}

type DriverStore interface {
	GetProfile(ctx context.Context, userID string) (*models.DriverProfile, error)
}

// Notifier is the fire-and-forget outbound edge; implementations must not
// block the caller.
type Notifier interface {
	Publish(e notify.Event)
}

// Filters narrows GetBids. Absent fields are nil and ignored.
type Filters struct {
	PackageID *string
	DriverID  *string
	TripID    *string
	Status    *models.BidStatus
	MinAmount *float64
	MaxAmount *float64
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

type CreateBidInput struct {
	PackageID string  `json:"package_id"`
	DriverID  string  `json:"driver_id"`
	Amount    float64 `json:"amount"`
	TripID    *string `json:"trip_id,omitempty"`
	Message   string  `json:"message,omitempty"`
}

// Patch is a partial bid update; nil fields are left untouched.
type Patch struct {
	Amount  *float64 `json:"amount,omitempty"`
	Message *string  `json:"message,omitempty"`
}

type Service struct {
	db       db.DB
	packages PackageStore
	trips    TripStore
	bids     BidStore
	drivers  DriverStore
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(database db.DB, packages PackageStore, trips TripStore, bidStore BidStore, drivers DriverStore, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		db:       database,
		packages: packages,
		trips:    trips,
		bids:     bidStore,
		drivers:  drivers,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateBid validates driver and package eligibility, derives the commission
// split, and persists a PENDING bid. The "bid received" notification is
// best-effort.
func (s *Service) CreateBid(ctx context.Context, in CreateBidInput) (*models.Bid, error) {
	if strings.TrimSpace(in.PackageID) == "" {
		return nil, apperr.Validation("package id is required")
	}
	if strings.TrimSpace(in.DriverID) == "" {
		return nil, apperr.Validation("driver id is required")
	}
	if in.Amount < MinBidAmount || in.Amount > MaxBidAmount {
		return nil, apperr.Validation("bid amount must be between 1 and 10000")
	}

	pkg, err := s.packages.GetByID(ctx, in.PackageID)
	if err != nil {
		return nil, err
	}
	if pkg.Status != models.PackagePending {
		return nil, apperr.BadRequest(apperr.CodePackageNotAvailable, "package is not open for bids")
	}

	driver, err := s.drivers.GetProfile(ctx, in.DriverID)
	if err != nil {
		return nil, err
	}
	if !driver.Verified {
		return nil, apperr.BadRequest(apperr.CodeDriverNotVerified, "driver identity is not verified")
	}
	if driver.UserID == pkg.CustomerID {
		return nil, apperr.BadRequest(apperr.CodeInvalidBid, "cannot bid on your own package")
	}

	if in.TripID != nil {
		trip, err := s.trips.GetByID(ctx, *in.TripID)
		if err != nil {
			return nil, err
		}
		if trip.DriverID != in.DriverID {
			return nil, apperr.BadRequest(apperr.CodeInvalidTrip, "trip does not belong to the bidding driver")
		}
		if trip.Status != models.TripScheduled {
			return nil, apperr.BadRequest(apperr.CodeTripNotAvailable, "trip is not scheduled")
		}
	}

	dup, err := s.bids.HasPending(ctx, in.PackageID, in.DriverID)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, apperr.BadRequest(apperr.CodeDuplicateBid, "driver already has a pending bid on this package")
	}

	split := commission.Calculate(in.Amount)
	now := s.now().UTC()
	bid := &models.Bid{
		ID:               uuid.NewString(),
		PackageID:        in.PackageID,
		DriverID:         in.DriverID,
		TripID:           in.TripID,
		Amount:           in.Amount,
		Message:          in.Message,
		Status:           models.BidPending,
		CommissionAmount: split.CommissionAmount,
		DriverEarnings:   split.DriverEarnings,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.bids.Create(ctx, bid); err != nil {
		return nil, err
	}

	observability.BidsCreated.Inc()
	s.logger.Info("bid created", "bid_id", bid.ID, "package_id", bid.PackageID, "driver_id", bid.DriverID, "amount", bid.Amount)
	s.notifier.Publish(notify.Event{
		Type:       notify.EventBidReceived,
		PackageID:  pkg.ID,
		BidID:      bid.ID,
		DriverID:   bid.DriverID,
		CustomerID: pkg.CustomerID,
		Amount:     bid.Amount,
		OccurredAt: now,
	})
	return bid, nil
}

// AcceptBid settles the package: the chosen bid flips to ACCEPTED, its
// PENDING siblings to REJECTED, the package to ACCEPTED, and the attached
// trip (if any) to IN_PROGRESS, all in one transaction. The package row is
// re-read under a row lock inside the transaction, so of two racing accepts
// exactly one commits and the loser sees PACKAGE_NOT_AVAILABLE.
func (s *Service) AcceptBid(ctx context.Context, bidID, customerID string) (*models.Bid, error) {
	bid, err := s.bids.GetByID(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.Status != models.BidPending {
		return nil, apperr.BadRequest(apperr.CodeBidNotPending, "bid is not pending")
	}
	pkg, err := s.packages.GetByID(ctx, bid.PackageID)
	if err != nil {
		return nil, err
	}
	if pkg.CustomerID != customerID {
		return nil, apperr.Unauthorized("only the package owner can accept a bid")
	}
	if pkg.Status != models.PackagePending {
		return nil, apperr.BadRequest(apperr.CodePackageNotAvailable, "package is already settled")
	}

	now := s.now().UTC()
	err = db.InTx(ctx, s.db, func(tx db.Tx) error {
		lockedPkg, err := s.packages.GetByIDForUpdate(ctx, tx, bid.PackageID)
		if err != nil {
			return err
		}
		if lockedPkg.Status != models.PackagePending {
			return apperr.BadRequest(apperr.CodePackageNotAvailable, "package is already settled")
		}
		lockedBid, err := s.bids.GetByIDForUpdate(ctx, tx, bidID)
		if err != nil {
			return err
		}
		if lockedBid.Status != models.BidPending {
			return apperr.BadRequest(apperr.CodeBidNotPending, "bid is not pending")
		}
		if err := s.bids.UpdateStatusTx(ctx, tx, bidID, models.BidAccepted, now); err != nil {
			return err
		}
		if err := s.bids.RejectSiblingsTx(ctx, tx, bid.PackageID, bidID, now); err != nil {
			return err
		}
		if err := s.packages.UpdateStatusTx(ctx, tx, bid.PackageID, models.PackageAccepted, now); err != nil {
			return err
		}
		if bid.TripID != nil {
			if err := s.trips.UpdateStatusTx(ctx, tx, *bid.TripID, models.TripInProgress, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if apperr.CodeOf(err) != apperr.CodeInternal {
			return nil, err
		}
		return nil, apperr.Internal(apperr.CodeBidAcceptanceFailed, "bid acceptance failed", err)
	}

	bid.Status = models.BidAccepted
	bid.UpdatedAt = now
	observability.BidsAccepted.Inc()
	s.logger.Info("bid accepted", "bid_id", bid.ID, "package_id", bid.PackageID, "driver_id", bid.DriverID)
	s.notifier.Publish(notify.Event{
		Type:       notify.EventBidAccepted,
		PackageID:  bid.PackageID,
		BidID:      bid.ID,
		DriverID:   bid.DriverID,
		CustomerID: customerID,
		Amount:     bid.Amount,
		OccurredAt: now,
	})
	return bid, nil
}

// RejectBid flips a PENDING bid to REJECTED, appending the optional reason
// to the bid message.
func (s *Service) RejectBid(ctx context.Context, bidID, reason string) error {
	bid, err := s.bids.GetByID(ctx, bidID)
	if err != nil {
		return err
	}
	if bid.Status != models.BidPending {
		return apperr.BadRequest(apperr.CodeBidNotPending, "bid is not pending")
	}
	now := s.now().UTC()
	bid.Status = models.BidRejected
	if reason != "" {
		if bid.Message != "" {
			bid.Message += " | "
		}
		bid.Message += "rejected: " + reason
	}
	bid.UpdatedAt = now
	if err := s.bids.Update(ctx, bid); err != nil {
		return err
	}
	observability.BidsRejected.Inc()
	s.notifier.Publish(notify.Event{
		Type:       notify.EventBidRejected,
		PackageID:  bid.PackageID,
		BidID:      bid.ID,
		DriverID:   bid.DriverID,
		Amount:     bid.Amount,
		OccurredAt: now,
	})
	return nil
}

// UpdateBid applies a partial amount/message patch to the driver's own
// PENDING bid.
func (s *Service) UpdateBid(ctx context.Context, bidID, driverID string, patch Patch) (*models.Bid, error) {
	bid, err := s.bids.GetByID(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if bid.DriverID != driverID {
		return nil, apperr.Unauthorized("only the bidding driver can update this bid")
	}
	if bid.Status != models.BidPending {
		return nil, apperr.BadRequest(apperr.CodeBidNotPending, "bid is not pending")
	}
	if patch.Amount != nil {
		if *patch.Amount < MinBidAmount || *patch.Amount > MaxBidAmount {
			return nil, apperr.Validation("bid amount must be between 1 and 10000")
		}
		bid.Amount = *patch.Amount
		split := commission.Calculate(bid.Amount)
		bid.CommissionAmount = split.CommissionAmount
		bid.DriverEarnings = split.DriverEarnings
	}
	if patch.Message != nil {
		bid.Message = *patch.Message
	}
	bid.UpdatedAt = s.now().UTC()
	if err := s.bids.Update(ctx, bid); err != nil {
		return nil, err
	}
	return bid, nil
}

// CancelBid withdraws the driver's own PENDING bid.
func (s *Service) CancelBid(ctx context.Context, bidID, driverID string) error {
	bid, err := s.bids.GetByID(ctx, bidID)
	if err != nil {
		return err
	}
	if bid.DriverID != driverID {
		return apperr.Unauthorized("only the bidding driver can cancel this bid")
	}
	if bid.Status != models.BidPending {
		return apperr.BadRequest(apperr.CodeBidNotPending, "bid is not pending")
	}
	bid.Status = models.BidCancelled
	bid.UpdatedAt = s.now().UTC()
	return s.bids.Update(ctx, bid)
}

func (s *Service) GetBidByID(ctx context.Context, id string) (*models.Bid, error) {
	return s.bids.GetByID(ctx, id)
}

func (s *Service) GetBids(ctx context.Context, f Filters) ([]models.Bid, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.bids.List(ctx, f)
}
