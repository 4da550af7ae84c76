package commission

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/parcelmatch/internal/apperr"
	"github.com/example/parcelmatch/internal/db"
	"github.com/example/parcelmatch/internal/models"
	"github.com/example/parcelmatch/internal/observability"
)

// ReservationTTL is how long a pre-authorized hold stays valid before the
// sweep reclaims it.
const ReservationTTL = 24 * time.Hour

// WalletStore is the slice of wallet persistence the reservation service
// needs. Reserve and Release are relative adjustments so concurrent holds
// from different calls never clobber each other.
type WalletStore interface {
	Get(ctx context.Context, userID string) (*models.Wallet, error)
	// ReserveTx atomically increments the reserved balance if the result
	// stays within the available balance. It returns false when the wallet
	// cannot cover the hold.
	ReserveTx(ctx context.Context, tx db.Tx, userID string, amount float64) (bool, error)
	// UnreserveTx decrements the reserved balance by amount.
	UnreserveTx(ctx context.Context, tx db.Tx, userID string, amount float64) error
}

type ReservationStore interface {
	CreateTx(ctx context.Context, tx db.Tx, r *models.CommissionReservation) error
	GetByID(ctx context.Context, id string) (*models.CommissionReservation, error)
	GetByIDForUpdate(ctx context.Context, tx db.Tx, id string) (*models.CommissionReservation, error)
	UpdateStatusTx(ctx context.Context, tx db.Tx, id string, status models.ReservationStatus, at time.Time) error
	ListExpiredPending(ctx context.Context, before time.Time) ([]models.CommissionReservation, error)
}

type LedgerStore interface {
	CreateTx(ctx context.Context, tx db.Tx, t *models.CommissionTransaction) error
}

// Service manages two-phase commission holds against driver wallets:
// pre-authorize, then confirm or release. Holds are independent of the bid
// lifecycle so commission can be secured before a trip is finalized.
type Service struct {
	db           db.DB
	wallets      WalletStore
	reservations ReservationStore
	ledger       LedgerStore
	logger       *slog.Logger
	now          func() time.Time
	ttl          time.Duration
}

func NewService(database db.DB, wallets WalletStore, reservations ReservationStore, ledger LedgerStore, logger *slog.Logger) *Service {
	return &Service{
		db:           database,
		wallets:      wallets,
		reservations: reservations,
		ledger:       ledger,
		logger:       logger,
		now:          time.Now,
		ttl:          ReservationTTL,
	}
}

// PreAuthorize holds amount against the driver's wallet and records a
// PENDING reservation expiring after the TTL. The hold is rejected when it
// would push reserved above available.
func (s *Service) PreAuthorize(ctx context.Context, driverID string, tripID *string, amount float64) (*models.CommissionReservation, error) {
	if driverID == "" {
		return nil, apperr.Validation("driver id is required")
	}
	if amount <= 0 {
		return nil, apperr.Validation("commission amount must be positive")
	}

	if _, err := s.wallets.Get(ctx, driverID); err != nil {
		if apperr.HasCode(err, apperr.CodeWalletNotFound) {
			return nil, err
		}
		return nil, apperr.Internal(apperr.CodeCommissionAuthFailed, "wallet lookup failed", err)
	}

	now := s.now().UTC()
	res := &models.CommissionReservation{
		ID:         uuid.NewString(),
		DriverID:   driverID,
		TripID:     tripID,
		Amount:     amount,
		Percentage: Rate,
		Status:     models.ReservationPending,
		ExpiresAt:  now.Add(s.ttl),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := db.InTx(ctx, s.db, func(tx db.Tx) error {
		ok, err := s.wallets.ReserveTx(ctx, tx, driverID, amount)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.BadRequest(apperr.CodeInsufficientBalance, "wallet cannot cover commission hold")
		}
		return s.reservations.CreateTx(ctx, tx, res)
	})
	if err != nil {
		if apperr.HasCode(err, apperr.CodeInsufficientBalance) {
			return nil, err
		}
		return nil, apperr.Internal(apperr.CodeCommissionAuthFailed, "commission pre-authorization failed", err)
	}

	observability.ReservationsCreated.Inc()
	s.logger.Info("commission pre-authorized",
		"reservation_id", res.ID, "driver_id", driverID, "amount", amount)
	return res, nil
}

// Confirm settles a PENDING reservation: the hold is lifted and a COMPLETED
// commission transaction is recorded against the reservation.
func (s *Service) Confirm(ctx context.Context, reservationID string) error {
	err := db.InTx(ctx, s.db, func(tx db.Tx) error {
		res, err := s.reservations.GetByIDForUpdate(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if res.Status != models.ReservationPending {
			return apperr.BadRequest(apperr.CodeInvalidReservation, "reservation is not pending")
		}
		now := s.now().UTC()
		if err := s.reservations.UpdateStatusTx(ctx, tx, res.ID, models.ReservationConfirmed, now); err != nil {
			return err
		}
		if err := s.wallets.UnreserveTx(ctx, tx, res.DriverID, res.Amount); err != nil {
			return err
		}
		return s.ledger.CreateTx(ctx, tx, &models.CommissionTransaction{
			ID:            uuid.NewString(),
			DriverID:      res.DriverID,
			ReservationID: res.ID,
			Amount:        res.Amount,
			Status:        "COMPLETED",
			CreatedAt:     now,
		})
	})
	if err != nil {
		if apperr.CodeOf(err) != apperr.CodeInternal {
			return err
		}
		return apperr.Internal(apperr.CodeCommissionConfirmFailed, "commission confirmation failed", err)
	}
	observability.ReservationsConfirmed.Inc()
	s.logger.Info("commission reservation confirmed", "reservation_id", reservationID)
	return nil
}

// Release drops a hold without settling it. Releasing an already-released
// reservation is a no-op so retries never double-decrement the wallet.
func (s *Service) Release(ctx context.Context, reservationID string) error {
	err := db.InTx(ctx, s.db, func(tx db.Tx) error {
		res, err := s.reservations.GetByIDForUpdate(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		switch res.Status {
		case models.ReservationReleased:
			return nil
		case models.ReservationConfirmed:
			return apperr.BadRequest(apperr.CodeInvalidReservation, "reservation already confirmed")
		}
		if err := s.reservations.UpdateStatusTx(ctx, tx, res.ID, models.ReservationReleased, s.now().UTC()); err != nil {
			return err
		}
		return s.wallets.UnreserveTx(ctx, tx, res.DriverID, res.Amount)
	})
	if err != nil {
		return err
	}
	observability.ReservationsReleased.Inc()
	s.logger.Info("commission reservation released", "reservation_id", reservationID)
	return nil
}

// CleanupExpired releases every PENDING reservation past its expiry and
// returns the number released. This is background maintenance: it never
// returns an error, a failed scan just logs and reports 0.
func (s *Service) CleanupExpired(ctx context.Context) int {
	expired, err := s.reservations.ListExpiredPending(ctx, s.now().UTC())
	if err != nil {
		s.logger.Error("expired reservation scan failed", "error", err)
		return 0
	}
	released := 0
	for _, res := range expired {
		if err := s.Release(ctx, res.ID); err != nil {
			s.logger.Error("expired reservation release failed",
				"reservation_id", res.ID, "error", err)
			continue
		}
		released++
	}
	if released > 0 {
		observability.ReservationsSwept.Add(float64(released))
		s.logger.Info("expired reservations released", "count", released)
	}
	return released
}

// GetReservation loads a reservation by id.
func (s *Service) GetReservation(ctx context.Context, id string) (*models.CommissionReservation, error) {
	return s.reservations.GetByID(ctx, id)
}
