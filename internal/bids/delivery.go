package bids

import (
	"context"

	"github.com/example/parcelmatch/internal/apperr"
	"github.com/example/parcelmatch/internal/db"
	"github.com/example/parcelmatch/internal/models"
	"github.com/example/parcelmatch/internal/notify"
)

// StartDelivery moves an ACCEPTED package to IN_TRANSIT. Only the driver
// whose bid was accepted may start it.
func (s *Service) StartDelivery(ctx context.Context, packageID, driverID string) error {
	bid, err := s.acceptedBidFor(ctx, packageID)
	if err != nil {
		return err
	}
	if bid.DriverID != driverID {
		return apperr.Unauthorized("delivery can only be started by the assigned driver")
	}
	now := s.now().UTC()
	err = db.InTx(ctx, s.db, func(tx db.Tx) error {
		pkg, err := s.packages.GetByIDForUpdate(ctx, tx, packageID)
		if err != nil {
			return err
		}
		if pkg.Status != models.PackageAccepted {
			return apperr.BadRequest(apperr.CodePackageNotAvailable, "package is not awaiting pickup")
		}
		return s.packages.UpdateStatusTx(ctx, tx, packageID, models.PackageInTransit, now)
	})
	if err != nil {
		return err
	}
	s.notifier.Publish(notify.Event{
		Type:       notify.EventDeliveryStarted,
		PackageID:  packageID,
		BidID:      bid.ID,
		DriverID:   driverID,
		OccurredAt: now,
	})
	return nil
}

// CompleteDelivery moves an IN_TRANSIT package to DELIVERED and, when the
// bid rode on a trip, completes the trip as well. Commission settlement is
// confirmed separately through the reservation surface.
func (s *Service) CompleteDelivery(ctx context.Context, packageID, driverID string) error {
	bid, err := s.acceptedBidFor(ctx, packageID)
	if err != nil {
		return err
	}
	if bid.DriverID != driverID {
		return apperr.Unauthorized("delivery can only be completed by the assigned driver")
	}
	now := s.now().UTC()
	err = db.InTx(ctx, s.db, func(tx db.Tx) error {
		pkg, err := s.packages.GetByIDForUpdate(ctx, tx, packageID)
		if err != nil {
			return err
		}
		if pkg.Status != models.PackageInTransit {
			return apperr.BadRequest(apperr.CodePackageNotAvailable, "package is not in transit")
		}
		if err := s.packages.UpdateStatusTx(ctx, tx, packageID, models.PackageDelivered, now); err != nil {
			return err
		}
		if bid.TripID != nil {
			if err := s.trips.UpdateStatusTx(ctx, tx, *bid.TripID, models.TripCompleted, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notifier.Publish(notify.Event{
		Type:       notify.EventDeliveryCompleted,
		PackageID:  packageID,
		BidID:      bid.ID,
		DriverID:   driverID,
		Amount:     bid.Amount,
		OccurredAt: now,
	})
	return nil
}

func (s *Service) acceptedBidFor(ctx context.Context, packageID string) (*models.Bid, error) {
	status := models.BidAccepted
	matches, err := s.bids.List(ctx, Filters{PackageID: &packageID, Status: &status, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, apperr.NotFound(apperr.CodeBidNotFound, "no accepted bid for this package")
	}
	return &matches[0], nil
}
