package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/capdex/exchange/exchange/database/models"
	"github.com/capdex/exchange/exchange/database/repositories"
)

// PlaceBid records or raises a sealed bid on an auction listing. The bid amount
// must fit inside the bidder's spendable balance plus whatever this listing
// already holds for them; the reservation moves by the difference. Nothing about
// other bidders' amounts leaks back to the caller.
func (e *Engine) PlaceBid(ctx context.Context, code, bidderID string, amount int64) (*models.Bid, error) {
	if bidderID == "" {
		return nil, fmt.Errorf("%w: bidder id is required", ErrValidation)
	}
	if amount < 0 {
		return nil, fmt.Errorf("%w: bid amount cannot be negative", ErrValidation)
	}

	var bid *models.Bid
	err := e.withTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		listing, err := e.lockListingByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if listing.Status != models.ListingStatusActive {
			return ErrListingNotActive
		}
		// The status flips to expired only when the sweep runs; a listing
		// past its recorded close must stop taking bids immediately.
		if !time.Now().Before(listing.ExpiresAt) {
			return ErrListingNotActive
		}
		if listing.Type != models.ListingTypeAuction {
			return ErrWrongListingType
		}
		if listing.SellerID == bidderID {
			return ErrOwnListing
		}

		users, err := e.lockUsers(ctx, tx, bidderID)
		if err != nil {
			return err
		}
		bidder := users[bidderID]

		var priorAmount int64
		prior, err := e.bids.GetLive(ctx, tx, listing.ID, bidderID)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		if prior != nil {
			priorAmount = prior.Amount
		}

		if amount > bidder.Spendable()+priorAmount {
			return ErrInsufficientFunds
		}

		if delta := amount - priorAmount; delta != 0 {
			if err := e.adjustReservation(ctx, tx, bidderID, delta); err != nil {
				return err
			}
		}

		if prior != nil {
			prior.Amount = amount
			prior.UpdatedAt = time.Now()
			_, err = tx.NewUpdate().
				Model(prior).
				Column("amount", "updated_at").
				WherePK().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to update bid: %w", err)
			}
			bid = prior
			return nil
		}

		bid = &models.Bid{
			ListingID: listing.ID,
			BidderID:  bidderID,
			Amount:    amount,
			Status:    models.BidStatusActive,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if _, err := tx.NewInsert().Model(bid).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert bid: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("Bid placed",
		slog.String("listing", code),
		slog.String("bidder", bidderID))
	return bid, nil
}

// RetractBid withdraws the bidder's live bid and releases its reservation.
// Retracting twice reports ErrNoActiveBid on the second call; the ledger is
// untouched either way.
func (e *Engine) RetractBid(ctx context.Context, code, bidderID string) error {
	if bidderID == "" {
		return fmt.Errorf("%w: bidder id is required", ErrValidation)
	}

	return e.withTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		listing, err := e.lockListingByCode(ctx, tx, code)
		if err != nil {
			return err
		}

		bid, err := e.bids.GetLive(ctx, tx, listing.ID, bidderID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrNoActiveBid
			}
			return err
		}

		if _, err := e.lockUsers(ctx, tx, bidderID); err != nil {
			return err
		}
		if err := e.adjustReservation(ctx, tx, bidderID, -bid.Amount); err != nil {
			return err
		}
		return e.setBidStatus(ctx, tx, bid.ID, models.BidStatusCancelled)
	})
}

func (e *Engine) setBidStatus(ctx context.Context, tx bun.Tx, bidID int64, status models.BidStatus) error {
	_, err := tx.NewUpdate().
		Model((*models.Bid)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", bidID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set bid status: %w", err)
	}
	return nil
}
