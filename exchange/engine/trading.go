package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/uptrace/bun"

	"github.com/capdex/exchange/exchange/database/models"
	"github.com/capdex/exchange/exchange/database/repositories"
	"github.com/capdex/exchange/exchange/events"
)

// PlaceTradeOffer proposes a set of the offerer's captures against a trade
// listing. A user keeps at most one pending offer per listing; to change the
// proposal they update or retract it.
func (e *Engine) PlaceTradeOffer(ctx context.Context, code, offererID string, captureIDs []int64, message string) (*models.TradeOffer, error) {
	if offererID == "" {
		return nil, fmt.Errorf("%w: offerer id is required", ErrValidation)
	}
	if len(captureIDs) == 0 {
		return nil, fmt.Errorf("%w: offer needs at least one capture", ErrValidation)
	}

	var offer *models.TradeOffer
	err := e.withTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		listing, err := e.lockListingByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if listing.Status != models.ListingStatusActive {
			return ErrListingNotActive
		}
		if !time.Now().Before(listing.ExpiresAt) {
			return ErrListingNotActive
		}
		if listing.Type != models.ListingTypeTrade {
			return ErrWrongListingType
		}
		if listing.SellerID == offererID {
			return ErrOwnListing
		}

		if _, err := e.offers.GetPendingByOfferer(ctx, tx, listing.ID, offererID); err == nil {
			return fmt.Errorf("%w: a pending offer already exists on this listing", ErrValidation)
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return err
		}

		if err := e.verifyOfferCaptures(ctx, tx, offererID, captureIDs, 0); err != nil {
			return err
		}

		offer = &models.TradeOffer{
			ListingID: listing.ID,
			OffererID: offererID,
			Message:   message,
			Status:    models.TradeOfferPending,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		if _, err := tx.NewInsert().Model(offer).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert trade offer: %w", err)
		}
		return e.insertOfferItems(ctx, tx, offer.ID, captureIDs)
	})
	if err != nil {
		return nil, err
	}
	return offer, nil
}

// UpdateTradeOffer replaces the offered capture set and message of a pending
// offer in one step. The previous items drop out and the new set takes holds;
// captures kept across the update stay valid because their only hold belongs to
// this offer.
func (e *Engine) UpdateTradeOffer(ctx context.Context, offerID int64, offererID string, captureIDs []int64, message string) (*models.TradeOffer, error) {
	if len(captureIDs) == 0 {
		return nil, fmt.Errorf("%w: offer needs at least one capture", ErrValidation)
	}

	peek, err := e.offers.GetByID(ctx, offerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrOfferNotFound
		}
		return nil, err
	}
	if peek.OffererID != offererID {
		return nil, ErrNotOfferer
	}

	var offer *models.TradeOffer
	err = e.withTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		listing, err := e.lockListingByID(ctx, tx, peek.ListingID)
		if err != nil {
			return err
		}
		if listing.Status != models.ListingStatusActive {
			return ErrListingNotActive
		}

		offer, err = e.lockOffer(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if offer.Status != models.TradeOfferPending {
			return ErrOfferNotPending
		}

		if err := e.verifyOfferCaptures(ctx, tx, offererID, captureIDs, offerID); err != nil {
			return err
		}

		_, err = tx.NewDelete().
			Model((*models.TradeOfferItem)(nil)).
			Where("trade_offer_id = ?", offerID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to clear trade offer items: %w", err)
		}
		if err := e.insertOfferItems(ctx, tx, offerID, captureIDs); err != nil {
			return err
		}

		offer.Message = message
		offer.UpdatedAt = time.Now()
		_, err = tx.NewUpdate().
			Model(offer).
			Column("message", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update trade offer: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return offer, nil
}

// RetractTradeOffer cancels the caller's pending offer and releases the holds
// on its captures. Losing the race against an accept surfaces ErrOfferNotPending.
func (e *Engine) RetractTradeOffer(ctx context.Context, offerID int64, offererID string) error {
	peek, err := e.offers.GetByID(ctx, offerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrOfferNotFound
		}
		return err
	}
	if peek.OffererID != offererID {
		return ErrNotOfferer
	}

	return e.withTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if _, err := e.lockListingByID(ctx, tx, peek.ListingID); err != nil {
			return err
		}

		offer, err := e.lockOffer(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if offer.Status != models.TradeOfferPending {
			return ErrOfferNotPending
		}
		return e.setOfferStatus(ctx, tx, offerID, models.TradeOfferCancelled)
	})
}

// AcceptTradeOffer executes the swap: the listing's captures go to the offerer,
// the offered captures go to the seller, every other pending offer on the
// listing is rejected, and the listing completes with an amount-zero ledger row.
func (e *Engine) AcceptTradeOffer(ctx context.Context, offerID int64, sellerID string) (*models.Transaction, error) {
	peek, err := e.offers.GetByID(ctx, offerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrOfferNotFound
		}
		return nil, err
	}

	var txn *models.Transaction
	var listingCode string
	err = e.withTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		listing, err := e.lockListingByID(ctx, tx, peek.ListingID)
		if err != nil {
			return err
		}
		if listing.SellerID != sellerID {
			return ErrNotSeller
		}
		if listing.Status != models.ListingStatusActive {
			return ErrListingNotActive
		}
		listingCode = listing.Code

		offer, err := e.lockOffer(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if offer.Status != models.TradeOfferPending {
			return ErrOfferNotPending
		}

		listingCaptures, err := e.listings.CaptureIDs(ctx, tx, listing.ID)
		if err != nil {
			return err
		}
		offerCaptures, err := e.offers.CaptureIDs(ctx, tx, offerID)
		if err != nil {
			return err
		}

		owners := map[int64]string{}
		for _, id := range listingCaptures {
			owners[id] = sellerID
		}
		for _, id := range offerCaptures {
			owners[id] = offer.OffererID
		}
		if err := e.lockCapturesWithOwners(ctx, tx, owners); err != nil {
			return err
		}

		if err := e.captures.TransferOwnership(ctx, tx, listingCaptures, offer.OffererID); err != nil {
			return err
		}
		if err := e.captures.TransferOwnership(ctx, tx, offerCaptures, sellerID); err != nil {
			return err
		}

		if err := e.setOfferStatus(ctx, tx, offerID, models.TradeOfferAccepted); err != nil {
			return err
		}
		if err := e.rejectPendingOffers(ctx, tx, listing.ID, offerID); err != nil {
			return err
		}
		if err := e.closeListing(ctx, tx, listing.ID, models.ListingStatusCompleted); err != nil {
			return err
		}

		txn, err = e.appendTransaction(ctx, tx, listing.ID, offer.OffererID, sellerID, 0)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Trade offer accepted",
		slog.String("listing", listingCode),
		slog.Int64("offer", offerID))

	e.publish(ctx, events.ExchangeEvent{
		Type:          events.TypeTradeAccepted,
		ListingCode:   listingCode,
		ListingType:   string(models.ListingTypeTrade),
		BuyerID:       peek.OffererID,
		SellerID:      sellerID,
		TransactionID: txn.TxnID.String(),
		OccurredAt:    time.Now(),
	})
	return txn, nil
}

// RejectTradeOffer declines a pending offer without touching the listing.
func (e *Engine) RejectTradeOffer(ctx context.Context, offerID int64, sellerID string) error {
	peek, err := e.offers.GetByID(ctx, offerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrOfferNotFound
		}
		return err
	}

	return e.withTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		listing, err := e.lockListingByID(ctx, tx, peek.ListingID)
		if err != nil {
			return err
		}
		if listing.SellerID != sellerID {
			return ErrNotSeller
		}

		offer, err := e.lockOffer(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if offer.Status != models.TradeOfferPending {
			return ErrOfferNotPending
		}
		return e.setOfferStatus(ctx, tx, offerID, models.TradeOfferRejected)
	})
}

func (e *Engine) lockOffer(ctx context.Context, tx bun.Tx, id int64) (*models.TradeOffer, error) {
	offer := new(models.TradeOffer)
	err := tx.NewSelect().
		Model(offer).
		Where("id = ?", id).
		For("UPDATE").
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOfferNotFound
		}
		return nil, fmt.Errorf("failed to lock trade offer: %w", err)
	}
	return offer, nil
}

// verifyOfferCaptures locks the offered captures, checks the offerer owns all
// of them, and rejects any capture already held by an active listing or another
// pending offer.
func (e *Engine) verifyOfferCaptures(ctx context.Context, tx bun.Tx, offererID string, captureIDs []int64, excludeOfferID int64) error {
	if _, err := e.captures.LockOwned(ctx, tx, offererID, captureIDs); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrCaptureNotOwned, err)
		}
		return err
	}

	disabled, err := e.captures.DisabledIDs(ctx, tx, captureIDs, excludeOfferID)
	if err != nil {
		return err
	}
	if len(disabled) > 0 {
		return fmt.Errorf("%w: captures %v", ErrCaptureDisabled, disabled)
	}
	return nil
}

// lockCapturesWithOwners locks all captures of a swap in one ascending-id pass
// and verifies each still belongs to the side bringing it to the table.
func (e *Engine) lockCapturesWithOwners(ctx context.Context, tx bun.Tx, owners map[int64]string) error {
	ids := make([]int64, 0, len(owners))
	for id := range owners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var captures []*models.Capture
	err := tx.NewSelect().
		Model(&captures).
		Where("id IN (?)", bun.In(ids)).
		Order("id ASC").
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to lock captures: %w", err)
	}
	if len(captures) != len(ids) {
		return fmt.Errorf("capture: %w", repositories.ErrNotFound)
	}

	for _, c := range captures {
		if c.OwnerID != owners[c.ID] {
			return fmt.Errorf("%w: capture %d changed hands", ErrCaptureNotOwned, c.ID)
		}
	}
	return nil
}

func (e *Engine) insertOfferItems(ctx context.Context, tx bun.Tx, offerID int64, captureIDs []int64) error {
	items := make([]*models.TradeOfferItem, 0, len(captureIDs))
	for _, id := range captureIDs {
		items = append(items, &models.TradeOfferItem{
			TradeOfferID: offerID,
			CaptureID:    id,
			CreatedAt:    time.Now(),
		})
	}
	if _, err := tx.NewInsert().Model(&items).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert trade offer items: %w", err)
	}
	return nil
}

func (e *Engine) setOfferStatus(ctx context.Context, tx bun.Tx, offerID int64, status models.TradeOfferStatus) error {
	_, err := tx.NewUpdate().
		Model((*models.TradeOffer)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", offerID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set trade offer status: %w", err)
	}
	return nil
}

// rejectPendingOffers closes out every pending offer on a listing except
// excludeOfferID (zero means none are spared).
func (e *Engine) rejectPendingOffers(ctx context.Context, tx bun.Tx, listingID, excludeOfferID int64) error {
	q := tx.NewUpdate().
		Model((*models.TradeOffer)(nil)).
		Set("status = ?", models.TradeOfferRejected).
		Set("updated_at = ?", time.Now()).
		Where("listing_id = ?", listingID).
		Where("status = ?", models.TradeOfferPending)
	if excludeOfferID != 0 {
		q = q.Where("id != ?", excludeOfferID)
	}

	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("failed to reject pending offers: %w", err)
	}
	return nil
}
