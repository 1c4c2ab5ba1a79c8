package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/capdex/exchange/exchange/database/models"
	"github.com/capdex/exchange/exchange/events"
)

// BuyNow purchases a buy-now listing at its asking price. The listing row lock
// plus the status recheck make concurrent purchases of the same listing resolve
// to exactly one winner; everyone else observes ErrListingNotActive.
func (e *Engine) BuyNow(ctx context.Context, code, buyerID string) (*models.Transaction, error) {
	if buyerID == "" {
		return nil, fmt.Errorf("%w: buyer id is required", ErrValidation)
	}

	var txn *models.Transaction
	var sellerID string
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
		if listing.Type != models.ListingTypeBuyNow {
			return ErrWrongListingType
		}
		if listing.SellerID == buyerID {
			return ErrSelfPurchase
		}
		sellerID = listing.SellerID

		users, err := e.lockUsers(ctx, tx, buyerID, listing.SellerID)
		if err != nil {
			return err
		}
		if users[buyerID].Spendable() < listing.Price {
			return ErrInsufficientFunds
		}

		if err := e.debitBalance(ctx, tx, buyerID, listing.Price); err != nil {
			return err
		}
		if err := e.creditBalance(ctx, tx, listing.SellerID, listing.Price); err != nil {
			return err
		}

		captureIDs, err := e.listings.CaptureIDs(ctx, tx, listing.ID)
		if err != nil {
			return err
		}
		if err := e.captures.TransferOwnership(ctx, tx, captureIDs, buyerID); err != nil {
			return err
		}

		if err := e.closeListing(ctx, tx, listing.ID, models.ListingStatusCompleted); err != nil {
			return err
		}

		txn, err = e.appendTransaction(ctx, tx, listing.ID, buyerID, listing.SellerID, listing.Price)
		return err
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Buy-now purchase completed",
		slog.String("listing", code),
		slog.String("buyer", buyerID),
		slog.Int64("amount", txn.Amount))

	e.publish(ctx, events.ExchangeEvent{
		Type:          events.TypePurchase,
		ListingCode:   code,
		ListingType:   string(models.ListingTypeBuyNow),
		BuyerID:       buyerID,
		SellerID:      sellerID,
		Amount:        txn.Amount,
		TransactionID: txn.TxnID.String(),
		OccurredAt:    time.Now(),
	})
	return txn, nil
}
