package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/capdex/exchange/exchange/database/models"
	"github.com/capdex/exchange/exchange/events"
)

const (
	defaultSweepBatch   = 100
	defaultSweepWorkers = 4
)

// FinalizeExpiredListings resolves every active listing whose expiry has
// passed and returns how many it transitioned. The scan is unlocked; each
// listing gets its own transaction that re-checks status under FOR UPDATE, so
// the sweep is idempotent and safe to run from several replicas at once.
func (e *Engine) FinalizeExpiredListings(ctx context.Context, batchSize, workers int) (int, error) {
	if batchSize <= 0 {
		batchSize = defaultSweepBatch
	}
	if workers <= 0 {
		workers = defaultSweepWorkers
	}

	ids, err := e.listings.ExpiredIDs(ctx, time.Now(), batchSize)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var finalized int64
	sem := semaphore.NewWeighted(int64(workers))
	g, gctx := errgroup.WithContext(ctx)

	for _, id := range ids {
		id := id
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			done, err := e.finalizeListing(gctx, id)
			if err != nil {
				// Conflicts mean another replica got there first; the
				// listing will be gone from the next scan either way.
				if errors.Is(err, ErrConflict) {
					return nil
				}
				slog.Error("Listing finalization failed",
					slog.Int64("listing_id", id),
					slog.Any("error", err))
				return nil
			}
			if done {
				atomic.AddInt64(&finalized, 1)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return int(atomic.LoadInt64(&finalized)), err
	}
	return int(atomic.LoadInt64(&finalized)), nil
}

// finalizeListing transitions one expired listing. Returns false without error
// when the listing turned out not to need finalizing (already resolved by a
// competing sweep, or bought in the meantime).
func (e *Engine) finalizeListing(ctx context.Context, listingID int64) (bool, error) {
	var pending []events.ExchangeEvent

	err := e.withTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		listing, err := e.lockListingByID(ctx, tx, listingID)
		if err != nil {
			return err
		}
		if listing.Status != models.ListingStatusActive || listing.ExpiresAt.After(time.Now()) {
			pending = nil
			return errAlreadyResolved
		}

		switch listing.Type {
		case models.ListingTypeAuction:
			pending, err = e.finalizeAuction(ctx, tx, listing)
			return err
		default:
			// Buy-now and trade listings simply lapse; pending trade
			// offers are closed out so their capture holds release.
			if listing.Type == models.ListingTypeTrade {
				if err := e.rejectPendingOffers(ctx, tx, listing.ID, 0); err != nil {
					return err
				}
			}
			if err := e.closeListing(ctx, tx, listing.ID, models.ListingStatusExpired); err != nil {
				return err
			}
			pending = []events.ExchangeEvent{{
				Type:        events.TypeListingExpired,
				ListingCode: listing.Code,
				ListingType: string(listing.Type),
				SellerID:    listing.SellerID,
				OccurredAt:  time.Now(),
			}}
			return nil
		}
	})
	if err != nil {
		if errors.Is(err, errAlreadyResolved) {
			return false, nil
		}
		return false, err
	}

	for _, ev := range pending {
		e.publish(ctx, ev)
	}
	return true, nil
}

var errAlreadyResolved = errors.New("listing already resolved")

// finalizeAuction applies the second-price rule to the live bids. With a
// qualifying winner: the winner pays the clearing price, the seller is
// credited, the captures change hands and every losing reservation releases.
// Without one, all bids are rejected and the listing expires unsold.
func (e *Engine) finalizeAuction(ctx context.Context, tx bun.Tx, listing *models.Listing) ([]events.ExchangeEvent, error) {
	bids, err := e.bids.ListLive(ctx, tx, listing.ID)
	if err != nil {
		return nil, err
	}

	outcome := ResolveSecondPrice(bids, listing.ReservePrice)

	// Every bidder's reservation moves, so lock them all up front in one
	// ascending pass together with the seller.
	userIDs := make([]string, 0, len(bids)+1)
	for _, b := range bids {
		userIDs = append(userIDs, b.BidderID)
	}
	if outcome != nil {
		userIDs = append(userIDs, listing.SellerID)
	}
	if len(userIDs) > 0 {
		if _, err := e.lockUsers(ctx, tx, userIDs...); err != nil {
			return nil, err
		}
	}

	if outcome == nil {
		for _, b := range bids {
			if err := e.adjustReservation(ctx, tx, b.BidderID, -b.Amount); err != nil {
				return nil, err
			}
			if err := e.setBidStatus(ctx, tx, b.ID, models.BidStatusRejected); err != nil {
				return nil, err
			}
		}
		if err := e.closeListing(ctx, tx, listing.ID, models.ListingStatusExpired); err != nil {
			return nil, err
		}
		return []events.ExchangeEvent{{
			Type:        events.TypeListingExpired,
			ListingCode: listing.Code,
			ListingType: string(listing.Type),
			SellerID:    listing.SellerID,
			OccurredAt:  time.Now(),
		}}, nil
	}

	winner := outcome.Winner

	// The winner's full bid amount was reserved; release it and debit the
	// clearing price, which never exceeds it.
	if err := e.adjustReservation(ctx, tx, winner.BidderID, -winner.Amount); err != nil {
		return nil, err
	}
	if err := e.debitBalance(ctx, tx, winner.BidderID, outcome.Price); err != nil {
		return nil, err
	}
	if err := e.creditBalance(ctx, tx, listing.SellerID, outcome.Price); err != nil {
		return nil, err
	}

	captureIDs, err := e.listings.CaptureIDs(ctx, tx, listing.ID)
	if err != nil {
		return nil, err
	}
	if err := e.captures.TransferOwnership(ctx, tx, captureIDs, winner.BidderID); err != nil {
		return nil, err
	}

	if err := e.setBidStatus(ctx, tx, winner.ID, models.BidStatusWinning); err != nil {
		return nil, err
	}
	for _, b := range bids {
		if b.ID == winner.ID {
			continue
		}
		if err := e.adjustReservation(ctx, tx, b.BidderID, -b.Amount); err != nil {
			return nil, err
		}
		if err := e.setBidStatus(ctx, tx, b.ID, models.BidStatusOutbid); err != nil {
			return nil, err
		}
	}

	if err := e.closeListing(ctx, tx, listing.ID, models.ListingStatusCompleted); err != nil {
		return nil, err
	}

	txn, err := e.appendTransaction(ctx, tx, listing.ID, winner.BidderID, listing.SellerID, outcome.Price)
	if err != nil {
		return nil, err
	}

	slog.Info("Auction resolved",
		slog.String("listing", listing.Code),
		slog.String("winner", winner.BidderID),
		slog.Int64("price", outcome.Price),
		slog.Int("bids", len(bids)))

	return []events.ExchangeEvent{{
		Type:          events.TypeAuctionWon,
		ListingCode:   listing.Code,
		ListingType:   string(listing.Type),
		BuyerID:       winner.BidderID,
		SellerID:      listing.SellerID,
		Amount:        outcome.Price,
		TransactionID: txn.TxnID.String(),
		OccurredAt:    time.Now(),
	}}, nil
}
