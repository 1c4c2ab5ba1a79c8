package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/capdex/exchange/exchange/database/models"
	"github.com/capdex/exchange/exchange/database/repositories"
	"github.com/capdex/exchange/exchange/events"
)

const (
	minListingDuration     = time.Minute
	maxListingDuration     = 14 * 24 * time.Hour
	defaultListingDuration = 3 * 24 * time.Hour
)

// CreateListingInput carries everything needed to open a listing. Price applies
// to buy-now listings, ReservePrice to auctions; a trade listing uses neither.
// A zero Duration means the default of three days.
type CreateListingInput struct {
	Type         models.ListingType
	CaptureIDs   []int64
	Price        int64
	ReservePrice int64
	Duration     time.Duration
}

func (in *CreateListingInput) validate() error {
	switch in.Type {
	case models.ListingTypeAuction:
		if in.ReservePrice < 0 {
			return fmt.Errorf("%w: reserve price cannot be negative", ErrValidation)
		}
		if in.Price != 0 {
			return fmt.Errorf("%w: auctions do not take a fixed price", ErrValidation)
		}
	case models.ListingTypeBuyNow:
		if in.Price <= 0 {
			return fmt.Errorf("%w: buy-now price must be positive", ErrValidation)
		}
		if in.ReservePrice != 0 {
			return fmt.Errorf("%w: buy-now listings do not take a reserve", ErrValidation)
		}
	case models.ListingTypeTrade:
		if in.Price != 0 || in.ReservePrice != 0 {
			return fmt.Errorf("%w: trade listings do not take prices", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown listing type %q", ErrValidation, in.Type)
	}

	if len(in.CaptureIDs) == 0 {
		return fmt.Errorf("%w: listing needs at least one capture", ErrValidation)
	}

	if in.Duration == 0 {
		in.Duration = defaultListingDuration
	}
	if in.Duration < minListingDuration || in.Duration > maxListingDuration {
		return fmt.Errorf("%w: duration must be between %s and %s", ErrValidation, minListingDuration, maxListingDuration)
	}
	return nil
}

// CreateListing opens a listing over the seller's captures. The captures are
// locked and checked for existing holds inside the transaction, so a capture
// can never end up on two live listings.
func (e *Engine) CreateListing(ctx context.Context, sellerID string, input CreateListingInput) (*models.Listing, error) {
	if sellerID == "" {
		return nil, fmt.Errorf("%w: seller id is required", ErrValidation)
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	code, err := e.codes.Generate()
	if err != nil {
		return nil, err
	}

	listing := &models.Listing{
		Code:         code,
		SellerID:     sellerID,
		Type:         input.Type,
		Status:       models.ListingStatusActive,
		Price:        input.Price,
		ReservePrice: input.ReservePrice,
		ExpiresAt:    time.Now().Add(input.Duration),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if input.Type == models.ListingTypeAuction {
		listing.AuctionType = models.AuctionTypeSecondPrice
	}

	err = e.withTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		if _, err := e.captures.LockOwned(ctx, tx, sellerID, input.CaptureIDs); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return fmt.Errorf("%w: %v", ErrCaptureNotOwned, err)
			}
			return err
		}

		disabled, err := e.captures.DisabledIDs(ctx, tx, input.CaptureIDs, 0)
		if err != nil {
			return err
		}
		if len(disabled) > 0 {
			return fmt.Errorf("%w: captures %v", ErrCaptureDisabled, disabled)
		}

		if _, err := tx.NewInsert().Model(listing).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert listing: %w", err)
		}

		items := make([]*models.ListingItem, 0, len(input.CaptureIDs))
		for _, id := range input.CaptureIDs {
			items = append(items, &models.ListingItem{
				ListingID: listing.ID,
				CaptureID: id,
				CreatedAt: time.Now(),
			})
		}
		if _, err := tx.NewInsert().Model(&items).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert listing items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, events.ExchangeEvent{
		Type:        events.TypeListingCreated,
		ListingCode: listing.Code,
		ListingType: string(listing.Type),
		SellerID:    sellerID,
		OccurredAt:  time.Now(),
	})
	return listing, nil
}

// CancelListing takes an active listing off the market and releases every hold
// it created. An auction that has collected at least one live bid cannot be
// canceled.
func (e *Engine) CancelListing(ctx context.Context, code, sellerID string) error {
	err := e.withTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		listing, err := e.lockListingByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if listing.SellerID != sellerID {
			return ErrNotSeller
		}
		if listing.Status != models.ListingStatusActive {
			return ErrListingNotActive
		}

		if listing.Type == models.ListingTypeAuction {
			bids, err := e.bids.ListLive(ctx, tx, listing.ID)
			if err != nil {
				return err
			}
			if len(bids) > 0 {
				return ErrListingHasBids
			}
		}

		if listing.Type == models.ListingTypeTrade {
			if err := e.rejectPendingOffers(ctx, tx, listing.ID, 0); err != nil {
				return err
			}
		}

		return e.closeListing(ctx, tx, listing.ID, models.ListingStatusCancelled)
	})
	if err != nil {
		return err
	}

	e.publish(ctx, events.ExchangeEvent{
		Type:        events.TypeListingCancelled,
		ListingCode: code,
		SellerID:    sellerID,
		OccurredAt:  time.Now(),
	})
	return nil
}

// closeListing moves a listing out of active. Holds on its captures lapse with
// the status change because the disabled set is derived from active rows only.
// completed_at marks an actual exchange; cancelled and expired listings never
// completed, so the column stays null for them.
func (e *Engine) closeListing(ctx context.Context, tx bun.Tx, listingID int64, status models.ListingStatus) error {
	q := tx.NewUpdate().
		Model((*models.Listing)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", listingID)
	if status == models.ListingStatusCompleted {
		q = q.Set("completed_at = ?", time.Now())
	}

	if _, err := q.Exec(ctx); err != nil {
		return fmt.Errorf("failed to close listing: %w", err)
	}
	return nil
}
