package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/capdex/exchange/exchange/database/models"
)

// BidRepository is the bid book: one live bid per (listing, bidder), appended
// or updated only inside engine transactions.
type BidRepository interface {
	DB() *bun.DB
	GetLive(ctx context.Context, idb bun.IDB, listingID int64, bidderID string) (*models.Bid, error)
	ListLive(ctx context.Context, idb bun.IDB, listingID int64) ([]*models.Bid, error)
	ListByListing(ctx context.Context, listingID int64) ([]*models.Bid, error)
	ListByBidder(ctx context.Context, bidderID string) ([]*models.Bid, error)
}

type bidRepository struct {
	db *bun.DB
}

func NewBidRepository(db *bun.DB) BidRepository {
	return &bidRepository{db: db}
}

func (r *bidRepository) DB() *bun.DB {
	return r.db
}

// GetLive returns the bidder's active bid on the listing, or ErrNotFound.
func (r *bidRepository) GetLive(ctx context.Context, idb bun.IDB, listingID int64, bidderID string) (*models.Bid, error) {
	bid := new(models.Bid)
	err := idb.NewSelect().
		Model(bid).
		Where("listing_id = ?", listingID).
		Where("bidder_id = ?", bidderID).
		Where("status = ?", models.BidStatusActive).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("live bid: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get live bid: %w", err)
	}
	return bid, nil
}

// ListLive returns all active bids on a listing, highest amount first and
// earliest bid first among equal amounts. Finalization relies on this order
// for deterministic tie-breaking.
func (r *bidRepository) ListLive(ctx context.Context, idb bun.IDB, listingID int64) ([]*models.Bid, error) {
	var bids []*models.Bid
	err := idb.NewSelect().
		Model(&bids).
		Where("listing_id = ?", listingID).
		Where("status = ?", models.BidStatusActive).
		Order("amount DESC").
		Order("created_at ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to list live bids: %w", err)
	}
	return bids, nil
}

func (r *bidRepository) ListByListing(ctx context.Context, listingID int64) ([]*models.Bid, error) {
	var bids []*models.Bid
	err := r.db.NewSelect().
		Model(&bids).
		Where("listing_id = ?", listingID).
		Order("amount DESC").
		Order("created_at ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	return bids, nil
}

func (r *bidRepository) ListByBidder(ctx context.Context, bidderID string) ([]*models.Bid, error) {
	var bids []*models.Bid
	err := r.db.NewSelect().
		Model(&bids).
		Where("bidder_id = ?", bidderID).
		Order("created_at DESC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to list bidder bids: %w", err)
	}
	return bids, nil
}
