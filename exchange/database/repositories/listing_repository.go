package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/capdex/exchange/exchange/database/models"
)

// ListingFilters narrows catalog queries. Zero values mean "any".
type ListingFilters struct {
	SellerID string
	Type     models.ListingType
	Status   models.ListingStatus
}

type ListingRepository interface {
	DB() *bun.DB
	GetByCode(ctx context.Context, code string) (*models.Listing, error)
	GetByID(ctx context.Context, id int64) (*models.Listing, error)
	Fetch(ctx context.Context, filters ListingFilters, page, pageSize int) ([]*models.Listing, int, error)
	Items(ctx context.Context, listingID int64) ([]*models.ListingItem, error)
	CaptureIDs(ctx context.Context, idb bun.IDB, listingID int64) ([]int64, error)
	ExpiredIDs(ctx context.Context, now time.Time, limit int) ([]int64, error)
}

type listingRepository struct {
	db *bun.DB
}

func NewListingRepository(db *bun.DB) ListingRepository {
	return &listingRepository{db: db}
}

func (r *listingRepository) DB() *bun.DB {
	return r.db
}

func (r *listingRepository) GetByCode(ctx context.Context, code string) (*models.Listing, error) {
	listing := new(models.Listing)
	err := r.db.NewSelect().
		Model(listing).
		Where("code = ?", code).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("listing %s: %w", code, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return listing, nil
}

func (r *listingRepository) GetByID(ctx context.Context, id int64) (*models.Listing, error) {
	listing := new(models.Listing)
	err := r.db.NewSelect().
		Model(listing).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("listing %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return listing, nil
}

func (r *listingRepository) Fetch(ctx context.Context, filters ListingFilters, page, pageSize int) ([]*models.Listing, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var listings []*models.Listing
	q := r.db.NewSelect().Model(&listings)

	if filters.SellerID != "" {
		q = q.Where("seller_id = ?", filters.SellerID)
	}
	if filters.Type != "" {
		q = q.Where("listing_type = ?", filters.Type)
	}
	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}

	count, err := q.
		Order("created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch listings: %w", err)
	}

	return listings, count, nil
}

func (r *listingRepository) Items(ctx context.Context, listingID int64) ([]*models.ListingItem, error) {
	var items []*models.ListingItem
	err := r.db.NewSelect().
		Model(&items).
		Where("listing_id = ?", listingID).
		Order("id ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get listing items: %w", err)
	}
	return items, nil
}

func (r *listingRepository) CaptureIDs(ctx context.Context, idb bun.IDB, listingID int64) ([]int64, error) {
	var ids []int64
	err := idb.NewSelect().
		Model((*models.ListingItem)(nil)).
		ColumnExpr("li.capture_id").
		Where("li.listing_id = ?", listingID).
		Order("li.id ASC").
		Scan(ctx, &ids)

	if err != nil {
		return nil, fmt.Errorf("failed to get listing capture ids: %w", err)
	}
	return ids, nil
}

// ExpiredIDs returns ids of active listings whose expiry has passed. The rows
// are not locked here; each is re-checked under FOR UPDATE in its own
// finalization transaction, which keeps the sweep idempotent across replicas.
func (r *listingRepository) ExpiredIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.NewSelect().
		Model((*models.Listing)(nil)).
		ColumnExpr("l.id").
		Where("l.status = ?", models.ListingStatusActive).
		Where("l.expires_at <= ?", now).
		Order("l.expires_at ASC").
		Limit(limit).
		Scan(ctx, &ids)

	if err != nil {
		return nil, fmt.Errorf("failed to get expired listings: %w", err)
	}
	return ids, nil
}
