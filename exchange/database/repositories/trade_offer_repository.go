package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/capdex/exchange/exchange/database/models"
)

// TradeOfferRepository is the trade negotiation log.
type TradeOfferRepository interface {
	DB() *bun.DB
	GetByID(ctx context.Context, id int64) (*models.TradeOffer, error)
	GetPendingByOfferer(ctx context.Context, idb bun.IDB, listingID int64, offererID string) (*models.TradeOffer, error)
	ListByListing(ctx context.Context, listingID int64) ([]*models.TradeOffer, error)
	ListByOfferer(ctx context.Context, offererID string) ([]*models.TradeOffer, error)
	Items(ctx context.Context, offerID int64) ([]*models.TradeOfferItem, error)
	CaptureIDs(ctx context.Context, idb bun.IDB, offerID int64) ([]int64, error)
}

type tradeOfferRepository struct {
	db *bun.DB
}

func NewTradeOfferRepository(db *bun.DB) TradeOfferRepository {
	return &tradeOfferRepository{db: db}
}

func (r *tradeOfferRepository) DB() *bun.DB {
	return r.db
}

func (r *tradeOfferRepository) GetByID(ctx context.Context, id int64) (*models.TradeOffer, error) {
	offer := new(models.TradeOffer)
	err := r.db.NewSelect().
		Model(offer).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("trade offer %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get trade offer: %w", err)
	}
	return offer, nil
}

func (r *tradeOfferRepository) GetPendingByOfferer(ctx context.Context, idb bun.IDB, listingID int64, offererID string) (*models.TradeOffer, error) {
	offer := new(models.TradeOffer)
	err := idb.NewSelect().
		Model(offer).
		Where("listing_id = ?", listingID).
		Where("offerer_id = ?", offererID).
		Where("status = ?", models.TradeOfferPending).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pending offer: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get pending offer: %w", err)
	}
	return offer, nil
}

func (r *tradeOfferRepository) ListByListing(ctx context.Context, listingID int64) ([]*models.TradeOffer, error) {
	var offers []*models.TradeOffer
	err := r.db.NewSelect().
		Model(&offers).
		Where("listing_id = ?", listingID).
		Order("created_at DESC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to list trade offers: %w", err)
	}
	return offers, nil
}

func (r *tradeOfferRepository) ListByOfferer(ctx context.Context, offererID string) ([]*models.TradeOffer, error) {
	var offers []*models.TradeOffer
	err := r.db.NewSelect().
		Model(&offers).
		Where("offerer_id = ?", offererID).
		Order("created_at DESC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to list offerer trade offers: %w", err)
	}
	return offers, nil
}

func (r *tradeOfferRepository) Items(ctx context.Context, offerID int64) ([]*models.TradeOfferItem, error) {
	var items []*models.TradeOfferItem
	err := r.db.NewSelect().
		Model(&items).
		Where("trade_offer_id = ?", offerID).
		Order("id ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get trade offer items: %w", err)
	}
	return items, nil
}

func (r *tradeOfferRepository) CaptureIDs(ctx context.Context, idb bun.IDB, offerID int64) ([]int64, error) {
	var ids []int64
	err := idb.NewSelect().
		Model((*models.TradeOfferItem)(nil)).
		ColumnExpr("toi.capture_id").
		Where("toi.trade_offer_id = ?", offerID).
		Order("toi.id ASC").
		Scan(ctx, &ids)

	if err != nil {
		return nil, fmt.Errorf("failed to get trade offer capture ids: %w", err)
	}
	return ids, nil
}
