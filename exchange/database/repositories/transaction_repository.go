package repositories

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/capdex/exchange/exchange/database/models"
)

// TransactionRepository is the append-only transaction ledger. Rows are only
// ever inserted, inside the engine transaction that completed the exchange.
type TransactionRepository interface {
	DB() *bun.DB
	ListByUser(ctx context.Context, userID string, page, pageSize int) ([]*models.Transaction, int, error)
	ListByListing(ctx context.Context, listingID int64) ([]*models.Transaction, error)
}

type transactionRepository struct {
	db *bun.DB
}

func NewTransactionRepository(db *bun.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) DB() *bun.DB {
	return r.db
}

func (r *transactionRepository) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]*models.Transaction, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var txns []*models.Transaction
	count, err := r.db.NewSelect().
		Model(&txns).
		Where("buyer_id = ? OR seller_id = ?", userID, userID).
		Order("created_at DESC").
		Limit(pageSize).
		Offset((page - 1) * pageSize).
		ScanAndCount(ctx)

	if err != nil {
		return nil, 0, fmt.Errorf("failed to list user transactions: %w", err)
	}
	return txns, count, nil
}

func (r *transactionRepository) ListByListing(ctx context.Context, listingID int64) ([]*models.Transaction, error) {
	var txns []*models.Transaction
	err := r.db.NewSelect().
		Model(&txns).
		Where("listing_id = ?", listingID).
		Order("created_at DESC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to list listing transactions: %w", err)
	}
	return txns, nil
}
