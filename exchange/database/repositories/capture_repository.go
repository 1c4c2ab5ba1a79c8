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

// CaptureRepository is the capture registry: current owner per capture plus
// the derived disabled set. Ownership reassignment happens only inside engine
// transactions, so TransferOwnership takes the caller's bun.IDB.
type CaptureRepository interface {
	DB() *bun.DB
	Create(ctx context.Context, capture *models.Capture) error
	GetByID(ctx context.Context, id int64) (*models.Capture, error)
	GetByOwner(ctx context.Context, ownerID string) ([]*models.Capture, error)
	LockOwned(ctx context.Context, idb bun.IDB, ownerID string, captureIDs []int64) ([]*models.Capture, error)
	DisabledIDs(ctx context.Context, idb bun.IDB, captureIDs []int64, excludeOfferID int64) ([]int64, error)
	TransferOwnership(ctx context.Context, idb bun.IDB, captureIDs []int64, newOwnerID string) error
}

type captureRepository struct {
	db *bun.DB
}

func NewCaptureRepository(db *bun.DB) CaptureRepository {
	return &captureRepository{db: db}
}

func (r *captureRepository) DB() *bun.DB {
	return r.db
}

func (r *captureRepository) Create(ctx context.Context, capture *models.Capture) error {
	capture.CreatedAt = time.Now()
	capture.UpdatedAt = time.Now()
	_, err := r.db.NewInsert().Model(capture).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create capture: %w", err)
	}
	return nil
}

func (r *captureRepository) GetByID(ctx context.Context, id int64) (*models.Capture, error) {
	capture := new(models.Capture)
	err := r.db.NewSelect().
		Model(capture).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("capture %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get capture: %w", err)
	}
	return capture, nil
}

func (r *captureRepository) GetByOwner(ctx context.Context, ownerID string) ([]*models.Capture, error) {
	var captures []*models.Capture
	err := r.db.NewSelect().
		Model(&captures).
		Where("owner_id = ?", ownerID).
		Order("captured_at DESC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to get captures by owner: %w", err)
	}
	return captures, nil
}

// LockOwned locks the given captures and verifies every one of them is owned
// by ownerID. Returns ErrNotFound when a capture is missing or owned by
// someone else.
func (r *captureRepository) LockOwned(ctx context.Context, idb bun.IDB, ownerID string, captureIDs []int64) ([]*models.Capture, error) {
	var captures []*models.Capture
	err := idb.NewSelect().
		Model(&captures).
		Where("id IN (?)", bun.In(captureIDs)).
		Order("id ASC").
		For("UPDATE").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to lock captures: %w", err)
	}

	if len(captures) != len(captureIDs) {
		return nil, fmt.Errorf("capture: %w", ErrNotFound)
	}
	for _, c := range captures {
		if c.OwnerID != ownerID {
			return nil, fmt.Errorf("capture %d not owned by %s: %w", c.ID, ownerID, ErrNotFound)
		}
	}
	return captures, nil
}

// DisabledIDs returns the subset of captureIDs that are currently held: either
// attached to an active listing or offered in a pending trade offer. A
// non-zero excludeOfferID ignores holds of that offer, which makes replace-all
// offer updates possible.
func (r *captureRepository) DisabledIDs(ctx context.Context, idb bun.IDB, captureIDs []int64, excludeOfferID int64) ([]int64, error) {
	if len(captureIDs) == 0 {
		return nil, nil
	}

	var listed []int64
	err := idb.NewSelect().
		Model((*models.ListingItem)(nil)).
		ColumnExpr("li.capture_id").
		Join("JOIN listings AS l ON l.id = li.listing_id").
		Where("li.capture_id IN (?)", bun.In(captureIDs)).
		Where("l.status = ?", models.ListingStatusActive).
		Scan(ctx, &listed)
	if err != nil {
		return nil, fmt.Errorf("failed to check listed captures: %w", err)
	}

	q := idb.NewSelect().
		Model((*models.TradeOfferItem)(nil)).
		ColumnExpr("toi.capture_id").
		Join("JOIN trade_offers AS t ON t.id = toi.trade_offer_id").
		Where("toi.capture_id IN (?)", bun.In(captureIDs)).
		Where("t.status = ?", models.TradeOfferPending)
	if excludeOfferID != 0 {
		q = q.Where("t.id != ?", excludeOfferID)
	}

	var offered []int64
	if err := q.Scan(ctx, &offered); err != nil {
		return nil, fmt.Errorf("failed to check offered captures: %w", err)
	}

	seen := make(map[int64]struct{}, len(listed)+len(offered))
	var disabled []int64
	for _, id := range append(listed, offered...) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			disabled = append(disabled, id)
		}
	}
	return disabled, nil
}

func (r *captureRepository) TransferOwnership(ctx context.Context, idb bun.IDB, captureIDs []int64, newOwnerID string) error {
	if len(captureIDs) == 0 {
		return nil
	}

	result, err := idb.NewUpdate().
		Model((*models.Capture)(nil)).
		Set("owner_id = ?", newOwnerID).
		Set("updated_at = ?", time.Now()).
		Where("id IN (?)", bun.In(captureIDs)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to transfer captures: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows != int64(len(captureIDs)) {
		return fmt.Errorf("transferred %d of %d captures", rows, len(captureIDs))
	}
	return nil
}
