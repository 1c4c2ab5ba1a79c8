package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/capdex/exchange/exchange/database/models"
	"github.com/capdex/exchange/exchange/database/repositories"
	"github.com/capdex/exchange/exchange/events"
)

const defaultTxTimeout = 10 * time.Second

// Engine executes every marketplace write as one atomic transaction over the
// ledger, capture registry, listing catalog, bid book and trade log. It holds
// no cross-request state beyond the code generator, so replicas can run side
// by side; isolation comes from the transaction boundary, not process locks.
type Engine struct {
	db       *bun.DB
	listings repositories.ListingRepository
	bids     repositories.BidRepository
	offers   repositories.TradeOfferRepository
	captures repositories.CaptureRepository
	events   *events.Publisher
	codes    *CodeGenerator
}

func New(
	db *bun.DB,
	listings repositories.ListingRepository,
	bids repositories.BidRepository,
	offers repositories.TradeOfferRepository,
	captures repositories.CaptureRepository,
	publisher *events.Publisher,
) *Engine {
	if db == nil {
		panic("engine: db cannot be nil")
	}
	return &Engine{
		db:       db,
		listings: listings,
		bids:     bids,
		offers:   offers,
		captures: captures,
		events:   publisher,
		codes:    NewCodeGenerator(),
	}
}

// withTx runs fn inside a serializable transaction with a bounded lifetime.
// Serialization losers surface as ErrConflict so callers can retry; the
// re-validation inside fn then reports the now-current precondition state.
func (e *Engine) withTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, defaultTxTimeout)
	defer cancel()

	tx, err := e.db.BeginTx(timeoutCtx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(timeoutCtx, tx); err != nil {
		if isSerializationFailure(err) {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if isSerializationFailure(err) {
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// serialization_failure and deadlock_detected; both mean "retry".
func isSerializationFailure(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		code := pgErr.Field('C')
		return code == "40001" || code == "40P01"
	}
	return false
}

// lockListingByCode loads a listing under FOR UPDATE, serializing every
// operation on the same listing. It is always the first lock an engine
// transaction takes; user rows come after, in ascending id order.
func (e *Engine) lockListingByCode(ctx context.Context, tx bun.Tx, code string) (*models.Listing, error) {
	listing := new(models.Listing)
	err := tx.NewSelect().
		Model(listing).
		Where("code = ?", code).
		For("UPDATE").
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("failed to lock listing: %w", err)
	}
	return listing, nil
}

func (e *Engine) lockListingByID(ctx context.Context, tx bun.Tx, id int64) (*models.Listing, error) {
	listing := new(models.Listing)
	err := tx.NewSelect().
		Model(listing).
		Where("id = ?", id).
		For("UPDATE").
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, fmt.Errorf("failed to lock listing: %w", err)
	}
	return listing, nil
}

// lockUsers locks the given user rows in ascending id order (deadlock
// avoidance) and returns them keyed by id.
func (e *Engine) lockUsers(ctx context.Context, tx bun.Tx, userIDs ...string) (map[string]*models.User, error) {
	unique := make(map[string]struct{}, len(userIDs))
	ids := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := unique[id]; !ok {
			unique[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	var users []*models.User
	err := tx.NewSelect().
		Model(&users).
		Where("id IN (?)", bun.In(ids)).
		Order("id ASC").
		For("UPDATE").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to lock users: %w", err)
	}
	if len(users) != len(ids) {
		return nil, fmt.Errorf("failed to lock users: %w", repositories.ErrNotFound)
	}

	byID := make(map[string]*models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID, nil
}

// creditBalance adds coins to a user's balance. The user row must already be
// locked by the caller.
func (e *Engine) creditBalance(ctx context.Context, tx bun.Tx, userID string, amount int64) error {
	_, err := tx.NewUpdate().
		Model((*models.User)(nil)).
		Set("balance = balance + ?", amount).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	return nil
}

// debitBalance removes coins, refusing to drive the balance negative even if
// the caller's own check raced.
func (e *Engine) debitBalance(ctx context.Context, tx bun.Tx, userID string, amount int64) error {
	result, err := tx.NewUpdate().
		Model((*models.User)(nil)).
		Set("balance = balance - ?", amount).
		Set("updated_at = ?", time.Now()).
		Where("id = ? AND balance >= ?", userID, amount).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to debit balance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return ErrInsufficientFunds
	}
	return nil
}

// adjustReservation moves the user's bid encumbrance by delta. Negative
// deltas release; the floor guard keeps a double release from corrupting the
// ledger.
func (e *Engine) adjustReservation(ctx context.Context, tx bun.Tx, userID string, delta int64) error {
	result, err := tx.NewUpdate().
		Model((*models.User)(nil)).
		Set("reserved = reserved + ?", delta).
		Set("updated_at = ?", time.Now()).
		Where("id = ? AND reserved + ? >= 0", userID, delta).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to adjust reservation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("reservation underflow for user %s", userID)
	}
	return nil
}

// appendTransaction records a completed exchange in the append-only ledger.
func (e *Engine) appendTransaction(ctx context.Context, tx bun.Tx, listingID int64, buyerID, sellerID string, amount int64) (*models.Transaction, error) {
	txn := &models.Transaction{
		TxnID:     snowflake.New(time.Now()),
		ListingID: listingID,
		BuyerID:   buyerID,
		SellerID:  sellerID,
		Amount:    amount,
		CreatedAt: time.Now(),
	}

	if _, err := tx.NewInsert().Model(txn).Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to append transaction: %w", err)
	}
	return txn, nil
}

// publish sends a post-commit event; failures are logged by the publisher and
// never affect the committed exchange.
func (e *Engine) publish(ctx context.Context, event events.ExchangeEvent) {
	if e.events == nil {
		return
	}
	_ = e.events.Publish(ctx, event)
}
