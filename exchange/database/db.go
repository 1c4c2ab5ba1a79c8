package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"time"

	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/capdex/exchange/exchange/database/models"
)

const (
	defaultConnTimeout   = 5 * time.Second
	defaultMaxRetries    = 3
	defaultRetryInterval = time.Second
)

type DBConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	Database     string `toml:"database"`
	PoolSize     int    `toml:"pool_size"`
	MaxIdleConns int    `toml:"max_idle_conns"`
	MaxLifetime  int    `toml:"max_lifetime"`
}

type DB struct {
	pool  *pgxpool.Pool
	bunDB *bun.DB
}

func New(ctx context.Context, cfg DBConfig) (*DB, error) {
	// Fail fast with a clear error when the server is unreachable instead of
	// letting the pool time out on first use.
	var conn net.Conn
	var err error

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	for i := 0; i < defaultMaxRetries; i++ {
		conn, err = net.DialTimeout("tcp", addr, defaultConnTimeout)
		if err == nil {
			break
		}
		time.Sleep(defaultRetryInterval)
	}
	if err != nil {
		return nil, fmt.Errorf("database server unreachable after %d attempts: %w", defaultMaxRetries, err)
	}
	conn.Close()

	poolConfig, err := pgxpool.ParseConfig(buildConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if cfg.PoolSize > 0 {
		poolConfig.MaxConns = int32(cfg.PoolSize)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = time.Duration(cfg.MaxLifetime) * time.Second
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{pool: pool, bunDB: newBunDB(pool)}, nil
}

func buildConnString(cfg DBConfig) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?connect_timeout=5",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
	)
}

func newBunDB(pool *pgxpool.Pool) *bun.DB {
	sslMode := os.Getenv("PG_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		pool.Config().ConnConfig.User,
		pool.Config().ConnConfig.Password,
		pool.Config().ConnConfig.Host,
		pool.Config().ConnConfig.Port,
		pool.Config().ConnConfig.Database,
		sslMode,
	)

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func (db *DB) GetPool() *pgxpool.Pool {
	return db.pool
}

func (db *DB) BunDB() *bun.DB {
	return db.bunDB
}

func (db *DB) Close() {
	if db.bunDB != nil {
		db.bunDB.Close()
	}
	if db.pool != nil {
		db.pool.Close()
	}
}

func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// InitializeSchema creates the exchange tables and indexes if they do not
// exist. Partial unique indexes back the one-live-bid-per-bidder and
// one-pending-offer-per-offerer rules so the database enforces them even if a
// racing transaction slips past the engine's checks.
func (db *DB) InitializeSchema(ctx context.Context) error {
	tables := []interface{}{
		(*models.User)(nil),
		(*models.Capture)(nil),
		(*models.Listing)(nil),
		(*models.ListingItem)(nil),
		(*models.Bid)(nil),
		(*models.TradeOffer)(nil),
		(*models.TradeOfferItem)(nil),
		(*models.Transaction)(nil),
	}

	for _, model := range tables {
		if _, err := db.bunDB.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}

	indexes := []struct {
		model   interface{}
		name    string
		columns []string
	}{
		{(*models.Capture)(nil), "idx_captures_owner_id", []string{"owner_id"}},
		{(*models.Listing)(nil), "idx_listings_seller_id", []string{"seller_id"}},
		{(*models.Listing)(nil), "idx_listings_status_expires_at", []string{"status", "expires_at"}},
		{(*models.ListingItem)(nil), "idx_listing_items_listing_id", []string{"listing_id"}},
		{(*models.ListingItem)(nil), "idx_listing_items_capture_id", []string{"capture_id"}},
		{(*models.Bid)(nil), "idx_bids_listing_id", []string{"listing_id"}},
		{(*models.Bid)(nil), "idx_bids_bidder_id", []string{"bidder_id"}},
		{(*models.TradeOffer)(nil), "idx_trade_offers_listing_id", []string{"listing_id"}},
		{(*models.TradeOffer)(nil), "idx_trade_offers_offerer_id", []string{"offerer_id"}},
		{(*models.TradeOfferItem)(nil), "idx_trade_offer_items_offer_id", []string{"trade_offer_id"}},
		{(*models.TradeOfferItem)(nil), "idx_trade_offer_items_capture_id", []string{"capture_id"}},
		{(*models.Transaction)(nil), "idx_transactions_buyer_id", []string{"buyer_id"}},
		{(*models.Transaction)(nil), "idx_transactions_seller_id", []string{"seller_id"}},
	}

	for _, idx := range indexes {
		q := db.bunDB.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			IfNotExists()
		for _, col := range idx.columns {
			q = q.Column(col)
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	partials := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_bids_live ON bids (listing_id, bidder_id) WHERE status = 'active'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_trade_offers_pending ON trade_offers (listing_id, offerer_id) WHERE status = 'pending'`,
	}
	for _, stmt := range partials {
		if _, err := db.bunDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create partial index: %w", err)
		}
	}

	slog.Info("Database schema initialized",
		slog.Int("tables", len(tables)),
		slog.Int("indexes", len(indexes)+len(partials)))

	return nil
}
