package models

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

// Transaction is an append-only record of a completed exchange: one row per
// buy-now purchase, won auction, or accepted trade (amount 0 for trades).
// TxnID is a time-ordered snowflake used as the public identifier.
type Transaction struct {
	bun.BaseModel `bun:"table:transactions,alias:tx"`

	ID        int64        `bun:"id,pk,autoincrement"`
	TxnID     snowflake.ID `bun:"txn_id,notnull,unique"`
	ListingID int64        `bun:"listing_id,notnull"`
	BuyerID   string       `bun:"buyer_id,notnull"`
	SellerID  string       `bun:"seller_id,notnull"`
	Amount    int64        `bun:"amount,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
