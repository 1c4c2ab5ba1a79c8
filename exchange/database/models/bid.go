package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BidStatus string

const (
	BidStatusActive    BidStatus = "active"
	BidStatusWinning   BidStatus = "winning"
	BidStatusOutbid    BidStatus = "outbid"
	BidStatusRejected  BidStatus = "rejected"
	BidStatusCancelled BidStatus = "cancelled"
)

// Bid is a sealed maximum valuation on an auction listing. A bidder has at most
// one live (active) bid per listing; re-bidding updates the amount in place.
// The amount stays private to the bidder until the listing resolves; standings
// are computed only at finalization.
type Bid struct {
	bun.BaseModel `bun:"table:bids,alias:b"`

	ID        int64     `bun:"id,pk,autoincrement"`
	ListingID int64     `bun:"listing_id,notnull"`
	BidderID  string    `bun:"bidder_id,notnull"`
	Amount    int64     `bun:"amount,notnull"`
	Status    BidStatus `bun:"status,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Terminal reports whether the bid can no longer change.
func (b *Bid) Terminal() bool {
	return b.Status != BidStatusActive
}
