package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ListingType string

const (
	ListingTypeAuction ListingType = "auction"
	ListingTypeBuyNow  ListingType = "buy-now"
	ListingTypeTrade   ListingType = "trade"
)

type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "active"
	ListingStatusCompleted ListingStatus = "completed"
	ListingStatusCancelled ListingStatus = "cancelled"
	ListingStatusExpired   ListingStatus = "expired"
)

type AuctionType string

const AuctionTypeSecondPrice AuctionType = "second-price"

// Listing is a seller's offer of one or more captures. The listing_type
// discriminant decides which price fields apply: Price for buy-now,
// ReservePrice and AuctionType for auctions, neither for trades. Listings are
// created directly in active status; there is no draft state.
type Listing struct {
	bun.BaseModel `bun:"table:listings,alias:l"`

	ID       int64         `bun:"id,pk,autoincrement"`
	Code     string        `bun:"code,notnull,unique"`
	SellerID string        `bun:"seller_id,notnull"`
	Type     ListingType   `bun:"listing_type,notnull"`
	Status   ListingStatus `bun:"status,notnull"`

	Price        int64       `bun:"price,notnull,default:0"`
	ReservePrice int64       `bun:"reserve_price,notnull,default:0"`
	AuctionType  AuctionType `bun:"auction_type"`

	ExpiresAt   time.Time `bun:"expires_at,notnull"`
	CompletedAt time.Time `bun:"completed_at,nullzero"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// ListingItem attaches a capture to a listing. A capture referenced by an
// active listing is reserved and cannot appear in a second active listing or a
// pending trade offer.
type ListingItem struct {
	bun.BaseModel `bun:"table:listing_items,alias:li"`

	ID        int64 `bun:"id,pk,autoincrement"`
	ListingID int64 `bun:"listing_id,notnull"`
	CaptureID int64 `bun:"capture_id,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
