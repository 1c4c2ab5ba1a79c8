package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TradeOfferStatus string

const (
	TradeOfferPending   TradeOfferStatus = "pending"
	TradeOfferAccepted  TradeOfferStatus = "accepted"
	TradeOfferRejected  TradeOfferStatus = "rejected"
	TradeOfferCancelled TradeOfferStatus = "cancelled"
)

// TradeOffer is one user's proposal on a trade listing. An offerer has at most
// one pending offer per listing; re-offering replaces the offered captures.
type TradeOffer struct {
	bun.BaseModel `bun:"table:trade_offers,alias:to"`

	ID        int64            `bun:"id,pk,autoincrement"`
	ListingID int64            `bun:"listing_id,notnull"`
	OffererID string           `bun:"offerer_id,notnull"`
	Message   string           `bun:"message,type:text,default:''"`
	Status    TradeOfferStatus `bun:"status,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// TradeOfferItem is a capture the offerer is putting up. Items of a pending
// offer hold their captures: they cannot be listed or offered elsewhere.
type TradeOfferItem struct {
	bun.BaseModel `bun:"table:trade_offer_items,alias:toi"`

	ID           int64 `bun:"id,pk,autoincrement"`
	TradeOfferID int64 `bun:"trade_offer_id,notnull"`
	CaptureID    int64 `bun:"capture_id,notnull"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
