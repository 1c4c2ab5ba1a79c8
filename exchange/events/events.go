package events

import "time"

// Event types published after an exchange commits.
const (
	TypeListingCreated   = "listing.created"
	TypeListingCancelled = "listing.cancelled"
	TypeListingExpired   = "listing.expired"
	TypePurchase         = "exchange.purchase"
	TypeAuctionWon       = "exchange.auction_won"
	TypeTradeAccepted    = "exchange.trade_accepted"
)

// ExchangeEvent is the message body pushed to the events queue. Downstream
// consumers (notifications, analytics) read these; nothing in the exchange
// itself depends on them.
type ExchangeEvent struct {
	Type          string    `json:"type"`
	ListingCode   string    `json:"listing_code"`
	ListingType   string    `json:"listing_type"`
	BuyerID       string    `json:"buyer_id,omitempty"`
	SellerID      string    `json:"seller_id"`
	Amount        int64     `json:"amount,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
