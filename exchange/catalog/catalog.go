package catalog

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/capdex/exchange/exchange/database/models"
	"github.com/capdex/exchange/exchange/database/repositories"
)

const (
	listingCacheSize = 1024
	listingCacheTTL  = 5 * time.Second
)

// Catalog is the read side of the exchange: listing lookups, bid and offer
// views, balances and history. It never writes. Listing detail lookups go
// through a small TTL'd LRU because the browse screens hammer the same few
// codes.
type Catalog struct {
	listings repositories.ListingRepository
	bids     repositories.BidRepository
	offers   repositories.TradeOfferRepository
	captures repositories.CaptureRepository
	txns     repositories.TransactionRepository
	users    repositories.UserRepository

	listingCache *lru.Cache
}

type cachedListing struct {
	detail    *ListingDetail
	timestamp time.Time
}

func New(
	listings repositories.ListingRepository,
	bids repositories.BidRepository,
	offers repositories.TradeOfferRepository,
	captures repositories.CaptureRepository,
	txns repositories.TransactionRepository,
	users repositories.UserRepository,
) (*Catalog, error) {
	cache, err := lru.New(listingCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create listing cache: %w", err)
	}
	return &Catalog{
		listings:     listings,
		bids:         bids,
		offers:       offers,
		captures:     captures,
		txns:         txns,
		users:        users,
		listingCache: cache,
	}, nil
}

// ListingDetail is a listing with the captures attached to it.
type ListingDetail struct {
	Listing    *models.Listing `json:"listing"`
	CaptureIDs []int64         `json:"capture_ids"`
}

// GetListing returns a listing by public code. Terminal listings are served
// from cache indefinitely within the LRU window; active ones expire after a few
// seconds so price and status stay fresh enough for browsing.
func (c *Catalog) GetListing(ctx context.Context, code string) (*ListingDetail, error) {
	if cached, ok := c.listingCache.Get(code); ok {
		entry := cached.(cachedListing)
		fresh := time.Since(entry.timestamp) < listingCacheTTL ||
			entry.detail.Listing.Status != models.ListingStatusActive
		if fresh {
			return entry.detail, nil
		}
		c.listingCache.Remove(code)
	}

	listing, err := c.listings.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	items, err := c.listings.Items(ctx, listing.ID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.CaptureID)
	}

	detail := &ListingDetail{Listing: listing, CaptureIDs: ids}
	c.listingCache.Add(code, cachedListing{detail: detail, timestamp: time.Now()})
	return detail, nil
}

// FetchListings pages through the catalog with optional seller, type and
// status filters. Returns the page and the total match count.
func (c *Catalog) FetchListings(ctx context.Context, filters repositories.ListingFilters, page, pageSize int) ([]*models.Listing, int, error) {
	return c.listings.Fetch(ctx, filters, page, pageSize)
}

// BidView is a bid as a caller may see it. Amount is nil while the auction is
// live, except on the caller's own bid; sealed bids only open at resolution.
type BidView struct {
	BidderID  string    `json:"bidder_id"`
	Amount    *int64    `json:"amount,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Bids returns the bids on a listing from callerID's point of view.
func (c *Catalog) Bids(ctx context.Context, code, callerID string) ([]BidView, error) {
	listing, err := c.listings.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	bids, err := c.bids.ListByListing(ctx, listing.ID)
	if err != nil {
		return nil, err
	}

	sealed := listing.Status == models.ListingStatusActive
	views := make([]BidView, 0, len(bids))
	for _, b := range bids {
		view := BidView{
			BidderID:  b.BidderID,
			Status:    string(b.Status),
			CreatedAt: b.CreatedAt,
		}
		if !sealed || b.BidderID == callerID {
			amount := b.Amount
			view.Amount = &amount
		}
		views = append(views, view)
	}
	return views, nil
}

// HighestBid returns the top bid of a resolved auction. On active listings it
// reports ErrSealed because standings do not exist until finalization.
func (c *Catalog) HighestBid(ctx context.Context, code string) (*models.Bid, error) {
	listing, err := c.listings.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if listing.Status == models.ListingStatusActive {
		return nil, ErrSealed
	}

	bids, err := c.bids.ListByListing(ctx, listing.ID)
	if err != nil {
		return nil, err
	}
	if len(bids) == 0 {
		return nil, fmt.Errorf("bids: %w", repositories.ErrNotFound)
	}
	return bids[0], nil
}

// OfferDetail is a trade offer with its offered captures.
type OfferDetail struct {
	Offer      *models.TradeOffer `json:"offer"`
	CaptureIDs []int64            `json:"capture_ids"`
}

func (c *Catalog) OffersByListing(ctx context.Context, code string) ([]*OfferDetail, error) {
	listing, err := c.listings.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	offers, err := c.offers.ListByListing(ctx, listing.ID)
	if err != nil {
		return nil, err
	}
	return c.attachOfferItems(ctx, offers)
}

func (c *Catalog) OffersByOfferer(ctx context.Context, offererID string) ([]*OfferDetail, error) {
	offers, err := c.offers.ListByOfferer(ctx, offererID)
	if err != nil {
		return nil, err
	}
	return c.attachOfferItems(ctx, offers)
}

func (c *Catalog) attachOfferItems(ctx context.Context, offers []*models.TradeOffer) ([]*OfferDetail, error) {
	details := make([]*OfferDetail, 0, len(offers))
	for _, offer := range offers {
		items, err := c.offers.Items(ctx, offer.ID)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.CaptureID)
		}
		details = append(details, &OfferDetail{Offer: offer, CaptureIDs: ids})
	}
	return details, nil
}

// Balance reports a user's coin position: full balance, the part encumbered by
// live bids, and the spendable remainder.
type Balance struct {
	Balance   int64 `json:"balance"`
	Reserved  int64 `json:"reserved"`
	Spendable int64 `json:"spendable"`
}

func (c *Catalog) Balance(ctx context.Context, userID string) (*Balance, error) {
	user, err := c.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Balance{
		Balance:   user.Balance,
		Reserved:  user.Reserved,
		Spendable: user.Spendable(),
	}, nil
}

// Transactions pages through a user's completed exchanges, newest first.
func (c *Catalog) Transactions(ctx context.Context, userID string, page, pageSize int) ([]*models.Transaction, int, error) {
	return c.txns.ListByUser(ctx, userID, page, pageSize)
}

// BidsByBidder returns all of a user's own bids; amounts are theirs to see.
func (c *Catalog) BidsByBidder(ctx context.Context, bidderID string) ([]*models.Bid, error) {
	return c.bids.ListByBidder(ctx, bidderID)
}
