package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/capdex/exchange/exchange/database/models"
	"github.com/capdex/exchange/exchange/database/repositories"
)

type fakeListingRepo struct {
	listings map[string]*models.Listing
	items    map[int64][]*models.ListingItem
	getCalls int
}

func (f *fakeListingRepo) DB() *bun.DB { return nil }

func (f *fakeListingRepo) GetByCode(ctx context.Context, code string) (*models.Listing, error) {
	f.getCalls++
	l, ok := f.listings[code]
	if !ok {
		return nil, fmt.Errorf("listing %s: %w", code, repositories.ErrNotFound)
	}
	return l, nil
}

func (f *fakeListingRepo) GetByID(ctx context.Context, id int64) (*models.Listing, error) {
	for _, l := range f.listings {
		if l.ID == id {
			return l, nil
		}
	}
	return nil, fmt.Errorf("listing %d: %w", id, repositories.ErrNotFound)
}

func (f *fakeListingRepo) Fetch(ctx context.Context, filters repositories.ListingFilters, page, pageSize int) ([]*models.Listing, int, error) {
	var out []*models.Listing
	for _, l := range f.listings {
		if filters.Status != "" && l.Status != filters.Status {
			continue
		}
		out = append(out, l)
	}
	return out, len(out), nil
}

func (f *fakeListingRepo) Items(ctx context.Context, listingID int64) ([]*models.ListingItem, error) {
	return f.items[listingID], nil
}

func (f *fakeListingRepo) CaptureIDs(ctx context.Context, idb bun.IDB, listingID int64) ([]int64, error) {
	var ids []int64
	for _, item := range f.items[listingID] {
		ids = append(ids, item.CaptureID)
	}
	return ids, nil
}

func (f *fakeListingRepo) ExpiredIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	return nil, nil
}

type fakeBidRepo struct {
	bids map[int64][]*models.Bid
}

func (f *fakeBidRepo) DB() *bun.DB { return nil }

func (f *fakeBidRepo) GetLive(ctx context.Context, idb bun.IDB, listingID int64, bidderID string) (*models.Bid, error) {
	return nil, fmt.Errorf("live bid: %w", repositories.ErrNotFound)
}

func (f *fakeBidRepo) ListLive(ctx context.Context, idb bun.IDB, listingID int64) ([]*models.Bid, error) {
	return f.bids[listingID], nil
}

func (f *fakeBidRepo) ListByListing(ctx context.Context, listingID int64) ([]*models.Bid, error) {
	return f.bids[listingID], nil
}

func (f *fakeBidRepo) ListByBidder(ctx context.Context, bidderID string) ([]*models.Bid, error) {
	var out []*models.Bid
	for _, bids := range f.bids {
		for _, b := range bids {
			if b.BidderID == bidderID {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

type fakeOfferRepo struct{}

func (f *fakeOfferRepo) DB() *bun.DB { return nil }
func (f *fakeOfferRepo) GetByID(ctx context.Context, id int64) (*models.TradeOffer, error) {
	return nil, fmt.Errorf("trade offer %d: %w", id, repositories.ErrNotFound)
}
func (f *fakeOfferRepo) GetPendingByOfferer(ctx context.Context, idb bun.IDB, listingID int64, offererID string) (*models.TradeOffer, error) {
	return nil, fmt.Errorf("pending offer: %w", repositories.ErrNotFound)
}
func (f *fakeOfferRepo) ListByListing(ctx context.Context, listingID int64) ([]*models.TradeOffer, error) {
	return nil, nil
}
func (f *fakeOfferRepo) ListByOfferer(ctx context.Context, offererID string) ([]*models.TradeOffer, error) {
	return nil, nil
}
func (f *fakeOfferRepo) Items(ctx context.Context, offerID int64) ([]*models.TradeOfferItem, error) {
	return nil, nil
}
func (f *fakeOfferRepo) CaptureIDs(ctx context.Context, idb bun.IDB, offerID int64) ([]int64, error) {
	return nil, nil
}

type fakeCaptureRepo struct {
	captures []*models.Capture
}

func (f *fakeCaptureRepo) DB() *bun.DB                                             { return nil }
func (f *fakeCaptureRepo) Create(ctx context.Context, capture *models.Capture) error { return nil }
func (f *fakeCaptureRepo) GetByID(ctx context.Context, id int64) (*models.Capture, error) {
	return nil, fmt.Errorf("capture %d: %w", id, repositories.ErrNotFound)
}
func (f *fakeCaptureRepo) GetByOwner(ctx context.Context, ownerID string) ([]*models.Capture, error) {
	var out []*models.Capture
	for _, c := range f.captures {
		if c.OwnerID == ownerID {
			out = append(out, c)
		}
	}
	return out, nil
}
func (f *fakeCaptureRepo) LockOwned(ctx context.Context, idb bun.IDB, ownerID string, captureIDs []int64) ([]*models.Capture, error) {
	return nil, nil
}
func (f *fakeCaptureRepo) DisabledIDs(ctx context.Context, idb bun.IDB, captureIDs []int64, excludeOfferID int64) ([]int64, error) {
	return nil, nil
}
func (f *fakeCaptureRepo) TransferOwnership(ctx context.Context, idb bun.IDB, captureIDs []int64, newOwnerID string) error {
	return nil
}

type fakeTxnRepo struct{}

func (f *fakeTxnRepo) DB() *bun.DB { return nil }
func (f *fakeTxnRepo) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]*models.Transaction, int, error) {
	return nil, 0, nil
}
func (f *fakeTxnRepo) ListByListing(ctx context.Context, listingID int64) ([]*models.Transaction, error) {
	return nil, nil
}

type fakeUserRepo struct {
	users map[string]*models.User
}

func (f *fakeUserRepo) DB() *bun.DB                                        { return nil }
func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) error { return nil }
func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}
	return u, nil
}

func newTestCatalog(t *testing.T, listings *fakeListingRepo, bids *fakeBidRepo, captures *fakeCaptureRepo, users *fakeUserRepo) *Catalog {
	t.Helper()
	if listings == nil {
		listings = &fakeListingRepo{listings: map[string]*models.Listing{}}
	}
	if bids == nil {
		bids = &fakeBidRepo{bids: map[int64][]*models.Bid{}}
	}
	if captures == nil {
		captures = &fakeCaptureRepo{}
	}
	if users == nil {
		users = &fakeUserRepo{users: map[string]*models.User{}}
	}

	c, err := New(listings, bids, &fakeOfferRepo{}, captures, &fakeTxnRepo{}, users)
	require.NoError(t, err)
	return c
}

func TestBidsRedactedWhileActive(t *testing.T) {
	listings := &fakeListingRepo{listings: map[string]*models.Listing{
		"AAAA2222": {ID: 1, Code: "AAAA2222", Status: models.ListingStatusActive, Type: models.ListingTypeAuction},
	}}
	bids := &fakeBidRepo{bids: map[int64][]*models.Bid{
		1: {
			{ID: 1, ListingID: 1, BidderID: "alice", Amount: 100, Status: models.BidStatusActive},
			{ID: 2, ListingID: 1, BidderID: "bob", Amount: 80, Status: models.BidStatusActive},
		},
	}}
	c := newTestCatalog(t, listings, bids, nil, nil)

	views, err := c.Bids(context.Background(), "AAAA2222", "alice")
	require.NoError(t, err)
	require.Len(t, views, 2)

	require.NotNil(t, views[0].Amount)
	assert.Equal(t, int64(100), *views[0].Amount)
	assert.Nil(t, views[1].Amount, "other bidders' amounts stay sealed")
}

func TestBidsRevealedAfterResolution(t *testing.T) {
	listings := &fakeListingRepo{listings: map[string]*models.Listing{
		"AAAA2222": {ID: 1, Code: "AAAA2222", Status: models.ListingStatusCompleted, Type: models.ListingTypeAuction},
	}}
	bids := &fakeBidRepo{bids: map[int64][]*models.Bid{
		1: {
			{ID: 1, ListingID: 1, BidderID: "alice", Amount: 100, Status: models.BidStatusWinning},
			{ID: 2, ListingID: 1, BidderID: "bob", Amount: 80, Status: models.BidStatusOutbid},
		},
	}}
	c := newTestCatalog(t, listings, bids, nil, nil)

	views, err := c.Bids(context.Background(), "AAAA2222", "nobody")
	require.NoError(t, err)
	require.Len(t, views, 2)
	for _, v := range views {
		assert.NotNil(t, v.Amount)
	}
}

func TestHighestBidSealedWhileActive(t *testing.T) {
	listings := &fakeListingRepo{listings: map[string]*models.Listing{
		"AAAA2222": {ID: 1, Code: "AAAA2222", Status: models.ListingStatusActive, Type: models.ListingTypeAuction},
	}}
	c := newTestCatalog(t, listings, nil, nil, nil)

	_, err := c.HighestBid(context.Background(), "AAAA2222")
	assert.ErrorIs(t, err, ErrSealed)
}

func TestGetListingUsesCache(t *testing.T) {
	listings := &fakeListingRepo{
		listings: map[string]*models.Listing{
			"AAAA2222": {ID: 1, Code: "AAAA2222", Status: models.ListingStatusActive},
		},
		items: map[int64][]*models.ListingItem{
			1: {{ID: 1, ListingID: 1, CaptureID: 7}},
		},
	}
	c := newTestCatalog(t, listings, nil, nil, nil)

	first, err := c.GetListing(context.Background(), "AAAA2222")
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, first.CaptureIDs)

	_, err = c.GetListing(context.Background(), "AAAA2222")
	require.NoError(t, err)
	assert.Equal(t, 1, listings.getCalls, "second lookup should hit the cache")
}

func TestBalance(t *testing.T) {
	users := &fakeUserRepo{users: map[string]*models.User{
		"alice": {ID: "alice", Balance: 500, Reserved: 120},
	}}
	c := newTestCatalog(t, nil, nil, nil, users)

	b, err := c.Balance(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(500), b.Balance)
	assert.Equal(t, int64(120), b.Reserved)
	assert.Equal(t, int64(380), b.Spendable)
}

func TestSearchCaptures(t *testing.T) {
	captures := &fakeCaptureRepo{captures: []*models.Capture{
		{ID: 1, OwnerID: "alice", Label: "red panda"},
		{ID: 2, OwnerID: "alice", Label: "blue jay"},
		{ID: 3, OwnerID: "alice", Label: "giant panda"},
		{ID: 4, OwnerID: "bob", Label: "panda"},
	}}
	c := newTestCatalog(t, nil, nil, captures, nil)

	results, err := c.SearchCaptures(context.Background(), "alice", "panda")
	require.NoError(t, err)
	require.Len(t, results, 2, "only alice's captures match")
	for _, r := range results {
		assert.Contains(t, r.Label, "panda")
	}

	all, err := c.SearchCaptures(context.Background(), "alice", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
