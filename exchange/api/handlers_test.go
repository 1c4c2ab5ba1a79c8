package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capdex/exchange/exchange/catalog"
	"github.com/capdex/exchange/exchange/database/models"
	"github.com/capdex/exchange/exchange/database/repositories"
	"github.com/capdex/exchange/exchange/engine"
)

// fakeExchange records calls and returns canned results or a configured error.
type fakeExchange struct {
	err error

	placedBidCode   string
	placedBidActor  string
	placedBidAmount int64
	boughtCode      string
	acceptedOffer   int64
}

func (f *fakeExchange) CreateListing(ctx context.Context, sellerID string, input engine.CreateListingInput) (*models.Listing, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Listing{Code: "NEWCODE2", SellerID: sellerID, Type: input.Type, Status: models.ListingStatusActive}, nil
}

func (f *fakeExchange) CancelListing(ctx context.Context, code, sellerID string) error {
	return f.err
}

func (f *fakeExchange) PlaceBid(ctx context.Context, code, bidderID string, amount int64) (*models.Bid, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.placedBidCode = code
	f.placedBidActor = bidderID
	f.placedBidAmount = amount
	return &models.Bid{ListingID: 1, BidderID: bidderID, Amount: amount, Status: models.BidStatusActive}, nil
}

func (f *fakeExchange) RetractBid(ctx context.Context, code, bidderID string) error {
	return f.err
}

func (f *fakeExchange) BuyNow(ctx context.Context, code, buyerID string) (*models.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.boughtCode = code
	return &models.Transaction{ListingID: 1, BuyerID: buyerID, Amount: 100}, nil
}

func (f *fakeExchange) PlaceTradeOffer(ctx context.Context, code, offererID string, captureIDs []int64, message string) (*models.TradeOffer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.TradeOffer{ID: 5, OffererID: offererID, Message: message, Status: models.TradeOfferPending}, nil
}

func (f *fakeExchange) UpdateTradeOffer(ctx context.Context, offerID int64, offererID string, captureIDs []int64, message string) (*models.TradeOffer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.TradeOffer{ID: offerID, OffererID: offererID, Message: message, Status: models.TradeOfferPending}, nil
}

func (f *fakeExchange) RetractTradeOffer(ctx context.Context, offerID int64, offererID string) error {
	return f.err
}

func (f *fakeExchange) AcceptTradeOffer(ctx context.Context, offerID int64, sellerID string) (*models.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.acceptedOffer = offerID
	return &models.Transaction{ListingID: 1, SellerID: sellerID, Amount: 0}, nil
}

func (f *fakeExchange) RejectTradeOffer(ctx context.Context, offerID int64, sellerID string) error {
	return f.err
}

func (f *fakeExchange) FinalizeExpiredListings(ctx context.Context, batchSize, workers int) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

type fakeReader struct {
	err     error
	listing *catalog.ListingDetail
}

func (f *fakeReader) GetListing(ctx context.Context, code string) (*catalog.ListingDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.listing, nil
}

func (f *fakeReader) FetchListings(ctx context.Context, filters repositories.ListingFilters, page, pageSize int) ([]*models.Listing, int, error) {
	return []*models.Listing{{Code: "AAAA2222"}}, 1, nil
}

func (f *fakeReader) Bids(ctx context.Context, code, callerID string) ([]catalog.BidView, error) {
	return nil, f.err
}

func (f *fakeReader) HighestBid(ctx context.Context, code string) (*models.Bid, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Bid{Amount: 100}, nil
}

func (f *fakeReader) OffersByListing(ctx context.Context, code string) ([]*catalog.OfferDetail, error) {
	return nil, f.err
}

func (f *fakeReader) OffersByOfferer(ctx context.Context, offererID string) ([]*catalog.OfferDetail, error) {
	return nil, f.err
}

func (f *fakeReader) Balance(ctx context.Context, userID string) (*catalog.Balance, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &catalog.Balance{Balance: 500, Reserved: 100, Spendable: 400}, nil
}

func (f *fakeReader) Transactions(ctx context.Context, userID string, page, pageSize int) ([]*models.Transaction, int, error) {
	return nil, 0, f.err
}

func (f *fakeReader) BidsByBidder(ctx context.Context, bidderID string) ([]*models.Bid, error) {
	return nil, f.err
}

func (f *fakeReader) SearchCaptures(ctx context.Context, ownerID, query string) ([]*models.Capture, error) {
	return nil, f.err
}

func newTestApp(ex Exchange, rd Reader) *fiber.App {
	if ex == nil {
		ex = &fakeExchange{}
	}
	if rd == nil {
		rd = &fakeReader{}
	}
	return New(ex, rd, "")
}

func doRequest(t *testing.T, app *fiber.App, method, target, actor string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set(actorHeader, actor)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestPlaceBidRoutesToEngine(t *testing.T) {
	ex := &fakeExchange{}
	app := newTestApp(ex, nil)

	resp := doRequest(t, app, http.MethodPost, "/api/v1/listings/AAAA2222/bids", "alice", placeBidRequest{Amount: 150})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Equal(t, "AAAA2222", ex.placedBidCode)
	assert.Equal(t, "alice", ex.placedBidActor)
	assert.Equal(t, int64(150), ex.placedBidAmount)
}

func TestWritesRequireActorHeader(t *testing.T) {
	app := newTestApp(nil, nil)

	targets := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/listings/"},
		{http.MethodDelete, "/api/v1/listings/AAAA2222"},
		{http.MethodPost, "/api/v1/listings/AAAA2222/bids"},
		{http.MethodPost, "/api/v1/listings/AAAA2222/purchase"},
		{http.MethodPost, "/api/v1/offers/5/accept"},
		{http.MethodGet, "/api/v1/me/balance"},
	}

	for _, target := range targets {
		resp := doRequest(t, app, target.method, target.path, "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "%s %s", target.method, target.path)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"insufficient funds", engine.ErrInsufficientFunds, http.StatusConflict},
		{"listing not active", engine.ErrListingNotActive, http.StatusConflict},
		{"not found", engine.ErrListingNotFound, http.StatusNotFound},
		{"validation", engine.ErrValidation, http.StatusBadRequest},
		{"self purchase", engine.ErrSelfPurchase, http.StatusBadRequest},
		{"not seller", engine.ErrNotSeller, http.StatusForbidden},
		{"conflict", engine.ErrConflict, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&fakeExchange{err: tt.err}, nil)

			resp := doRequest(t, app, http.MethodPost, "/api/v1/listings/AAAA2222/purchase", "alice", nil)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body errorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.False(t, body.Success)
			assert.NotEmpty(t, body.Code)
		})
	}
}

func TestGetListing(t *testing.T) {
	rd := &fakeReader{listing: &catalog.ListingDetail{
		Listing:    &models.Listing{Code: "AAAA2222", Status: models.ListingStatusActive},
		CaptureIDs: []int64{1, 2},
	}}
	app := newTestApp(nil, rd)

	resp := doRequest(t, app, http.MethodGet, "/api/v1/listings/AAAA2222", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Success bool                   `json:"success"`
		Data    catalog.ListingDetail  `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, "AAAA2222", body.Data.Listing.Code)
	assert.Equal(t, []int64{1, 2}, body.Data.CaptureIDs)
}

func TestGetListingNotFound(t *testing.T) {
	rd := &fakeReader{err: repositories.ErrNotFound}
	app := newTestApp(nil, rd)

	resp := doRequest(t, app, http.MethodGet, "/api/v1/listings/ZZZZ7777", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAcceptOfferParsesID(t *testing.T) {
	ex := &fakeExchange{}
	app := newTestApp(ex, nil)

	resp := doRequest(t, app, http.MethodPost, "/api/v1/offers/42/accept", "seller", nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, int64(42), ex.acceptedOffer)

	resp = doRequest(t, app, http.MethodPost, "/api/v1/offers/notanumber/accept", "seller", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBalanceEndpoint(t *testing.T) {
	app := newTestApp(nil, nil)

	resp := doRequest(t, app, http.MethodGet, "/api/v1/me/balance", "alice", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data catalog.Balance `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(400), body.Data.Spendable)
}

func TestFinalizeEndpoint(t *testing.T) {
	app := newTestApp(nil, nil)

	resp := doRequest(t, app, http.MethodPost, "/api/v1/internal/finalize", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Data map[string]int `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 3, body.Data["finalized"])
}
