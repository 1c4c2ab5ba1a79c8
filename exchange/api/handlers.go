package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/capdex/exchange/exchange/database/models"
	"github.com/capdex/exchange/exchange/database/repositories"
	"github.com/capdex/exchange/exchange/engine"
)

func pageParams(c *fiber.Ctx) (int, int) {
	page := c.QueryInt("page", 1)
	pageSize := c.QueryInt("page_size", 20)
	return page, pageSize
}

func offerIDParam(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid offer id")
	}
	return id, nil
}

type createListingRequest struct {
	Type            string  `json:"type"`
	CaptureIDs      []int64 `json:"capture_ids"`
	Price           int64   `json:"price"`
	ReservePrice    int64   `json:"reserve_price"`
	DurationMinutes int64   `json:"duration_minutes"`
}

func (s *Server) handleCreateListing(c *fiber.Ctx) error {
	var req createListingRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
	}

	listing, err := s.exchange.CreateListing(c.Context(), actorID(c), engine.CreateListingInput{
		Type:         models.ListingType(req.Type),
		CaptureIDs:   req.CaptureIDs,
		Price:        req.Price,
		ReservePrice: req.ReservePrice,
		Duration:     time.Duration(req.DurationMinutes) * time.Minute,
	})
	if err != nil {
		return err
	}
	return sendCreated(c, listing)
}

func (s *Server) handleCancelListing(c *fiber.Ctx) error {
	if err := s.exchange.CancelListing(c.Context(), c.Params("code"), actorID(c)); err != nil {
		return err
	}
	return sendMessage(c, "listing cancelled")
}

func (s *Server) handleGetListing(c *fiber.Ctx) error {
	detail, err := s.reader.GetListing(c.Context(), c.Params("code"))
	if err != nil {
		return err
	}
	return sendSuccess(c, detail)
}

func (s *Server) handleFetchListings(c *fiber.Ctx) error {
	filters := repositories.ListingFilters{
		SellerID: c.Query("seller"),
		Type:     models.ListingType(c.Query("type")),
		Status:   models.ListingStatus(c.Query("status")),
	}
	page, pageSize := pageParams(c)

	listings, total, err := s.reader.FetchListings(c.Context(), filters, page, pageSize)
	if err != nil {
		return err
	}
	return sendPaginated(c, listings, page, pageSize, total)
}

type placeBidRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) handlePlaceBid(c *fiber.Ctx) error {
	var req placeBidRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
	}

	bid, err := s.exchange.PlaceBid(c.Context(), c.Params("code"), actorID(c), req.Amount)
	if err != nil {
		return err
	}
	return sendCreated(c, bid)
}

func (s *Server) handleRetractBid(c *fiber.Ctx) error {
	if err := s.exchange.RetractBid(c.Context(), c.Params("code"), actorID(c)); err != nil {
		return err
	}
	return sendMessage(c, "bid retracted")
}

func (s *Server) handleListBids(c *fiber.Ctx) error {
	bids, err := s.reader.Bids(c.Context(), c.Params("code"), actorID(c))
	if err != nil {
		return err
	}
	return sendSuccess(c, bids)
}

func (s *Server) handleHighestBid(c *fiber.Ctx) error {
	bid, err := s.reader.HighestBid(c.Context(), c.Params("code"))
	if err != nil {
		return err
	}
	return sendSuccess(c, bid)
}

func (s *Server) handleBuyNow(c *fiber.Ctx) error {
	txn, err := s.exchange.BuyNow(c.Context(), c.Params("code"), actorID(c))
	if err != nil {
		return err
	}
	return sendCreated(c, txn)
}

type tradeOfferRequest struct {
	CaptureIDs []int64 `json:"capture_ids"`
	Message    string  `json:"message"`
}

func (s *Server) handlePlaceTradeOffer(c *fiber.Ctx) error {
	var req tradeOfferRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
	}

	offer, err := s.exchange.PlaceTradeOffer(c.Context(), c.Params("code"), actorID(c), req.CaptureIDs, req.Message)
	if err != nil {
		return err
	}
	return sendCreated(c, offer)
}

func (s *Server) handleUpdateTradeOffer(c *fiber.Ctx) error {
	id, err := offerIDParam(c)
	if err != nil {
		return nil
	}

	var req tradeOfferRequest
	if err := c.BodyParser(&req); err != nil {
		return sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
	}

	offer, err := s.exchange.UpdateTradeOffer(c.Context(), id, actorID(c), req.CaptureIDs, req.Message)
	if err != nil {
		return err
	}
	return sendSuccess(c, offer)
}

func (s *Server) handleRetractTradeOffer(c *fiber.Ctx) error {
	id, err := offerIDParam(c)
	if err != nil {
		return nil
	}
	if err := s.exchange.RetractTradeOffer(c.Context(), id, actorID(c)); err != nil {
		return err
	}
	return sendMessage(c, "offer retracted")
}

func (s *Server) handleAcceptTradeOffer(c *fiber.Ctx) error {
	id, err := offerIDParam(c)
	if err != nil {
		return nil
	}
	txn, err := s.exchange.AcceptTradeOffer(c.Context(), id, actorID(c))
	if err != nil {
		return err
	}
	return sendCreated(c, txn)
}

func (s *Server) handleRejectTradeOffer(c *fiber.Ctx) error {
	id, err := offerIDParam(c)
	if err != nil {
		return nil
	}
	if err := s.exchange.RejectTradeOffer(c.Context(), id, actorID(c)); err != nil {
		return err
	}
	return sendMessage(c, "offer rejected")
}

func (s *Server) handleListOffers(c *fiber.Ctx) error {
	offers, err := s.reader.OffersByListing(c.Context(), c.Params("code"))
	if err != nil {
		return err
	}
	return sendSuccess(c, offers)
}

func (s *Server) handleBalance(c *fiber.Ctx) error {
	balance, err := s.reader.Balance(c.Context(), actorID(c))
	if err != nil {
		return err
	}
	return sendSuccess(c, balance)
}

func (s *Server) handleMyBids(c *fiber.Ctx) error {
	bids, err := s.reader.BidsByBidder(c.Context(), actorID(c))
	if err != nil {
		return err
	}
	return sendSuccess(c, bids)
}

func (s *Server) handleMyOffers(c *fiber.Ctx) error {
	offers, err := s.reader.OffersByOfferer(c.Context(), actorID(c))
	if err != nil {
		return err
	}
	return sendSuccess(c, offers)
}

func (s *Server) handleTransactions(c *fiber.Ctx) error {
	page, pageSize := pageParams(c)
	txns, total, err := s.reader.Transactions(c.Context(), actorID(c), page, pageSize)
	if err != nil {
		return err
	}
	return sendPaginated(c, txns, page, pageSize, total)
}

func (s *Server) handleSearchCaptures(c *fiber.Ctx) error {
	captures, err := s.reader.SearchCaptures(c.Context(), actorID(c), c.Query("q"))
	if err != nil {
		return err
	}
	return sendSuccess(c, captures)
}

// handleFinalize triggers an expiry sweep on demand; the scheduled sweeper
// makes the same call on its interval.
func (s *Server) handleFinalize(c *fiber.Ctx) error {
	count, err := s.exchange.FinalizeExpiredListings(c.Context(), c.QueryInt("batch_size", 0), c.QueryInt("workers", 0))
	if err != nil {
		return err
	}
	return sendSuccess(c, fiber.Map{"finalized": count})
}
