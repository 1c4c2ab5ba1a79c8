package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/capdex/exchange/exchange/catalog"
	"github.com/capdex/exchange/exchange/database/models"
	"github.com/capdex/exchange/exchange/database/repositories"
	"github.com/capdex/exchange/exchange/engine"
)

// Exchange is the write surface the handlers call. The engine satisfies it;
// tests swap in a fake.
type Exchange interface {
	CreateListing(ctx context.Context, sellerID string, input engine.CreateListingInput) (*models.Listing, error)
	CancelListing(ctx context.Context, code, sellerID string) error
	PlaceBid(ctx context.Context, code, bidderID string, amount int64) (*models.Bid, error)
	RetractBid(ctx context.Context, code, bidderID string) error
	BuyNow(ctx context.Context, code, buyerID string) (*models.Transaction, error)
	PlaceTradeOffer(ctx context.Context, code, offererID string, captureIDs []int64, message string) (*models.TradeOffer, error)
	UpdateTradeOffer(ctx context.Context, offerID int64, offererID string, captureIDs []int64, message string) (*models.TradeOffer, error)
	RetractTradeOffer(ctx context.Context, offerID int64, offererID string) error
	AcceptTradeOffer(ctx context.Context, offerID int64, sellerID string) (*models.Transaction, error)
	RejectTradeOffer(ctx context.Context, offerID int64, sellerID string) error
	FinalizeExpiredListings(ctx context.Context, batchSize, workers int) (int, error)
}

// Reader is the read surface, satisfied by the catalog.
type Reader interface {
	GetListing(ctx context.Context, code string) (*catalog.ListingDetail, error)
	FetchListings(ctx context.Context, filters repositories.ListingFilters, page, pageSize int) ([]*models.Listing, int, error)
	Bids(ctx context.Context, code, callerID string) ([]catalog.BidView, error)
	HighestBid(ctx context.Context, code string) (*models.Bid, error)
	OffersByListing(ctx context.Context, code string) ([]*catalog.OfferDetail, error)
	OffersByOfferer(ctx context.Context, offererID string) ([]*catalog.OfferDetail, error)
	Balance(ctx context.Context, userID string) (*catalog.Balance, error)
	Transactions(ctx context.Context, userID string, page, pageSize int) ([]*models.Transaction, int, error)
	BidsByBidder(ctx context.Context, bidderID string) ([]*models.Bid, error)
	SearchCaptures(ctx context.Context, ownerID, query string) ([]*models.Capture, error)
}

type Server struct {
	exchange Exchange
	reader   Reader
}

// New builds the fiber app with all exchange routes mounted.
func New(exchange Exchange, reader Reader, allowOrigins string) *fiber.App {
	s := &Server{exchange: exchange, reader: reader}

	app := fiber.New(fiber.Config{
		AppName:      "CapDex Exchange",
		ServerHeader: "capdex-exchange",
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(compress.New())
	if allowOrigins != "" {
		app.Use(cors.New(cors.Config{AllowOrigins: allowOrigins}))
	}
	app.Use(loggingMiddleware())

	app.Get("/health", s.handleHealth)

	v1 := app.Group("/api/v1")

	listings := v1.Group("/listings")
	listings.Get("/", s.handleFetchListings)
	listings.Post("/", requireActor, s.handleCreateListing)
	listings.Get("/:code", s.handleGetListing)
	listings.Delete("/:code", requireActor, s.handleCancelListing)

	listings.Get("/:code/bids", s.handleListBids)
	listings.Post("/:code/bids", requireActor, s.handlePlaceBid)
	listings.Delete("/:code/bids", requireActor, s.handleRetractBid)
	listings.Get("/:code/highest-bid", s.handleHighestBid)

	listings.Post("/:code/purchase", requireActor, s.handleBuyNow)

	listings.Get("/:code/offers", s.handleListOffers)
	listings.Post("/:code/offers", requireActor, s.handlePlaceTradeOffer)

	offers := v1.Group("/offers", requireActor)
	offers.Put("/:id", s.handleUpdateTradeOffer)
	offers.Delete("/:id", s.handleRetractTradeOffer)
	offers.Post("/:id/accept", s.handleAcceptTradeOffer)
	offers.Post("/:id/reject", s.handleRejectTradeOffer)

	me := v1.Group("/me", requireActor)
	me.Get("/balance", s.handleBalance)
	me.Get("/bids", s.handleMyBids)
	me.Get("/offers", s.handleMyOffers)
	me.Get("/transactions", s.handleTransactions)
	me.Get("/captures", s.handleSearchCaptures)

	v1.Post("/internal/finalize", s.handleFinalize)

	return app
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return sendMessage(c, "ok")
}
