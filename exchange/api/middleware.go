package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/capdex/exchange/exchange/catalog"
	"github.com/capdex/exchange/exchange/database/repositories"
	"github.com/capdex/exchange/exchange/engine"
)

// actorHeader carries the caller's user id. Authentication happens at the
// gateway; this service trusts the header.
const actorHeader = "X-Actor-ID"

func actorID(c *fiber.Ctx) string {
	return c.Get(actorHeader)
}

// requireActor rejects write requests that arrive without an actor id.
func requireActor(c *fiber.Ctx) error {
	if actorID(c) == "" {
		return sendError(c, http.StatusBadRequest, "MISSING_ACTOR", "X-Actor-ID header is required")
	}
	return c.Next()
}

// errorStatus maps the engine and catalog failure taxonomy to HTTP statuses.
// Precondition failures and lost races are conflicts; the caller can refresh
// and retry.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, engine.ErrSelfPurchase), errors.Is(err, engine.ErrOwnListing):
		return http.StatusBadRequest, "SELF_DEALING"
	case errors.Is(err, engine.ErrListingNotFound),
		errors.Is(err, engine.ErrOfferNotFound),
		errors.Is(err, repositories.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, engine.ErrNotSeller), errors.Is(err, engine.ErrNotOfferer):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, engine.ErrInsufficientFunds):
		return http.StatusConflict, "INSUFFICIENT_FUNDS"
	case errors.Is(err, engine.ErrListingNotActive),
		errors.Is(err, engine.ErrWrongListingType),
		errors.Is(err, engine.ErrListingHasBids),
		errors.Is(err, engine.ErrNoActiveBid),
		errors.Is(err, engine.ErrOfferNotPending),
		errors.Is(err, engine.ErrCaptureDisabled),
		errors.Is(err, engine.ErrCaptureNotOwned),
		errors.Is(err, engine.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, catalog.ErrSealed):
		return http.StatusConflict, "SEALED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// errorHandler is the fiber app-level error handler.
func errorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return sendError(c, fiberErr.Code, "HTTP_ERROR", fiberErr.Message)
	}

	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Any("error", err))
		return sendError(c, status, code, "internal error")
	}
	return sendError(c, status, code, err.Error())
}

// loggingMiddleware writes one structured line per request, leveled by status.
func loggingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		} else if status >= 400 {
			level = slog.LevelWarn
		}

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("ip", c.IP()),
		}
		if actor := actorID(c); actor != "" {
			attrs = append(attrs, slog.String("actor", actor))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
		}

		slog.Log(c.Context(), level, "HTTP request processed", attrs...)
		return err
	}
}
