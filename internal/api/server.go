// Package api exposes the sale engine over HTTP. All reads and writes
// are JSON; amounts travel as decimal strings, addresses as base58.
package api

import (
	"errors"
	"log"
	"sync"

	"github.com/gofiber/fiber/v2"

	"crowdsale-engine/internal/domain"
	"crowdsale-engine/internal/gateway"
	"crowdsale-engine/internal/ledger"
	"crowdsale-engine/internal/sale"
	"crowdsale-engine/internal/settlement"
	"crowdsale-engine/internal/storage"
	"crowdsale-engine/internal/whitelist"
)

// Params configures a new Server.
type Params struct {
	Engine     *sale.Engine
	Controller *settlement.Controller
	Ledger     *ledger.Ledger
	Registry   *whitelist.Registry
	Gateway    *gateway.Gateway

	Purchases  storage.PurchaseStore
	Journal    storage.SaleEventStore
	Timeseries storage.SaleTimeseriesStore // optional

	Logger *log.Logger
}

// Server holds the handler dependencies.
type Server struct {
	engine     *sale.Engine
	controller *settlement.Controller
	ledger     *ledger.Ledger
	registry   *whitelist.Registry
	gw         *gateway.Gateway

	purchases  storage.PurchaseStore
	journal    storage.SaleEventStore
	timeseries storage.SaleTimeseriesStore

	logger *log.Logger

	// Mutating operations run one at a time so journal sequence order
	// matches request commit order.
	writeMu sync.Mutex
}

// NewServer creates a server. A nil logger uses the process default.
func NewServer(p Params) *Server {
	logger := p.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		engine:     p.Engine,
		controller: p.Controller,
		ledger:     p.Ledger,
		registry:   p.Registry,
		gw:         p.Gateway,
		purchases:  p.Purchases,
		journal:    p.Journal,
		timeseries: p.Timeseries,
		logger:     logger,
	}
}

// Router builds the Fiber app with all routes registered.
func (s *Server) Router() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "crowdsale-engine",
		DisableStartupMessage: true,
	})

	app.Get("/health", s.HealthCheck)

	v1 := app.Group("/api/v1")

	// Sale reads
	v1.Get("/sale", s.GetSale)
	v1.Get("/balance/:address", s.GetBalance)
	v1.Get("/allowance/:owner/:spender", s.GetAllowance)

	// Whitelist
	v1.Get("/whitelist/pending", s.GetPendingAddresses)
	v1.Get("/whitelist/:address", s.GetWhitelistStatus)
	v1.Post("/whitelist/status", s.GetWhitelistStatusAll)
	v1.Post("/whitelist/request", s.RequestWhitelist)
	v1.Post("/whitelist/approve", s.ApproveWhitelist)
	v1.Post("/whitelist/reject", s.RejectWhitelist)
	v1.Post("/whitelist/approve-all", s.ApproveWhitelistAll)
	v1.Post("/whitelist/reject-all", s.RejectWhitelistAll)

	// Purchase paths
	v1.Post("/buy", s.Buy)
	v1.Post("/payment", s.ReceivePayment)

	// Ledger
	v1.Post("/transfer", s.Transfer)
	v1.Post("/approve", s.Approve)

	// Settlement
	v1.Post("/refund", s.Refund)

	// Owner operations
	admin := v1.Group("/admin")
	admin.Post("/price", s.SetPrice)
	admin.Post("/contribution", s.SetContribution)
	admin.Post("/restart", s.RestartCampaign)
	admin.Post("/finalize", s.Finalize)
	admin.Post("/refund-status", s.SetRefundStatus)

	// History
	v1.Get("/purchases", s.GetPurchases)
	v1.Get("/events", s.GetEvents)
	v1.Get("/timeseries", s.GetTimeseries)

	return app
}

// HealthCheck reports liveness.
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// statusFor maps the domain error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotOwner),
		errors.Is(err, domain.ErrNotWhitelisted),
		errors.Is(err, domain.ErrRefundNotEnabled):
		return fiber.StatusForbidden
	case errors.Is(err, domain.ErrAlreadyRequested):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientAllowance):
		return fiber.StatusPaymentRequired
	case errors.Is(err, domain.ErrSaleNotActive),
		errors.Is(err, domain.ErrPurchaseOutOfBounds),
		errors.Is(err, domain.ErrSoldOut),
		errors.Is(err, domain.ErrIncorrectPayment),
		errors.Is(err, domain.ErrInvalidConfiguration),
		errors.Is(err, domain.ErrInvalidAddress):
		return fiber.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, storage.ErrInvalidInput):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// fail renders err with its mapped status code.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		s.logger.Printf("internal error on %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
