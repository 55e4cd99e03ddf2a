package api

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/holiman/uint256"

	"crowdsale-engine/internal/domain"
)

// saleResponse is the full sale view the UI refreshes off.
type saleResponse struct {
	Owner         string `json:"owner"`
	SaleAddress   string `json:"sale_address"`
	Price         string `json:"price"`
	MinPurchase   string `json:"min_purchase"`
	MaxPurchase   string `json:"max_purchase"`
	StartTime     int64  `json:"start_time"`
	EndTime       int64  `json:"end_time"`
	TokensSold    string `json:"tokens_sold"`
	MaxTokens     string `json:"max_tokens"`
	CurrencyHeld  string `json:"currency_held"`
	Phase         string `json:"phase"`
	Outcome       string `json:"outcome,omitempty"`
	RefundEnabled bool   `json:"refund_enabled"`
}

// GetSale returns the sale configuration and derived state.
func (s *Server) GetSale(c *fiber.Ctx) error {
	cfg := s.engine.Config()

	resp := saleResponse{
		Owner:         cfg.Owner.String(),
		SaleAddress:   s.engine.SaleAddress().String(),
		Price:         cfg.Price.Dec(),
		MinPurchase:   cfg.MinPurchase.Dec(),
		MaxPurchase:   cfg.MaxPurchase.Dec(),
		StartTime:     cfg.StartTime,
		EndTime:       cfg.EndTime,
		TokensSold:    cfg.TokensSold.Dec(),
		MaxTokens:     cfg.MaxTokens.Dec(),
		CurrencyHeld:  s.engine.CurrencyHeld().Dec(),
		Phase:         string(s.engine.Phase()),
		RefundEnabled: s.engine.RefundEnabled(),
	}
	if s.engine.Phase() == domain.PhaseEnded {
		resp.Outcome = string(s.engine.Outcome())
	}
	return c.JSON(resp)
}

// GetBalance returns the asset balance of an address.
func (s *Server) GetBalance(c *fiber.Ctx) error {
	addr, err := domain.ParseAddress(c.Params("address"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"address": addr.String(),
		"balance": s.ledger.BalanceOf(addr).Dec(),
	})
}

// GetAllowance returns what spender may move on owner's behalf.
func (s *Server) GetAllowance(c *fiber.Ctx) error {
	owner, err := domain.ParseAddress(c.Params("owner"))
	if err != nil {
		return s.fail(c, err)
	}
	spender, err := domain.ParseAddress(c.Params("spender"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"owner":     owner.String(),
		"spender":   spender.String(),
		"allowance": s.ledger.Allowance(owner, spender).Dec(),
	})
}

// GetWhitelistStatus returns one address's admission status.
func (s *Server) GetWhitelistStatus(c *fiber.Ctx) error {
	addr, err := domain.ParseAddress(c.Params("address"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"address": addr.String(),
		"status":  string(s.registry.Status(addr)),
		"pending": s.registry.IsPending(addr),
	})
}

// GetWhitelistStatusAll returns statuses for a list of addresses, in order.
func (s *Server) GetWhitelistStatusAll(c *fiber.Ctx) error {
	var req struct {
		Addresses []string `json:"addresses"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	addrs, err := parseAddresses(req.Addresses)
	if err != nil {
		return s.fail(c, err)
	}

	statuses := s.registry.StatusAll(addrs)
	out := make([]string, len(statuses))
	for i, status := range statuses {
		out[i] = string(status)
	}
	return c.JSON(fiber.Map{"statuses": out})
}

// GetPendingAddresses returns the pending request list in request order.
func (s *Server) GetPendingAddresses(c *fiber.Ctx) error {
	pending := s.registry.PendingAddresses()
	out := make([]string, len(pending))
	for i, addr := range pending {
		out[i] = addr.String()
	}
	return c.JSON(fiber.Map{"pending": out})
}

// RequestWhitelist moves the caller to PENDING.
func (s *Server) RequestWhitelist(c *fiber.Ctx) error {
	var req struct {
		Caller string `json:"caller"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	caller, err := domain.ParseWalletAddress(req.Caller)
	if err != nil {
		return s.fail(c, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.registry.Request(c.Context(), caller); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": string(domain.WhitelistPending)})
}

type adminAddressRequest struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
}

// ApproveWhitelist is the owner-only single-address approve.
func (s *Server) ApproveWhitelist(c *fiber.Ctx) error {
	return s.resolveWhitelist(c, s.registry.Approve, domain.WhitelistApproved)
}

// RejectWhitelist is the owner-only single-address reject.
func (s *Server) RejectWhitelist(c *fiber.Ctx) error {
	return s.resolveWhitelist(c, s.registry.Reject, domain.WhitelistRejected)
}

func (s *Server) resolveWhitelist(c *fiber.Ctx, resolve func(ctx context.Context, addr domain.Address) error, result domain.WhitelistStatus) error {
	var req adminAddressRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	caller, err := domain.ParseAddress(req.Caller)
	if err != nil {
		return s.fail(c, err)
	}
	addr, err := domain.ParseAddress(req.Address)
	if err != nil {
		return s.fail(c, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	err = s.gw.Guard(caller, func() error {
		return resolve(c.Context(), addr)
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"address": addr.String(), "status": string(result)})
}

type adminBatchRequest struct {
	Caller    string   `json:"caller"`
	Addresses []string `json:"addresses"`
}

// ApproveWhitelistAll is the owner-only all-or-nothing batch approve.
func (s *Server) ApproveWhitelistAll(c *fiber.Ctx) error {
	return s.resolveWhitelistAll(c, s.registry.ApproveAll, domain.WhitelistApproved)
}

// RejectWhitelistAll is the owner-only all-or-nothing batch reject.
func (s *Server) RejectWhitelistAll(c *fiber.Ctx) error {
	return s.resolveWhitelistAll(c, s.registry.RejectAll, domain.WhitelistRejected)
}

func (s *Server) resolveWhitelistAll(c *fiber.Ctx, resolve func(ctx context.Context, addrs []domain.Address) error, result domain.WhitelistStatus) error {
	var req adminBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	caller, err := domain.ParseAddress(req.Caller)
	if err != nil {
		return s.fail(c, err)
	}
	addrs, err := parseAddresses(req.Addresses)
	if err != nil {
		return s.fail(c, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	err = s.gw.Guard(caller, func() error {
		return resolve(c.Context(), addrs)
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"count": len(addrs), "status": string(result)})
}

// Buy purchases an explicit amount with an attached currency value.
func (s *Server) Buy(c *fiber.Ctx) error {
	var req struct {
		Buyer  string `json:"buyer"`
		Amount string `json:"amount"`
		Value  string `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	buyer, err := domain.ParseWalletAddress(req.Buyer)
	if err != nil {
		return s.fail(c, err)
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		return badRequest(c, "invalid amount")
	}
	value, err := domain.ParseAmount(req.Value)
	if err != nil {
		return badRequest(c, "invalid value")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.engine.Buy(c.Context(), buyer, amount, value); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"buyer":       buyer.String(),
		"amount":      amount.Dec(),
		"tokens_sold": s.engine.TokensSold().Dec(),
	})
}

// ReceivePayment is the bare currency transfer purchase path: the amount
// is derived from the value at the current price.
func (s *Server) ReceivePayment(c *fiber.Ctx) error {
	var req struct {
		Buyer string `json:"buyer"`
		Value string `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	buyer, err := domain.ParseWalletAddress(req.Buyer)
	if err != nil {
		return s.fail(c, err)
	}
	value, err := domain.ParseAmount(req.Value)
	if err != nil {
		return badRequest(c, "invalid value")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.engine.ReceivePayment(c.Context(), buyer, value); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{
		"buyer":       buyer.String(),
		"tokens_sold": s.engine.TokensSold().Dec(),
	})
}

// Transfer moves asset units between holders.
func (s *Server) Transfer(c *fiber.Ctx) error {
	var req struct {
		From   string `json:"from"`
		To     string `json:"to"`
		Amount string `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	from, err := domain.ParseAddress(req.From)
	if err != nil {
		return s.fail(c, err)
	}
	to, err := domain.ParseAddress(req.To)
	if err != nil {
		return s.fail(c, err)
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		return badRequest(c, "invalid amount")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.ledger.Transfer(c.Context(), from, to, amount); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"from": from.String(), "to": to.String(), "amount": amount.Dec()})
}

// Approve sets an allowance; the refund path requires the caller to have
// approved the sale address as spender first.
func (s *Server) Approve(c *fiber.Ctx) error {
	var req struct {
		Owner   string `json:"owner"`
		Spender string `json:"spender"`
		Amount  string `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	owner, err := domain.ParseAddress(req.Owner)
	if err != nil {
		return s.fail(c, err)
	}
	spender, err := domain.ParseAddress(req.Spender)
	if err != nil {
		return s.fail(c, err)
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		return badRequest(c, "invalid amount")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.ledger.Approve(c.Context(), owner, spender, amount); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"owner": owner.String(), "spender": spender.String(), "amount": amount.Dec()})
}

// Refund returns the caller's full holding for currency at the current price.
func (s *Server) Refund(c *fiber.Ctx) error {
	var req struct {
		Caller string `json:"caller"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	caller, err := domain.ParseWalletAddress(req.Caller)
	if err != nil {
		return s.fail(c, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.controller.Refund(c.Context(), caller); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"caller": caller.String()})
}

// SetPrice is the owner-only price update.
func (s *Server) SetPrice(c *fiber.Ctx) error {
	var req struct {
		Caller string `json:"caller"`
		Price  string `json:"price"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	caller, err := domain.ParseAddress(req.Caller)
	if err != nil {
		return s.fail(c, err)
	}
	price, err := domain.ParseAmount(req.Price)
	if err != nil {
		return badRequest(c, "invalid price")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.engine.SetPrice(c.Context(), caller, price); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"price": price.Dec()})
}

// SetContribution is the owner-only min/max purchase update.
func (s *Server) SetContribution(c *fiber.Ctx) error {
	var req struct {
		Caller string `json:"caller"`
		Min    string `json:"min"`
		Max    string `json:"max"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	caller, err := domain.ParseAddress(req.Caller)
	if err != nil {
		return s.fail(c, err)
	}
	min, err := domain.ParseAmount(req.Min)
	if err != nil {
		return badRequest(c, "invalid min")
	}
	max, err := domain.ParseAmount(req.Max)
	if err != nil {
		return badRequest(c, "invalid max")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.engine.SetContribution(c.Context(), caller, min, max); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"min": min.Dec(), "max": max.Dec()})
}

// RestartCampaign is the owner-only time window reset.
func (s *Server) RestartCampaign(c *fiber.Ctx) error {
	var req struct {
		Caller string `json:"caller"`
		Start  int64  `json:"start"`
		End    int64  `json:"end"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	caller, err := domain.ParseAddress(req.Caller)
	if err != nil {
		return s.fail(c, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.engine.RestartCampaign(c.Context(), caller, req.Start, req.End); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"start": req.Start, "end": req.End})
}

// Finalize is the owner-only settlement sweep.
func (s *Server) Finalize(c *fiber.Ctx) error {
	var req struct {
		Caller string `json:"caller"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	caller, err := domain.ParseAddress(req.Caller)
	if err != nil {
		return s.fail(c, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.controller.Finalize(c.Context(), caller); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"tokens_sold": s.engine.TokensSold().Dec()})
}

// SetRefundStatus is the owner-only refund flag toggle.
func (s *Server) SetRefundStatus(c *fiber.Ctx) error {
	var req struct {
		Caller  string `json:"caller"`
		Enabled bool   `json:"enabled"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	caller, err := domain.ParseAddress(req.Caller)
	if err != nil {
		return s.fail(c, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.controller.SetRefundStatus(c.Context(), caller, req.Enabled); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"enabled": req.Enabled})
}

// GetPurchases lists purchases, optionally filtered by buyer or time range.
func (s *Server) GetPurchases(c *fiber.Ctx) error {
	ctx := c.Context()

	if buyerStr := c.Query("buyer"); buyerStr != "" {
		buyer, err := domain.ParseAddress(buyerStr)
		if err != nil {
			return s.fail(c, err)
		}
		purchases, err := s.purchases.GetByBuyer(ctx, buyer)
		if err != nil {
			return s.fail(c, err)
		}
		return c.JSON(fiber.Map{"purchases": purchaseViews(purchases)})
	}

	start, end, err := timeRangeQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	purchases, err := s.purchases.GetByTimeRange(ctx, start, end)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"purchases": purchaseViews(purchases)})
}

// GetEvents lists journal events by sequence range.
func (s *Server) GetEvents(c *fiber.Ctx) error {
	from, err := uintQuery(c, "from", 1)
	if err != nil {
		return badRequest(c, err.Error())
	}
	to, err := uintQuery(c, "to", maxSequenceQuery)
	if err != nil {
		return badRequest(c, err.Error())
	}

	events, err := s.journal.GetBySequenceRange(c.Context(), from, to)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"events": eventViews(events)})
}

// GetTimeseries lists aggregated sale activity buckets.
func (s *Server) GetTimeseries(c *fiber.Ctx) error {
	if s.timeseries == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "timeseries store not configured"})
	}

	start, end, err := timeRangeQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	points, err := s.timeseries.GetByTimeRange(c.Context(), start, end)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"points": pointViews(points)})
}

const maxSequenceQuery = uint64(1) << 62

func parseAddresses(in []string) ([]domain.Address, error) {
	addrs := make([]domain.Address, len(in))
	for i, s := range in {
		addr, err := domain.ParseAddress(s)
		if err != nil {
			return nil, err
		}
		addrs[i] = addr
	}
	return addrs, nil
}

func timeRangeQuery(c *fiber.Ctx) (int64, int64, error) {
	start, err := intQuery(c, "start", 0)
	if err != nil {
		return 0, 0, err
	}
	end, err := intQuery(c, "end", int64(maxSequenceQuery))
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func intQuery(c *fiber.Ctx, name string, def int64) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

func uintQuery(c *fiber.Ctx, name string, def uint64) (uint64, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

func decOrEmpty(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}
