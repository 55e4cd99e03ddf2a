package sale

import (
	"fmt"

	"github.com/holiman/uint256"

	"crowdsale-engine/internal/domain"
)

// purchaseRequest is the snapshot a purchase is validated against.
type purchaseRequest struct {
	buyer  domain.Address
	amount *uint256.Int
	value  *uint256.Int
	now    int64 // unix seconds
	status domain.WhitelistStatus
	cfg    *domain.SaleConfig
}

// purchaseCheck is one named predicate in the validation pipeline.
type purchaseCheck struct {
	name   string
	verify func(*purchaseRequest) error
}

// purchaseChecks runs in this exact order; each failure produces a
// distinct error, and a multiply-invalid purchase reports the first
// failing check. The UI's error surface depends on this ordering.
var purchaseChecks = []purchaseCheck{
	{name: "sale_active", verify: checkSaleActive},
	{name: "whitelisted", verify: checkWhitelisted},
	{name: "purchase_bounds", verify: checkPurchaseBounds},
	{name: "supply_remaining", verify: checkSupplyRemaining},
	{name: "exact_payment", verify: checkExactPayment},
}

// runPurchaseChecks short-circuits on the first failing check.
func runPurchaseChecks(req *purchaseRequest) error {
	for _, c := range purchaseChecks {
		if err := c.verify(req); err != nil {
			return err
		}
	}
	return nil
}

func checkSaleActive(req *purchaseRequest) error {
	if req.now < req.cfg.StartTime {
		return fmt.Errorf("%w: sale not started", domain.ErrSaleNotActive)
	}
	if req.now > req.cfg.EndTime {
		return fmt.Errorf("%w: sale already ended", domain.ErrSaleNotActive)
	}
	return nil
}

func checkWhitelisted(req *purchaseRequest) error {
	if req.status != domain.WhitelistApproved {
		return fmt.Errorf("%w: %s is %s", domain.ErrNotWhitelisted, req.buyer, req.status)
	}
	return nil
}

func checkPurchaseBounds(req *purchaseRequest) error {
	if req.amount.Lt(req.cfg.MinPurchase) || req.amount.Gt(req.cfg.MaxPurchase) {
		return fmt.Errorf("%w: %s outside [%s, %s]",
			domain.ErrPurchaseOutOfBounds, req.amount.Dec(), req.cfg.MinPurchase.Dec(), req.cfg.MaxPurchase.Dec())
	}
	return nil
}

func checkSupplyRemaining(req *purchaseRequest) error {
	sold, overflow := new(uint256.Int).AddOverflow(req.cfg.TokensSold, req.amount)
	if overflow || sold.Gt(req.cfg.MaxTokens) {
		return fmt.Errorf("%w: %s sold of %s cap",
			domain.ErrSoldOut, req.cfg.TokensSold.Dec(), req.cfg.MaxTokens.Dec())
	}
	return nil
}

func checkExactPayment(req *purchaseRequest) error {
	cost, err := domain.Cost(req.amount, req.cfg.Price)
	if err != nil {
		return err
	}
	if !req.value.Eq(cost) {
		return fmt.Errorf("%w: attached %s, expected %s",
			domain.ErrIncorrectPayment, req.value.Dec(), cost.Dec())
	}
	return nil
}
