package domain

import "errors"

// Sale engine errors. Every rejected operation maps to exactly one of
// these sentinels; callers distinguish them with errors.Is.
var (
	// ErrNotOwner is returned when a caller other than the configured
	// owner invokes an owner-only operation.
	ErrNotOwner = errors.New("only owner can call this function")

	// ErrSaleNotActive is returned when a purchase arrives before
	// startTime or after endTime.
	ErrSaleNotActive = errors.New("sale not active")

	// ErrNotWhitelisted is returned when the buyer is not APPROVED.
	ErrNotWhitelisted = errors.New("address not whitelisted")

	// ErrPurchaseOutOfBounds is returned when the purchase amount is
	// below minPurchase or above maxPurchase.
	ErrPurchaseOutOfBounds = errors.New("purchase amount out of bounds")

	// ErrSoldOut is returned when a purchase would exceed maxTokens.
	ErrSoldOut = errors.New("insufficient tokens remaining")

	// ErrIncorrectPayment is returned when the attached currency value
	// does not equal amount * price.
	ErrIncorrectPayment = errors.New("incorrect payment value")

	// ErrAlreadyRequested is returned when an address requests
	// whitelisting while already PENDING or APPROVED.
	ErrAlreadyRequested = errors.New("whitelist already requested")

	// ErrRefundNotEnabled is returned when refundCampaign is called
	// while the refund flag is unset.
	ErrRefundNotEnabled = errors.New("refunds not enabled")

	// ErrInsufficientBalance is returned when a ledger debit exceeds the
	// holder's balance, or a refund payout exceeds held currency.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientAllowance is returned when transferFrom exceeds the
	// spender's allowance.
	ErrInsufficientAllowance = errors.New("insufficient allowance")

	// ErrInvalidConfiguration is returned when a configuration call
	// violates min <= max or end > start.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidAddress is returned for zero or malformed addresses.
	ErrInvalidAddress = errors.New("invalid address")
)
