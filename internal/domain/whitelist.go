package domain

// WhitelistStatus is the admission state of a single address.
type WhitelistStatus string

// Whitelist statuses. Every unseen address is NONE; self-service requests
// move NONE to PENDING; only admin action moves an address to APPROVED or
// REJECTED.
const (
	WhitelistNone     WhitelistStatus = "NONE"
	WhitelistPending  WhitelistStatus = "PENDING"
	WhitelistApproved WhitelistStatus = "APPROVED"
	WhitelistRejected WhitelistStatus = "REJECTED"
)
