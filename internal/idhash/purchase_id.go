package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputePurchaseID computes a deterministic purchase_id using SHA256.
// Formula: SHA256(buyer|amount|price|timestamp_ms|index)
// The index is the engine's running purchase count; it keeps identical
// buys landing in the same millisecond from colliding.
// Returns hex-encoded hash (64 characters).
func ComputePurchaseID(
	buyer string,
	amount string,
	price string,
	timestampMs int64,
	index uint64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d",
		buyer,
		amount,
		price,
		timestampMs,
		index,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
