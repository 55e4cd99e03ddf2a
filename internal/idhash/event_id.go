package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeEventID computes a deterministic event_id using SHA256.
// Formula: SHA256(type|sequence|timestamp_ms)
// Returns hex-encoded hash (64 characters).
func ComputeEventID(
	eventType string,
	sequence uint64,
	timestampMs int64,
) string {
	data := fmt.Sprintf("%s|%d|%d",
		eventType,
		sequence,
		timestampMs,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
