package domain

import "github.com/holiman/uint256"

// Purchase is one successful purchase, as persisted in the journal.
// Corresponds to the purchases table in PostgreSQL.
type Purchase struct {
	PurchaseID string       // PRIMARY KEY, deterministic hash
	Buyer      Address      // purchasing wallet
	Amount     *uint256.Int // asset units bought, scaled
	Cost       *uint256.Int // currency paid
	Price      *uint256.Int // unit price at purchase time
	Timestamp  int64        // unix milliseconds
}

// SaleTimeseriesPoint is one aggregation interval of purchase activity.
// Corresponds to the sale_timeseries table in ClickHouse.
type SaleTimeseriesPoint struct {
	BucketStart   int64        // unix ms, inclusive interval start
	SoldAmount    *uint256.Int // asset units sold in the interval
	Proceeds      *uint256.Int // currency raised in the interval
	PurchaseCount int64
}
