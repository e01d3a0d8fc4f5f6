package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// WhaleKind distinguishes the two detection rules.
type WhaleKind string

const (
	// WhaleSingleLarge is a single transaction at or above the large-tx threshold.
	WhaleSingleLarge WhaleKind = "single_large"
	// WhaleConsecutiveSmall is a same-actor, same-direction run of transactions
	// whose aggregate value crossed the consecutive threshold inside the window.
	WhaleConsecutiveSmall WhaleKind = "consecutive_small"
)

// WhaleEvent is a threshold-crossing event produced by the aggregator.
// Consumed once by trade simulation, never mutated.
type WhaleEvent struct {
	Kind        WhaleKind
	Venue       Venue
	Chain       string
	Wallet      string
	Side        Side
	USDValue    decimal.Decimal // aggregate over the constituent transactions
	TxIDs       []string
	WindowStart time.Time
}
