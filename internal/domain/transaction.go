package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AnonymousWallet is used for venues that do not expose the actor behind a
// trade (centralized exchanges).
const AnonymousWallet = "anonymous"

// TransactionRecord is a single normalized trade or transfer observed on a
// venue. Records are immutable once fetched.
type TransactionRecord struct {
	Venue     Venue
	Chain     string // asset symbol, e.g. "ETH"
	Wallet    string // actor identifier, AnonymousWallet for CEX trades
	Amount    decimal.Decimal
	Side      Side
	Timestamp time.Time
	USDValue  decimal.Decimal
	TxID      string
}

// NewPair is the payload of a pair-created notification from the on-chain
// liquidity pool factory.
type NewPair struct {
	Token0      string
	Token1      string
	PairAddress string
}
