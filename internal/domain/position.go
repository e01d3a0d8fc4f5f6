package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionSource records which detection path opened the position.
type PositionSource string

const (
	SourceSnipe PositionSource = "snipe"
	SourceWhale PositionSource = "whale"
)

// Position is an open or closed trade held by the bot. It is created by the
// execution engine on a filled entry and mutated only by the position
// tracker.
type Position struct {
	ID         int64
	Source     PositionSource
	Venue      Venue
	Pair       AssetPair
	Direction  Direction
	Amount     decimal.Decimal // units of the held asset
	EntryPrice decimal.Decimal
	EntryTime  time.Time
	Status     PositionStatus

	// Exit metadata, populated on close.
	ExitPrice   decimal.Decimal
	ExitTime    time.Time
	CloseReason CloseReason
	PNL         decimal.Decimal

	// On-chain fill details; zero for simulated CEX positions.
	BlockNumber uint64
	TxID        string
}

// IsOpen reports whether the position is still open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// UnrealizedPNL computes the mark-to-market profit of the position at the
// given price, before fees.
func (p *Position) UnrealizedPNL(price decimal.Decimal) decimal.Decimal {
	diff := price.Sub(p.EntryPrice)
	if p.Direction == DirectionShort {
		diff = diff.Neg()
	}
	return diff.Mul(p.Amount)
}
