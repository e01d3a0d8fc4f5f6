package ports

import (
	"context"

	"whaleSnipeBot/internal/domain"
)

// PositionRepository defines the interface for storing and retrieving
// trading positions.
type PositionRepository interface {
	// Create saves a new position and returns its assigned ID.
	Create(ctx context.Context, pos *domain.Position) (int64, error)
	// Update modifies an existing position (used to record closes).
	Update(ctx context.Context, pos *domain.Position) error
	// FindOpen retrieves all currently open positions.
	FindOpen(ctx context.Context) ([]*domain.Position, error)
	// GetTotalProfit calculates the sum of PNL for all closed positions.
	GetTotalProfit(ctx context.Context) (float64, error)
}

// WhaleEventRepository stores the history of detected whale events.
type WhaleEventRepository interface {
	// CreateEvent saves a detected whale event and returns its assigned ID.
	CreateEvent(ctx context.Context, ev *domain.WhaleEvent) (int64, error)
	// CountEvents returns the total number of recorded whale events.
	CountEvents(ctx context.Context) (int, error)
}

// SnipeCandidate is one line of the snipe-list file.
type SnipeCandidate struct {
	PairID   string
	AssetIn  string
	AssetOut string
}

// FilledRecord is one line of the filled-position file.
type FilledRecord struct {
	BlockNumber uint64
	AssetIn     string
	AssetOut    string
	EntryPrice  string // decimal string, preserved exactly across a round-trip
}

// ListStore persists human-readable append-only record lists. Lines are
// never rewritten in place; removal of a consumed candidate is a logical,
// in-memory operation only.
type ListStore interface {
	AppendSnipeCandidate(c SnipeCandidate) error
	LoadSnipeCandidates() ([]SnipeCandidate, error)
	AppendFilledRecord(r FilledRecord) error
	LoadFilledRecords() ([]FilledRecord, error)
}
