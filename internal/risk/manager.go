package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"whaleSnipeBot/internal/domain"
	"whaleSnipeBot/internal/ports"
)

// Config holds the entry limits and fee schedule.
type Config struct {
	StartingBalance  decimal.Decimal // simulated account balance in USDT
	MaxOpenPositions int
	MaxPositionUSD   decimal.Decimal // maximum notional of a single entry; zero disables the check
	VenueFee         decimal.Decimal // fractional fee charged per fill, e.g. 0.001
}

// Manager tracks the simulated account balance and open-position stats and
// validates entries against the configured limits. It is owned by the
// scheduling loop and is not safe for concurrent use.
type Manager struct {
	cfg           Config
	balance       decimal.Decimal
	openPositions int
	realizedPNL   decimal.Decimal
}

// NewManager creates a new risk manager with the configured starting balance.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.StartingBalance.IsNegative() {
		return nil, fmt.Errorf("starting balance cannot be negative")
	}
	if cfg.MaxOpenPositions <= 0 {
		return nil, fmt.Errorf("max open positions must be positive")
	}
	if cfg.VenueFee.IsNegative() || cfg.VenueFee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("venue fee must be in [0, 1)")
	}
	return &Manager{cfg: cfg, balance: cfg.StartingBalance}, nil
}

// ValidateEntry checks whether a new position with the given notional value
// may be opened. Returns ErrRiskLimitExceeded or ErrInsufficientBalance on a
// violated limit.
func (m *Manager) ValidateEntry(notionalUSD decimal.Decimal) error {
	if m.openPositions >= m.cfg.MaxOpenPositions {
		return fmt.Errorf("%w: %d positions already open (max %d)",
			ports.ErrRiskLimitExceeded, m.openPositions, m.cfg.MaxOpenPositions)
	}
	if m.cfg.MaxPositionUSD.IsPositive() && notionalUSD.GreaterThan(m.cfg.MaxPositionUSD) {
		return fmt.Errorf("%w: notional %s exceeds max %s",
			ports.ErrRiskLimitExceeded, notionalUSD.StringFixed(2), m.cfg.MaxPositionUSD.StringFixed(2))
	}
	cost := m.entryCost(notionalUSD)
	if cost.GreaterThan(m.balance) {
		return fmt.Errorf("%w: entry cost %s exceeds balance %s",
			ports.ErrInsufficientBalance, cost.StringFixed(2), m.balance.StringFixed(2))
	}
	return nil
}

// RegisterEntry debits the entry cost (notional plus venue fee) and bumps
// the open-position count.
func (m *Manager) RegisterEntry(notionalUSD decimal.Decimal) {
	m.balance = m.balance.Sub(m.entryCost(notionalUSD))
	m.openPositions++
}

// RegisterExit credits the entry notional plus the direction-signed profit
// of the closed position, net of the exit fee, and records the realized
// PNL. Returns the realized PNL.
func (m *Manager) RegisterExit(pos *domain.Position, exitPrice decimal.Decimal) decimal.Decimal {
	fee := pos.Amount.Mul(exitPrice).Mul(m.cfg.VenueFee)
	pnl := pos.UnrealizedPNL(exitPrice).Sub(fee)
	m.balance = m.balance.Add(pos.Amount.Mul(pos.EntryPrice)).Add(pnl)
	m.realizedPNL = m.realizedPNL.Add(pnl)
	if m.openPositions > 0 {
		m.openPositions--
	}
	return pnl
}

// AdoptPosition accounts for a position restored from the repository at
// startup, or filled with real funds on-chain, without debiting the
// simulated balance.
func (m *Manager) AdoptPosition() { m.openPositions++ }

// ReleasePosition decrements the open-position count for exits settled
// outside the simulated balance (on-chain fills).
func (m *Manager) ReleasePosition() {
	if m.openPositions > 0 {
		m.openPositions--
	}
}

// Balance returns the current simulated balance.
func (m *Manager) Balance() decimal.Decimal { return m.balance }

// OpenPositions returns the tracked open-position count.
func (m *Manager) OpenPositions() int { return m.openPositions }

// RealizedPNL returns the cumulative realized profit since start.
func (m *Manager) RealizedPNL() decimal.Decimal { return m.realizedPNL }

func (m *Manager) entryCost(notionalUSD decimal.Decimal) decimal.Decimal {
	return notionalUSD.Mul(decimal.NewFromInt(1).Add(m.cfg.VenueFee))
}
