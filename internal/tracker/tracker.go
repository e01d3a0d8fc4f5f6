package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"whaleSnipeBot/internal/domain"
	"whaleSnipeBot/internal/ports"
	"whaleSnipeBot/internal/risk"
)

// weiUnit converts 18-decimal on-chain units to decimal amounts.
var weiUnit = decimal.New(1, 18)

// ExitRule names one of the exit conditions. The evaluation order is
// configured, not hard-coded; the default is stop-loss, take-profit,
// arbitrage.
type ExitRule string

const (
	RuleStopLoss   ExitRule = "stop-loss"
	RuleTakeProfit ExitRule = "take-profit"
	RuleArbitrage  ExitRule = "arbitrage"
)

// DefaultExitPriority is the evaluation order used when none is configured.
var DefaultExitPriority = []ExitRule{RuleStopLoss, RuleTakeProfit, RuleArbitrage}

// ParseExitPriority parses a comma-separated rule list, e.g.
// "stop-loss,take-profit,arbitrage".
func ParseExitPriority(s string) ([]ExitRule, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultExitPriority, nil
	}
	parts := strings.Split(s, ",")
	rules := make([]ExitRule, 0, len(parts))
	seen := make(map[ExitRule]bool)
	for _, p := range parts {
		rule := ExitRule(strings.TrimSpace(p))
		switch rule {
		case RuleStopLoss, RuleTakeProfit, RuleArbitrage:
		default:
			return nil, fmt.Errorf("unknown exit rule %q", p)
		}
		if seen[rule] {
			return nil, fmt.Errorf("duplicate exit rule %q", p)
		}
		seen[rule] = true
		rules = append(rules, rule)
	}
	return rules, nil
}

// Config holds the exit thresholds.
type Config struct {
	StopLossPct   decimal.Decimal // e.g. 0.1
	TakeProfitPct decimal.Decimal // e.g. 0.2
	Slippage      decimal.Decimal // fractional tolerance reused for exit swaps
	VenueFee      decimal.Decimal // fractional fee, part of the arbitrage threshold
	ExitPriority  []ExitRule
	ExitDeadline  time.Duration // absolute deadline offset for on-chain exit swaps
	CallTimeout   time.Duration // per-quote timeout inside a tick
}

// Tracker holds the open positions and applies the exit-rule state machine
// once per tick. The position list is owned by the scheduling loop; only the
// tracker mutates it.
type Tracker struct {
	cfg    Config
	logger ports.Logger
	chain  ports.ChainGateway
	quotes map[domain.Venue]ports.QuoteGateway
	riskMg *risk.Manager
	repo   ports.PositionRepository

	positions []*domain.Position
}

// NewTracker creates a new position tracker.
func NewTracker(
	cfg Config,
	logger ports.Logger,
	chain ports.ChainGateway,
	quotes map[domain.Venue]ports.QuoteGateway,
	riskMg *risk.Manager,
	repo ports.PositionRepository,
) (*Tracker, error) {
	if logger == nil || riskMg == nil || repo == nil {
		return nil, fmt.Errorf("missing required dependencies for tracker")
	}
	if !cfg.StopLossPct.IsPositive() || cfg.StopLossPct.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("stop-loss percentage must be in (0, 1)")
	}
	if !cfg.TakeProfitPct.IsPositive() {
		return nil, fmt.Errorf("take-profit percentage must be positive")
	}
	if len(cfg.ExitPriority) == 0 {
		cfg.ExitPriority = DefaultExitPriority
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.ExitDeadline <= 0 {
		cfg.ExitDeadline = 10 * time.Minute
	}
	return &Tracker{
		cfg:    cfg,
		logger: logger,
		chain:  chain,
		quotes: quotes,
		riskMg: riskMg,
		repo:   repo,
	}, nil
}

// Restore loads open positions from the repository at startup.
func (t *Tracker) Restore(ctx context.Context) error {
	open, err := t.repo.FindOpen(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore open positions: %w", err)
	}
	for _, pos := range open {
		t.positions = append(t.positions, pos)
		t.riskMg.AdoptPosition()
	}
	if len(open) > 0 {
		t.logger.Info(ctx, "Restored open positions", map[string]interface{}{"count": len(open)})
	}
	return nil
}

// Add registers a freshly opened position for tracking.
func (t *Tracker) Add(pos *domain.Position) {
	t.positions = append(t.positions, pos)
}

// Count returns the number of open positions.
func (t *Tracker) Count() int {
	return len(t.positions)
}

// Open returns the tracked open positions.
func (t *Tracker) Open() []*domain.Position {
	return t.positions
}

// markSet holds the quotes gathered for one position before evaluation.
type markSet struct {
	primary        decimal.Decimal
	primaryOK      bool
	secondary      decimal.Decimal
	secondaryVenue domain.Venue
	secondaryOK    bool
}

// EvaluateAll re-quotes every open position and applies the exit rules once.
// Quote fetches run concurrently across positions with a per-call timeout
// and are all joined before any evaluation happens; a failing quote for one
// position never blocks or corrupts evaluation of the others.
func (t *Tracker) EvaluateAll(ctx context.Context) {
	if len(t.positions) == 0 {
		return
	}

	snapshot := make([]*domain.Position, len(t.positions))
	copy(snapshot, t.positions)

	marks := make([]markSet, len(snapshot))
	g, gctx := errgroup.WithContext(ctx)
	for i, pos := range snapshot {
		i, pos := i, pos
		g.Go(func() error {
			marks[i] = t.fetchMarks(gctx, pos)
			return nil // per-item failures are recorded in the mark set
		})
	}
	_ = g.Wait()

	for i, pos := range snapshot {
		mark := marks[i]
		if !mark.primaryOK {
			// Never force-close on a quote failure; re-evaluate next tick.
			t.logger.Warn(ctx, "No quote for position this tick, holding", map[string]interface{}{
				"positionID": pos.ID,
				"pair":       pos.Pair.Key(),
				"venue":      pos.Venue,
			})
			continue
		}
		if d, ok := t.decide(pos, mark); ok {
			t.executeExit(ctx, pos, d)
		}
	}
}

// fetchMarks gathers the primary-venue quote and, for the arbitrage rule,
// the first obtainable quote from any other venue.
func (t *Tracker) fetchMarks(ctx context.Context, pos *domain.Position) markSet {
	var m markSet

	primaryCtx, cancel := context.WithTimeout(ctx, t.cfg.CallTimeout)
	defer cancel()
	if gw, ok := t.quotes[pos.Venue]; ok {
		price, err := gw.Quote(primaryCtx, pos.Pair)
		if err == nil && price.IsPositive() {
			m.primary = price
			m.primaryOK = true
		} else if err != nil {
			t.logger.Debug(ctx, "Primary quote failed", map[string]interface{}{
				"pair": pos.Pair.Key(), "venue": pos.Venue, "error": err.Error(),
			})
		}
	}

	for venue, gw := range t.quotes {
		if venue == pos.Venue {
			continue
		}
		secCtx, cancelSec := context.WithTimeout(ctx, t.cfg.CallTimeout)
		price, err := gw.Quote(secCtx, pos.Pair)
		cancelSec()
		if err == nil && price.IsPositive() {
			m.secondary = price
			m.secondaryVenue = venue
			m.secondaryOK = true
			break
		}
	}
	return m
}

// decision describes one terminal transition of the exit state machine.
type decision struct {
	rule        ExitRule
	exitPrice   decimal.Decimal
	exitVenue   domain.Venue
	offset      bool // open the offsetting trade on the other venue
	offsetVenue domain.Venue
	offsetPrice decimal.Decimal
}

// decide evaluates the exit rules in the configured priority order; the
// first matching rule wins. Exactly one outcome per tick: hold (ok=false)
// or one of the exit rules.
func (t *Tracker) decide(pos *domain.Position, mark markSet) (decision, bool) {
	one := decimal.NewFromInt(1)
	for _, rule := range t.cfg.ExitPriority {
		switch rule {
		case RuleStopLoss:
			floor := pos.EntryPrice.Mul(one.Sub(t.cfg.StopLossPct))
			ceil := pos.EntryPrice.Mul(one.Add(t.cfg.StopLossPct))
			if (pos.Direction == domain.DirectionLong && mark.primary.LessThan(floor)) ||
				(pos.Direction == domain.DirectionShort && mark.primary.GreaterThan(ceil)) {
				return decision{rule: rule, exitPrice: mark.primary, exitVenue: pos.Venue}, true
			}
		case RuleTakeProfit:
			ceil := pos.EntryPrice.Mul(one.Add(t.cfg.TakeProfitPct))
			floor := pos.EntryPrice.Mul(one.Sub(t.cfg.TakeProfitPct))
			if (pos.Direction == domain.DirectionLong && mark.primary.GreaterThan(ceil)) ||
				(pos.Direction == domain.DirectionShort && mark.primary.LessThan(floor)) {
				return decision{rule: rule, exitPrice: mark.primary, exitVenue: pos.Venue}, true
			}
		case RuleArbitrage:
			if !mark.secondaryOK {
				continue
			}
			divergence := mark.secondary.Sub(mark.primary).Abs().Div(mark.primary)
			if divergence.GreaterThan(t.cfg.Slippage.Add(t.cfg.VenueFee)) {
				d := decision{rule: rule, offset: true}
				// Exit on the cheaper venue, offset on the other.
				if mark.primary.LessThanOrEqual(mark.secondary) {
					d.exitPrice, d.exitVenue = mark.primary, pos.Venue
					d.offsetPrice, d.offsetVenue = mark.secondary, mark.secondaryVenue
				} else {
					d.exitPrice, d.exitVenue = mark.secondary, mark.secondaryVenue
					d.offsetPrice, d.offsetVenue = mark.primary, pos.Venue
				}
				return d, true
			}
		}
	}
	return decision{}, false
}

// executeExit submits the closing trade and removes the position. Removal
// and exit submission are one logical transition; a position that fails to
// close stays tracked and is retried next tick.
func (t *Tracker) executeExit(ctx context.Context, pos *domain.Position, d decision) {
	var pnl decimal.Decimal

	if pos.Venue == domain.VenueDex {
		if !t.submitChainExit(ctx, pos) {
			return // submission failed, position stays open
		}
		pnl = pos.UnrealizedPNL(d.exitPrice)
		t.riskMg.ReleasePosition()
	} else {
		pnl = t.riskMg.RegisterExit(pos, d.exitPrice)
	}

	pos.Status = domain.StatusClosed
	pos.ExitPrice = d.exitPrice
	pos.ExitTime = time.Now().UTC()
	pos.CloseReason = closeReason(d.rule)
	pos.PNL = pnl
	if err := t.repo.Update(ctx, pos); err != nil {
		t.logger.Error(ctx, err, "Failed to persist position close", map[string]interface{}{"positionID": pos.ID})
	}
	t.remove(pos)

	t.logger.Info(ctx, "Position closed", map[string]interface{}{
		"rule":          string(d.rule),
		"venue":         d.exitVenue,
		"pair":          pos.Pair.Key(),
		"direction":     pos.Direction,
		"amount":        pos.Amount.StringFixed(6),
		"entryPrice":    pos.EntryPrice.String(),
		"exitPrice":     d.exitPrice.String(),
		"pnl":           pnl.StringFixed(2),
		"balance":       t.riskMg.Balance().StringFixed(2),
		"openPositions": len(t.positions),
	})

	if d.offset {
		t.openOffset(ctx, pos, d)
	}
}

// submitChainExit swaps the held token back to the base asset with the
// usual slippage bound and deadline.
func (t *Tracker) submitChainExit(ctx context.Context, pos *domain.Position) bool {
	if t.chain == nil {
		t.logger.Error(ctx, ports.ErrSubmissionFailed, "No chain gateway for on-chain exit", map[string]interface{}{"positionID": pos.ID})
		return false
	}
	amountIn := pos.Amount.Mul(weiUnit).BigInt()
	expected, err := t.chain.AmountOut(ctx, amountIn, pos.Pair.Base, pos.Pair.Quote)
	if err != nil {
		t.logger.Error(ctx, err, "Exit quote failed, holding position", map[string]interface{}{"positionID": pos.ID})
		return false
	}
	amountOutMin := decimal.NewFromBigInt(expected, 0).
		Mul(decimal.NewFromInt(1).Sub(t.cfg.Slippage)).
		Floor().BigInt()
	receipt, err := t.chain.SubmitSwap(ctx, pos.Pair.Base, pos.Pair.Quote, amountIn, amountOutMin,
		time.Now().Add(t.cfg.ExitDeadline))
	if err != nil {
		t.logger.Error(ctx, err, "Exit submission failed, holding position", map[string]interface{}{"positionID": pos.ID})
		return false
	}
	if !receipt.Success {
		t.logger.Error(ctx, ports.ErrSubmissionFailed, "Exit tx reverted, holding position", map[string]interface{}{
			"positionID": pos.ID, "tx": receipt.TxID,
		})
		return false
	}
	return true
}

// openOffset opens the offsetting trade of an arbitrage exit on the other
// venue.
func (t *Tracker) openOffset(ctx context.Context, closed *domain.Position, d decision) {
	direction := domain.DirectionLong
	if closed.Direction == domain.DirectionLong {
		direction = domain.DirectionShort
	}
	notional := closed.Amount.Mul(d.offsetPrice)
	if err := t.riskMg.ValidateEntry(notional); err != nil {
		t.logger.Warn(ctx, "Skipping arbitrage offset, entry rejected", map[string]interface{}{
			"pair": closed.Pair.Key(), "venue": d.offsetVenue, "reason": err.Error(),
		})
		return
	}

	offset := &domain.Position{
		Source:     closed.Source,
		Venue:      d.offsetVenue,
		Pair:       closed.Pair,
		Direction:  direction,
		Amount:     closed.Amount,
		EntryPrice: d.offsetPrice,
		EntryTime:  time.Now().UTC(),
		Status:     domain.StatusOpen,
	}
	t.riskMg.RegisterEntry(notional)
	id, err := t.repo.Create(ctx, offset)
	if err != nil {
		t.logger.Error(ctx, err, "Failed to persist arbitrage offset position", map[string]interface{}{"pair": closed.Pair.Key()})
	} else {
		offset.ID = id
	}
	t.positions = append(t.positions, offset)

	t.logger.Info(ctx, "Arbitrage offset opened", map[string]interface{}{
		"venue":      d.offsetVenue,
		"pair":       closed.Pair.Key(),
		"direction":  direction,
		"entryPrice": d.offsetPrice.String(),
		"balance":    t.riskMg.Balance().StringFixed(2),
	})
}

func (t *Tracker) remove(pos *domain.Position) {
	for i, p := range t.positions {
		if p == pos {
			t.positions = append(t.positions[:i], t.positions[i+1:]...)
			return
		}
	}
}

func closeReason(rule ExitRule) domain.CloseReason {
	switch rule {
	case RuleStopLoss:
		return domain.CloseReasonStopLoss
	case RuleTakeProfit:
		return domain.CloseReasonTakeProfit
	case RuleArbitrage:
		return domain.CloseReasonArbitrage
	default:
		return domain.CloseReasonUnknown
	}
}
