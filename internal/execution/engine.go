package execution

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"whaleSnipeBot/internal/domain"
	"whaleSnipeBot/internal/ports"
	"whaleSnipeBot/internal/risk"
)

// weiUnit converts 18-decimal on-chain units to decimal amounts.
var weiUnit = decimal.New(1, 18)

// Config holds the entry parameters.
type Config struct {
	BaseAsset     string          // wrapped native token address used as the snipe input leg
	EntryAmount   decimal.Decimal // snipe input size in base-asset units, e.g. 0.1
	MinLiquidity  *big.Int        // pool accounting-token supply floor
	Slippage      decimal.Decimal // fractional tolerance, e.g. 0.05
	EntryDeadline time.Duration   // absolute deadline offset for submitted entries
	CopyFraction  decimal.Decimal // share of a whale's USD value to copy, e.g. 0.1
}

// Result is the outcome of one execution attempt. Exactly one of Position
// (filled) or Skipped is set on a non-error return.
type Result struct {
	Position *domain.Position
	Skipped  bool
	Reason   string
}

// Engine validates and executes candidate entries. A returned error means
// the attempt failed and the opportunity should be retried (or discarded if
// the error is terminal, e.g. ErrZeroLiquidity).
type Engine struct {
	cfg    Config
	logger ports.Logger
	chain  ports.ChainGateway
	quotes map[domain.Venue]ports.QuoteGateway
	riskMg *risk.Manager
	lists  ports.ListStore
	repo   ports.PositionRepository
}

// NewEngine creates a new execution engine.
func NewEngine(
	cfg Config,
	logger ports.Logger,
	chain ports.ChainGateway,
	quotes map[domain.Venue]ports.QuoteGateway,
	riskMg *risk.Manager,
	lists ports.ListStore,
	repo ports.PositionRepository,
) (*Engine, error) {
	if logger == nil || chain == nil || riskMg == nil || lists == nil || repo == nil {
		return nil, fmt.Errorf("missing required dependencies for execution engine")
	}
	if cfg.BaseAsset == "" {
		return nil, fmt.Errorf("base asset is required")
	}
	if !cfg.EntryAmount.IsPositive() {
		return nil, fmt.Errorf("entry amount must be positive")
	}
	if cfg.Slippage.IsNegative() || cfg.Slippage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("slippage must be in [0, 1)")
	}
	if cfg.MinLiquidity == nil || cfg.MinLiquidity.Sign() <= 0 {
		return nil, fmt.Errorf("minimum liquidity floor must be positive")
	}
	if cfg.EntryDeadline <= 0 {
		return nil, fmt.Errorf("entry deadline offset must be positive")
	}
	if !cfg.CopyFraction.IsPositive() || cfg.CopyFraction.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("copy fraction must be in (0, 1]")
	}
	return &Engine{
		cfg:    cfg,
		logger: logger,
		chain:  chain,
		quotes: quotes,
		riskMg: riskMg,
		lists:  lists,
		repo:   repo,
	}, nil
}

// Attempt tries to turn one opportunity into an open position.
func (e *Engine) Attempt(ctx context.Context, opp *domain.Opportunity) (Result, error) {
	switch opp.Kind {
	case domain.OpportunitySnipe:
		return e.attemptSnipe(ctx, opp)
	case domain.OpportunityWhale:
		return e.attemptWhale(ctx, opp)
	default:
		return Result{}, fmt.Errorf("%w: unknown opportunity kind %q", ports.ErrInvalidRequest, opp.Kind)
	}
}

// attemptSnipe buys the newly listed token on the dex: liquidity floor
// check, slippage-bounded quote, swap with deadline, position on a
// confirmed fill.
func (e *Engine) attemptSnipe(ctx context.Context, opp *domain.Opportunity) (Result, error) {
	op := "attemptSnipe"

	if opp.AssetIn != e.cfg.BaseAsset {
		return Result{}, fmt.Errorf("%w: snipe input leg %s does not match base asset %s",
			ports.ErrInvalidRequest, opp.AssetIn, e.cfg.BaseAsset)
	}

	liquidity, err := e.chain.PoolLiquidity(ctx, opp.ID)
	if err != nil {
		return Result{}, fmt.Errorf("liquidity check for pool %s: %w", opp.ID, err)
	}
	if liquidity.Sign() == 0 {
		return Result{}, fmt.Errorf("%w: pool %s", ports.ErrZeroLiquidity, opp.ID)
	}
	if liquidity.Cmp(e.cfg.MinLiquidity) < 0 {
		return Result{}, fmt.Errorf("%w: pool %s supply %s under floor %s",
			ports.ErrInsufficientLiquidity, opp.ID, liquidity.String(), e.cfg.MinLiquidity.String())
	}

	if err := e.riskMg.ValidateEntry(decimal.Zero); err != nil {
		return Result{Skipped: true, Reason: err.Error()}, nil
	}

	amountIn := e.cfg.EntryAmount.Mul(weiUnit).BigInt()
	expected, err := e.chain.AmountOut(ctx, amountIn, opp.AssetIn, opp.AssetOut)
	if err != nil {
		return Result{}, fmt.Errorf("entry quote for %s: %w", opp.AssetOut, err)
	}

	// Guaranteed-worst-case output under the slippage tolerance; rounding is
	// floor, applied only here.
	amountOutMin := decimal.NewFromBigInt(expected, 0).
		Mul(decimal.NewFromInt(1).Sub(e.cfg.Slippage)).
		Floor().BigInt()

	deadline := time.Now().Add(e.cfg.EntryDeadline)
	receipt, err := e.chain.SubmitSwap(ctx, opp.AssetIn, opp.AssetOut, amountIn, amountOutMin, deadline)
	if err != nil {
		return Result{}, fmt.Errorf("entry submission for %s: %w", opp.AssetOut, err)
	}
	if !receipt.Success {
		return Result{}, fmt.Errorf("%w: entry tx %s reverted", ports.ErrSubmissionFailed, receipt.TxID)
	}

	// Entry price is the worst-case fill ratio amountOutMin/amountIn, in
	// token-out units per one base-asset unit. In that orientation the token
	// appreciating shows up as the ratio falling, so the position tracks
	// short against its entry ratio.
	entryPrice := decimal.NewFromBigInt(amountOutMin, 0).Div(decimal.NewFromBigInt(amountIn, 0))

	pos := &domain.Position{
		Source:      domain.SourceSnipe,
		Venue:       domain.VenueDex,
		Pair:        domain.AssetPair{Base: opp.AssetOut, Quote: opp.AssetIn},
		Direction:   domain.DirectionShort,
		Amount:      decimal.NewFromBigInt(amountOutMin, 0).Div(weiUnit),
		EntryPrice:  entryPrice,
		EntryTime:   time.Now().UTC(),
		Status:      domain.StatusOpen,
		BlockNumber: receipt.BlockNumber,
		TxID:        receipt.TxID,
	}
	if id, err := e.repo.Create(ctx, pos); err != nil {
		e.logger.Error(ctx, err, op+": Failed to persist filled position", map[string]interface{}{"pool": opp.ID})
	} else {
		pos.ID = id
	}
	if err := e.lists.AppendFilledRecord(ports.FilledRecord{
		BlockNumber: receipt.BlockNumber,
		AssetIn:     opp.AssetIn,
		AssetOut:    opp.AssetOut,
		EntryPrice:  entryPrice.String(),
	}); err != nil {
		e.logger.Error(ctx, err, op+": Failed to append filled record", map[string]interface{}{"pool": opp.ID})
	}
	e.riskMg.AdoptPosition() // on-chain entries spend real funds, not the simulated balance

	e.logger.Info(ctx, op+": Entry filled", map[string]interface{}{
		"venue":         domain.VenueDex,
		"pool":          opp.ID,
		"assetOut":      opp.AssetOut,
		"amountIn":      amountIn.String(),
		"amountOutMin":  amountOutMin.String(),
		"entryPrice":    entryPrice.String(),
		"block":         receipt.BlockNumber,
		"openPositions": e.riskMg.OpenPositions(),
	})
	return Result{Position: pos}, nil
}

// attemptWhale opens a simulated copy trade sized as a fraction of the
// whale's aggregate USD value, debiting the simulated balance.
func (e *Engine) attemptWhale(ctx context.Context, opp *domain.Opportunity) (Result, error) {
	op := "attemptWhale"

	gateway, ok := e.quotes[opp.Venue]
	if !ok {
		return Result{}, fmt.Errorf("%w: no quote gateway for venue %s", ports.ErrQuoteUnavailable, opp.Venue)
	}
	pair := domain.AssetPair{Base: opp.AssetOut, Quote: opp.AssetIn}
	price, err := gateway.Quote(ctx, pair)
	if err != nil {
		return Result{}, fmt.Errorf("entry quote for %s: %w", pair.Symbol(), err)
	}
	if !price.IsPositive() {
		return Result{}, fmt.Errorf("%w: non-positive price for %s", ports.ErrQuoteUnavailable, pair.Symbol())
	}

	notional := opp.USDValue.Mul(e.cfg.CopyFraction)
	if err := e.riskMg.ValidateEntry(notional); err != nil {
		e.logger.Info(ctx, op+": Entry rejected by risk limits, keeping for retry", map[string]interface{}{
			"pair":   pair.Symbol(),
			"reason": err.Error(),
		})
		return Result{Skipped: true, Reason: err.Error()}, nil
	}

	pos := &domain.Position{
		Source:     domain.SourceWhale,
		Venue:      opp.Venue,
		Pair:       pair,
		Direction:  opp.Side.Direction(),
		Amount:     notional.Div(price),
		EntryPrice: price,
		EntryTime:  time.Now().UTC(),
		Status:     domain.StatusOpen,
	}
	e.riskMg.RegisterEntry(notional)
	if id, err := e.repo.Create(ctx, pos); err != nil {
		e.logger.Error(ctx, err, op+": Failed to persist simulated position", map[string]interface{}{"pair": pair.Symbol()})
	} else {
		pos.ID = id
	}

	e.logger.Info(ctx, op+": Simulated entry opened", map[string]interface{}{
		"venue":         opp.Venue,
		"pair":          pair.Symbol(),
		"direction":     pos.Direction,
		"amount":        pos.Amount.StringFixed(6),
		"entryPrice":    price.String(),
		"notionalUSD":   notional.StringFixed(2),
		"balance":       e.riskMg.Balance().StringFixed(2),
		"openPositions": e.riskMg.OpenPositions(),
	})
	return Result{Position: pos}, nil
}
