package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"whaleSnipeBot/config"
	"whaleSnipeBot/internal/domain"
	"whaleSnipeBot/internal/execution"
	"whaleSnipeBot/internal/opportunity"
	"whaleSnipeBot/internal/ports"
	"whaleSnipeBot/internal/risk"
	"whaleSnipeBot/internal/tracker"
	"whaleSnipeBot/internal/whalewatch"
)

const (
	// Buffered so the subscription goroutine never blocks between ticks.
	pairChannelSize = 64
)

// Service orchestrates one detection-and-execution cycle per tick: drain
// pending pool-creation events, fetch and scan recent transactions, attempt
// queued opportunities, then re-evaluate open positions. Ticks never
// overlap; everything inside a tick runs on the scheduler goroutine except
// the fan-out fetches, which are joined before use.
type Service struct {
	cfg       *config.Config
	logger    ports.Logger
	detector  *whalewatch.Detector
	queue     *opportunity.Queue
	engine    *execution.Engine
	tracker   *tracker.Tracker
	riskMg    *risk.Manager
	feeds     []ports.TradeFeed
	pairFeed  ports.PairFeed // nil disables sniping
	lists     ports.ListStore
	posRepo   ports.PositionRepository
	eventRepo ports.WhaleEventRepository

	pairCh chan domain.NewPair
}

// NewService creates the scheduling service.
func NewService(
	cfg *config.Config,
	logger ports.Logger,
	detector *whalewatch.Detector,
	queue *opportunity.Queue,
	engine *execution.Engine,
	trk *tracker.Tracker,
	riskMg *risk.Manager,
	feeds []ports.TradeFeed,
	pairFeed ports.PairFeed,
	lists ports.ListStore,
	posRepo ports.PositionRepository,
	eventRepo ports.WhaleEventRepository,
) (*Service, error) {
	if cfg == nil || logger == nil || detector == nil || queue == nil || engine == nil ||
		trk == nil || riskMg == nil || lists == nil || posRepo == nil || eventRepo == nil {
		return nil, fmt.Errorf("missing required dependencies for Service")
	}
	if cfg.TickInterval <= 0 {
		return nil, fmt.Errorf("configuration TickInterval must be positive")
	}
	if cfg.CallTimeout <= 0 {
		return nil, fmt.Errorf("configuration CallTimeout must be positive")
	}
	if len(cfg.WatchPairs) == 0 {
		return nil, fmt.Errorf("configuration WatchPairs must not be empty")
	}
	return &Service{
		cfg:       cfg,
		logger:    logger,
		detector:  detector,
		queue:     queue,
		engine:    engine,
		tracker:   trk,
		riskMg:    riskMg,
		feeds:     feeds,
		pairFeed:  pairFeed,
		lists:     lists,
		posRepo:   posRepo,
		eventRepo: eventRepo,
		pairCh:    make(chan domain.NewPair, pairChannelSize),
	}, nil
}

// Start begins the scheduling loop and blocks until the context is canceled
// or the pool subscription dies.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting scheduling service...")

	// Create a context that can be canceled by signals
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
		cancel()
	}()

	// --- Initialization Steps ---
	// 1. Restore open positions from the database.
	if err := s.tracker.Restore(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to restore open positions")
		return fmt.Errorf("failed to restore open positions: %w", err)
	}

	// 2. Re-enqueue persisted snipe candidates from the previous run.
	candidates, err := s.lists.LoadSnipeCandidates()
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load persisted snipe candidates")
		return fmt.Errorf("failed to load snipe candidates: %w", err)
	}
	requeued := 0
	for _, c := range candidates {
		opp := domain.Opportunity{
			ID:           c.PairID,
			Kind:         domain.OpportunitySnipe,
			Venue:        domain.VenueDex,
			AssetIn:      c.AssetIn,
			AssetOut:     c.AssetOut,
			Side:         domain.SideBuy,
			DiscoveredAt: time.Now().UTC(),
		}
		if s.queue.Add(opp) {
			requeued++
		}
	}
	s.logger.Info(ctx, "Initial state synchronized", map[string]interface{}{
		"openPositions":    s.tracker.Count(),
		"requeuedSnipes":   requeued,
		"startingBalance":  s.riskMg.Balance().StringFixed(2),
		"watchedPairCount": len(s.cfg.WatchPairs),
	})

	// --- Start pool-creation subscription ---
	var subDoneCh, subStopCh chan struct{}
	if s.pairFeed != nil {
		subDoneCh, subStopCh, err = s.pairFeed.SubscribePairCreated(ctx, s.handleNewPair, s.handleSubError)
		if err != nil {
			s.logger.Error(ctx, err, "Failed to start pool-creation subscription")
			return fmt.Errorf("failed to subscribe to pool creations: %w", err)
		}
		s.logger.Info(ctx, "Pool-creation subscription started")
	} else {
		s.logger.Warn(ctx, "No pool feed configured, sniping disabled")
	}

	// --- Main Loop ---
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")
			if subStopCh != nil {
				close(subStopCh)
				select {
				case <-subDoneCh:
					s.logger.Info(ctx, "Pool-creation subscription shut down gracefully")
				case <-time.After(5 * time.Second):
					s.logger.Warn(ctx, "Timeout waiting for pool-creation subscription to shut down")
				}
			}
			s.logger.Info(ctx, "Scheduling service stopped.")
			return nil
		case <-subDone(subDoneCh):
			s.logger.Error(ctx, fmt.Errorf("pool-creation subscription closed unexpectedly"), "Subscription stopped")
			return fmt.Errorf("pool-creation subscription stopped unexpectedly")
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

// subDone adapts a possibly-nil done channel for select; a nil feed never
// fires the case.
func subDone(ch chan struct{}) <-chan struct{} {
	if ch == nil {
		return nil
	}
	return ch
}

// handleNewPair runs on the subscription goroutine; it only hands the event
// to the scheduler. A full channel drops the event rather than blocking the
// feed.
func (s *Service) handleNewPair(pair domain.NewPair) {
	select {
	case s.pairCh <- pair:
	default:
		s.logger.Warn(context.Background(), "Pool event buffer full, dropping event", map[string]interface{}{
			"pairAddress": pair.PairAddress,
		})
	}
}

func (s *Service) handleSubError(err error) {
	s.logger.Error(context.Background(), err, "Pool-creation subscription error")
}

// runTick performs one full cycle. Steps are strictly ordered; a failure in
// one step is logged and the remaining steps still run, so one bad venue
// never stalls position management.
func (s *Service) runTick(ctx context.Context) {
	s.drainNewPairs(ctx)

	records := s.collectTransactions(ctx)
	s.detectWhales(ctx, records)

	s.drainQueue(ctx)

	s.tracker.EvaluateAll(ctx)

	closedProfit, err := s.posRepo.GetTotalProfit(ctx)
	if err != nil {
		s.logger.Warn(ctx, "Failed to read closed-position profit", map[string]interface{}{"error": err.Error()})
	}
	s.logger.Debug(ctx, "Tick complete", map[string]interface{}{
		"balance":       s.riskMg.Balance().StringFixed(2),
		"openPositions": s.tracker.Count(),
		"queueLength":   s.queue.Len(),
		"realizedPNL":   s.riskMg.RealizedPNL().StringFixed(2),
		"closedProfit":  fmt.Sprintf("%.2f", closedProfit),
	})
}

// drainNewPairs consumes pool-creation events buffered since the last tick.
// Only pools with a base-asset leg are candidates.
func (s *Service) drainNewPairs(ctx context.Context) {
	base := s.cfg.WETHAddress
	for {
		select {
		case pair := <-s.pairCh:
			if pair.Token0 != base && pair.Token1 != base {
				s.logger.Debug(ctx, "Ignoring pool without base-asset leg", map[string]interface{}{
					"pairAddress": pair.PairAddress,
					"token0":      pair.Token0,
					"token1":      pair.Token1,
				})
				continue
			}
			opp := domain.SnipeOpportunity(pair, base, time.Now().UTC())
			if !s.queue.Add(opp) {
				continue
			}
			if err := s.lists.AppendSnipeCandidate(ports.SnipeCandidate{
				PairID:   opp.ID,
				AssetIn:  opp.AssetIn,
				AssetOut: opp.AssetOut,
			}); err != nil {
				s.logger.Error(ctx, err, "Failed to persist snipe candidate", map[string]interface{}{"pairAddress": opp.ID})
			}
			s.logger.Info(ctx, "New snipe candidate", map[string]interface{}{
				"pairAddress": opp.ID,
				"assetOut":    opp.AssetOut,
			})
		default:
			return
		}
	}
}

// collectTransactions fetches recent transactions from every feed for every
// watched pair concurrently. Failed fetches are logged and skipped; results
// keep a deterministic feed-then-pair order regardless of completion order.
func (s *Service) collectTransactions(ctx context.Context) []domain.TransactionRecord {
	type task struct {
		feed ports.TradeFeed
		pair domain.AssetPair
	}
	var tasks []task
	for _, feed := range s.feeds {
		for _, pair := range s.cfg.WatchPairs {
			tasks = append(tasks, task{feed: feed, pair: pair})
		}
	}
	if len(tasks) == 0 {
		return nil
	}

	results := make([][]domain.TransactionRecord, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	for i, tk := range tasks {
		i, tk := i, tk
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, s.cfg.CallTimeout)
			defer cancel()
			recs, err := tk.feed.ListRecentTransactions(callCtx, tk.pair, s.cfg.TradeFetchLimit)
			if err != nil {
				s.logger.Warn(ctx, "Transaction fetch failed, skipping venue this tick", map[string]interface{}{
					"venue": tk.feed.Venue(),
					"pair":  tk.pair.Key(),
					"error": err.Error(),
				})
				return nil
			}
			results[i] = recs
			return nil
		})
	}
	_ = g.Wait()

	var records []domain.TransactionRecord
	for _, recs := range results {
		records = append(records, recs...)
	}
	return records
}

// detectWhales scans the collected transactions, persists each detected
// event and enqueues the corresponding copy-trade opportunity.
func (s *Service) detectWhales(ctx context.Context, records []domain.TransactionRecord) {
	if len(records) == 0 {
		return
	}
	events := s.detector.Detect(records)
	for i := range events {
		ev := events[i]
		if _, err := s.eventRepo.CreateEvent(ctx, &ev); err != nil {
			s.logger.Error(ctx, err, "Failed to persist whale event", map[string]interface{}{
				"kind": ev.Kind, "wallet": ev.Wallet,
			})
		}
		s.logger.Info(ctx, "Whale event detected", map[string]interface{}{
			"kind":     ev.Kind,
			"venue":    ev.Venue,
			"chain":    ev.Chain,
			"wallet":   ev.Wallet,
			"side":     ev.Side,
			"usdValue": ev.USDValue.StringFixed(2),
			"txCount":  len(ev.TxIDs),
		})

		opp := domain.WhaleOpportunity(ev, time.Now().UTC())
		if opp.Venue == domain.VenueChain {
			// Raw on-chain transfers have no order book; the copy trade is
			// placed on the exchange instead.
			opp.Venue = domain.VenueBinance
		}
		s.queue.Add(opp)
	}
}

// drainQueue attempts every queued opportunity once. A fill removes the
// opportunity and hands the position to the tracker; an error counts
// against the retry budget (insufficient liquidity included), with terminal
// errors discarded outright; a risk-limit skip keeps the opportunity for
// the next tick without charging the budget.
func (s *Service) drainQueue(ctx context.Context) {
	for _, opp := range s.queue.Items() {
		res, err := s.engine.Attempt(ctx, opp)
		if err != nil {
			terminal := errors.Is(err, ports.ErrZeroLiquidity) || errors.Is(err, ports.ErrInvalidRequest)
			discarded := s.queue.Fail(opp, terminal)
			s.logger.Warn(ctx, "Execution attempt failed", map[string]interface{}{
				"opportunityID": opp.ID,
				"kind":          opp.Kind,
				"attempts":      opp.Attempts,
				"discarded":     discarded,
				"error":         err.Error(),
			})
			continue
		}
		if res.Skipped {
			s.logger.Debug(ctx, "Opportunity skipped, retained for next tick", map[string]interface{}{
				"opportunityID": opp.ID,
				"reason":        res.Reason,
			})
			continue
		}
		s.queue.Remove(opp)
		s.tracker.Add(res.Position)
	}
}
