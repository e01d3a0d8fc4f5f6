package app

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whaleSnipeBot/config"
	"whaleSnipeBot/internal/domain"
	"whaleSnipeBot/internal/execution"
	"whaleSnipeBot/internal/opportunity"
	"whaleSnipeBot/internal/ports"
	"whaleSnipeBot/internal/risk"
	"whaleSnipeBot/internal/tracker"
	"whaleSnipeBot/internal/whalewatch"
)

// Mock implementations
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockTradeFeed struct {
	venue   domain.Venue
	records []domain.TransactionRecord
	err     error
	calls   int
}

func (m *mockTradeFeed) Venue() domain.Venue { return m.venue }

func (m *mockTradeFeed) ListRecentTransactions(ctx context.Context, pair domain.AssetPair, limit int) ([]domain.TransactionRecord, error) {
	m.calls++
	return m.records, m.err
}

type mockChain struct {
	liquidity *big.Int
	amountOut *big.Int
	receipt   *ports.Receipt
}

func (m *mockChain) PoolLiquidity(ctx context.Context, pairAddress string) (*big.Int, error) {
	return m.liquidity, nil
}

func (m *mockChain) AmountOut(ctx context.Context, amountIn *big.Int, assetIn, assetOut string) (*big.Int, error) {
	return m.amountOut, nil
}

func (m *mockChain) SubmitSwap(ctx context.Context, assetIn, assetOut string, amountIn, amountOutMin *big.Int, deadline time.Time) (*ports.Receipt, error) {
	return m.receipt, nil
}

type mockQuoter struct {
	price decimal.Decimal
	err   error
}

func (m *mockQuoter) Quote(ctx context.Context, pair domain.AssetPair) (decimal.Decimal, error) {
	return m.price, m.err
}

type mockListStore struct {
	candidates []ports.SnipeCandidate
	filled     []ports.FilledRecord
}

func (m *mockListStore) AppendSnipeCandidate(c ports.SnipeCandidate) error {
	m.candidates = append(m.candidates, c)
	return nil
}

func (m *mockListStore) LoadSnipeCandidates() ([]ports.SnipeCandidate, error) {
	return m.candidates, nil
}

func (m *mockListStore) AppendFilledRecord(r ports.FilledRecord) error {
	m.filled = append(m.filled, r)
	return nil
}

func (m *mockListStore) LoadFilledRecords() ([]ports.FilledRecord, error) {
	return m.filled, nil
}

type mockPositionRepo struct {
	created     []*domain.Position
	updated     []*domain.Position
	nextID      int64
	profitCalls int
}

func (m *mockPositionRepo) Create(ctx context.Context, pos *domain.Position) (int64, error) {
	m.nextID++
	m.created = append(m.created, pos)
	return m.nextID, nil
}

func (m *mockPositionRepo) Update(ctx context.Context, pos *domain.Position) error {
	m.updated = append(m.updated, pos)
	return nil
}

func (m *mockPositionRepo) FindOpen(ctx context.Context) ([]*domain.Position, error) {
	return nil, nil
}

func (m *mockPositionRepo) GetTotalProfit(ctx context.Context) (float64, error) {
	m.profitCalls++
	return 0, nil
}

type mockEventRepo struct {
	events []*domain.WhaleEvent
}

func (m *mockEventRepo) CreateEvent(ctx context.Context, ev *domain.WhaleEvent) (int64, error) {
	m.events = append(m.events, ev)
	return int64(len(m.events)), nil
}

func (m *mockEventRepo) CountEvents(ctx context.Context) (int, error) {
	return len(m.events), nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fixture struct {
	svc       *Service
	queue     *opportunity.Queue
	trk       *tracker.Tracker
	riskMg    *risk.Manager
	posRepo   *mockPositionRepo
	eventRepo *mockEventRepo
	lists     *mockListStore
	chain     *mockChain
	feed      *mockTradeFeed
}

func newFixture(t *testing.T, feed *mockTradeFeed, chain *mockChain, binancePrice decimal.Decimal) *fixture {
	t.Helper()
	logger := &mockLogger{}

	cfg := &config.Config{
		LargeTxThreshold:     dec("1000000"),
		ConsecutiveThreshold: dec("500000"),
		TimeWindow:           10 * time.Minute,
		WatchPairs:           []domain.AssetPair{{Base: "ETH", Quote: "USDT"}},
		TradeFetchLimit:      500,
		MinLiquidity:         big.NewInt(1000),
		EntryAmount:          dec("0.1"),
		Slippage:             dec("0.05"),
		EntryDeadline:        10 * time.Minute,
		StopLoss:             dec("0.1"),
		TakeProfit:           dec("0.2"),
		VenueFee:             dec("0.001"),
		CopyFraction:         dec("0.1"),
		SimBalance:           dec("1000000"),
		MaxOpenPositions:     10,
		TickInterval:         time.Second,
		CallTimeout:          time.Second,
		MaxAttempts:          3,
		WETHAddress:          "0xweth",
	}

	detector, err := whalewatch.New(whalewatch.Config{
		LargeTxThreshold:     cfg.LargeTxThreshold,
		ConsecutiveThreshold: cfg.ConsecutiveThreshold,
		TimeWindow:           cfg.TimeWindow,
	}, logger)
	require.NoError(t, err)

	queue, err := opportunity.NewQueue(cfg.MaxAttempts, logger)
	require.NoError(t, err)

	riskMg, err := risk.NewManager(risk.Config{
		StartingBalance:  cfg.SimBalance,
		MaxOpenPositions: cfg.MaxOpenPositions,
		VenueFee:         cfg.VenueFee,
	})
	require.NoError(t, err)

	posRepo := &mockPositionRepo{}
	lists := &mockListStore{}
	quotes := map[domain.Venue]ports.QuoteGateway{
		domain.VenueBinance: &mockQuoter{price: binancePrice},
	}

	engine, err := execution.NewEngine(execution.Config{
		BaseAsset:     cfg.WETHAddress,
		EntryAmount:   cfg.EntryAmount,
		MinLiquidity:  cfg.MinLiquidity,
		Slippage:      cfg.Slippage,
		EntryDeadline: cfg.EntryDeadline,
		CopyFraction:  cfg.CopyFraction,
	}, logger, chain, quotes, riskMg, lists, posRepo)
	require.NoError(t, err)

	trk, err := tracker.NewTracker(tracker.Config{
		StopLossPct:   cfg.StopLoss,
		TakeProfitPct: cfg.TakeProfit,
		Slippage:      cfg.Slippage,
		VenueFee:      cfg.VenueFee,
	}, logger, chain, quotes, riskMg, posRepo)
	require.NoError(t, err)

	eventRepo := &mockEventRepo{}
	svc, err := NewService(cfg, logger, detector, queue, engine, trk, riskMg,
		[]ports.TradeFeed{feed}, nil, lists, posRepo, eventRepo)
	require.NoError(t, err)

	return &fixture{
		svc:       svc,
		queue:     queue,
		trk:       trk,
		riskMg:    riskMg,
		posRepo:   posRepo,
		eventRepo: eventRepo,
		lists:     lists,
		chain:     chain,
		feed:      feed,
	}
}

func whaleTx(wallet, usd string, ts time.Time) domain.TransactionRecord {
	return domain.TransactionRecord{
		Venue:     domain.VenueBinance,
		Chain:     "ETH",
		Wallet:    wallet,
		Amount:    dec("1"),
		Side:      domain.SideBuy,
		Timestamp: ts,
		USDValue:  dec(usd),
		TxID:      wallet + "-" + usd + "-" + ts.String(),
	}
}

func TestRunTick_EmptyTickIsIdempotent(t *testing.T) {
	feed := &mockTradeFeed{venue: domain.VenueBinance}
	f := newFixture(t, feed, &mockChain{}, dec("100"))
	ctx := context.Background()

	f.svc.runTick(ctx)
	f.svc.runTick(ctx)

	assert.Equal(t, 0, f.queue.Len())
	assert.Equal(t, 0, f.trk.Count())
	assert.Empty(t, f.posRepo.created)
	assert.Empty(t, f.eventRepo.events)
	assert.True(t, f.riskMg.Balance().Equal(dec("1000000")))
	assert.Equal(t, 2, feed.calls)
	// The tick summary reads the persisted closed-position profit each cycle.
	assert.Equal(t, 2, f.posRepo.profitCalls)
}

func TestRunTick_WhaleDetectionToPosition(t *testing.T) {
	now := time.Now().UTC()
	feed := &mockTradeFeed{
		venue: domain.VenueBinance,
		records: []domain.TransactionRecord{
			whaleTx("0xwhale", "1500000", now),
		},
	}
	f := newFixture(t, feed, &mockChain{}, dec("100"))
	ctx := context.Background()

	f.svc.runTick(ctx)

	require.Len(t, f.eventRepo.events, 1)
	assert.Equal(t, domain.WhaleSingleLarge, f.eventRepo.events[0].Kind)

	// The copy trade fills in the same tick and leaves the queue empty.
	assert.Equal(t, 0, f.queue.Len())
	require.Equal(t, 1, f.trk.Count())
	pos := f.trk.Open()[0]
	assert.Equal(t, domain.SourceWhale, pos.Source)
	assert.Equal(t, domain.VenueBinance, pos.Venue)
	assert.Equal(t, domain.DirectionLong, pos.Direction)
	// 10% of $1.5M at price 100 is 1500 units.
	assert.True(t, pos.Amount.Equal(dec("1500")), "amount was %s", pos.Amount)
	assert.True(t, f.riskMg.Balance().LessThan(dec("1000000")))
}

func TestRunTick_SameRecordsDoNotDoubleEnqueue(t *testing.T) {
	// An opportunity already in the queue for the pair blocks re-adding, so
	// re-scanning the same whale burst cannot open a second position while
	// the first attempt is pending. After the fill the position guard is the
	// risk limit, exercised elsewhere.
	now := time.Now().UTC()
	feed := &mockTradeFeed{
		venue: domain.VenueBinance,
		records: []domain.TransactionRecord{
			whaleTx("0xwhale", "1500000", now),
		},
	}
	// An unquotable venue keeps the opportunity queued instead of filling.
	f := newFixture(t, feed, &mockChain{}, decimal.Decimal{})
	quoteErr := &mockQuoter{err: ports.ErrQuoteUnavailable}
	f.svc.engine = mustEngine(t, f, quoteErr)

	ctx := context.Background()
	f.svc.runTick(ctx)
	firstLen := f.queue.Len()
	f.svc.runTick(ctx)

	assert.Equal(t, firstLen, f.queue.Len())
	assert.LessOrEqual(t, f.queue.Len(), 1)
}

func mustEngine(t *testing.T, f *fixture, quoter ports.QuoteGateway) *execution.Engine {
	t.Helper()
	engine, err := execution.NewEngine(execution.Config{
		BaseAsset:     "0xweth",
		EntryAmount:   dec("0.1"),
		MinLiquidity:  big.NewInt(1000),
		Slippage:      dec("0.05"),
		EntryDeadline: 10 * time.Minute,
		CopyFraction:  dec("0.1"),
	}, &mockLogger{}, f.chain, map[domain.Venue]ports.QuoteGateway{domain.VenueBinance: quoter}, f.riskMg, f.lists, f.posRepo)
	require.NoError(t, err)
	return engine
}

func TestDrainNewPairs(t *testing.T) {
	feed := &mockTradeFeed{venue: domain.VenueBinance}
	f := newFixture(t, feed, &mockChain{}, dec("100"))
	ctx := context.Background()

	f.svc.handleNewPair(domain.NewPair{Token0: "0xweth", Token1: "0xtoken", PairAddress: "0xpair"})
	f.svc.handleNewPair(domain.NewPair{Token0: "0xaaa", Token1: "0xbbb", PairAddress: "0xother"})

	f.svc.drainNewPairs(ctx)

	// Only the pool with the base-asset leg becomes a candidate.
	assert.Equal(t, 1, f.queue.Len())
	require.Len(t, f.lists.candidates, 1)
	assert.Equal(t, "0xpair", f.lists.candidates[0].PairID)
	assert.Equal(t, "0xweth", f.lists.candidates[0].AssetIn)
	assert.Equal(t, "0xtoken", f.lists.candidates[0].AssetOut)
}

func TestDrainQueue_RetryBudget(t *testing.T) {
	feed := &mockTradeFeed{venue: domain.VenueBinance}
	// Zero liquidity is a terminal failure; the opportunity is discarded on
	// the first attempt.
	chain := &mockChain{liquidity: big.NewInt(0)}
	f := newFixture(t, feed, chain, dec("100"))
	ctx := context.Background()

	f.queue.Add(domain.Opportunity{
		ID:           "0xpair",
		Kind:         domain.OpportunitySnipe,
		Venue:        domain.VenueDex,
		AssetIn:      "0xweth",
		AssetOut:     "0xtoken",
		Side:         domain.SideBuy,
		DiscoveredAt: time.Now().UTC(),
	})

	f.svc.drainQueue(ctx)

	assert.Equal(t, 0, f.queue.Len())
	assert.Empty(t, f.posRepo.created)
}

func TestDrainQueue_BelowFloorBoundedRetry(t *testing.T) {
	feed := &mockTradeFeed{venue: domain.VenueBinance}
	// Liquidity below the floor but nonzero charges the retry budget each
	// tick; the candidate is discarded once MaxAttempts is reached.
	chain := &mockChain{liquidity: big.NewInt(10)}
	f := newFixture(t, feed, chain, dec("100"))
	ctx := context.Background()

	f.queue.Add(domain.Opportunity{
		ID:           "0xpair",
		Kind:         domain.OpportunitySnipe,
		Venue:        domain.VenueDex,
		AssetIn:      "0xweth",
		AssetOut:     "0xtoken",
		Side:         domain.SideBuy,
		DiscoveredAt: time.Now().UTC(),
	})

	f.svc.drainQueue(ctx)
	f.svc.drainQueue(ctx)
	assert.Equal(t, 1, f.queue.Len(), "two failed attempts stay within the budget of 3")

	f.svc.drainQueue(ctx)
	assert.Equal(t, 0, f.queue.Len(), "third failed attempt exhausts the budget")
	assert.Empty(t, f.posRepo.created)
}
