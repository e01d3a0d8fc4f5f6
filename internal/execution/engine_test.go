package execution

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whaleSnipeBot/internal/domain"
	"whaleSnipeBot/internal/ports"
	"whaleSnipeBot/internal/risk"
)

// Mock implementations
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockChain struct {
	liquidity    *big.Int
	liquidityErr error
	amountOut    *big.Int
	amountOutErr error
	receipt      *ports.Receipt
	submitErr    error
	submits      int
	lastMinOut   *big.Int
}

func (m *mockChain) PoolLiquidity(ctx context.Context, pairAddress string) (*big.Int, error) {
	return m.liquidity, m.liquidityErr
}

func (m *mockChain) AmountOut(ctx context.Context, amountIn *big.Int, assetIn, assetOut string) (*big.Int, error) {
	return m.amountOut, m.amountOutErr
}

func (m *mockChain) SubmitSwap(ctx context.Context, assetIn, assetOut string, amountIn, amountOutMin *big.Int, deadline time.Time) (*ports.Receipt, error) {
	m.submits++
	m.lastMinOut = amountOutMin
	return m.receipt, m.submitErr
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
	created []*domain.Position
	nextID  int64
}

func (m *mockPositionRepo) Create(ctx context.Context, pos *domain.Position) (int64, error) {
	m.nextID++
	m.created = append(m.created, pos)
	return m.nextID, nil
}

func (m *mockPositionRepo) Update(ctx context.Context, pos *domain.Position) error { return nil }

func (m *mockPositionRepo) FindOpen(ctx context.Context) ([]*domain.Position, error) {
	return nil, nil
}

func (m *mockPositionRepo) GetTotalProfit(ctx context.Context) (float64, error) {
	return 0, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func bigFromString(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	return v
}

type engineFixture struct {
	engine *Engine
	chain  *mockChain
	riskMg *risk.Manager
	lists  *mockListStore
	repo   *mockPositionRepo
}

func newEngineFixture(t *testing.T, chain *mockChain, quotes map[domain.Venue]ports.QuoteGateway) *engineFixture {
	t.Helper()
	riskMg, err := risk.NewManager(risk.Config{
		StartingBalance:  dec("1000000"),
		MaxOpenPositions: 5,
		VenueFee:         dec("0.001"),
	})
	require.NoError(t, err)

	lists := &mockListStore{}
	repo := &mockPositionRepo{}
	engine, err := NewEngine(Config{
		BaseAsset:     "0xweth",
		EntryAmount:   dec("0.1"),
		MinLiquidity:  big.NewInt(1000),
		Slippage:      dec("0.05"),
		EntryDeadline: 10 * time.Minute,
		CopyFraction:  dec("0.1"),
	}, &mockLogger{}, chain, quotes, riskMg, lists, repo)
	require.NoError(t, err)

	return &engineFixture{engine: engine, chain: chain, riskMg: riskMg, lists: lists, repo: repo}
}

func snipeOpp() *domain.Opportunity {
	return &domain.Opportunity{
		ID:           "0xpair",
		Kind:         domain.OpportunitySnipe,
		Venue:        domain.VenueDex,
		AssetIn:      "0xweth",
		AssetOut:     "0xtoken",
		Side:         domain.SideBuy,
		DiscoveredAt: time.Now().UTC(),
	}
}

func whaleOpp(usd string) *domain.Opportunity {
	return &domain.Opportunity{
		ID:           "whale:binance:ETH:1",
		Kind:         domain.OpportunityWhale,
		Venue:        domain.VenueBinance,
		AssetIn:      "USDT",
		AssetOut:     "ETH",
		Side:         domain.SideBuy,
		USDValue:     dec(usd),
		DiscoveredAt: time.Now().UTC(),
	}
}

func TestAttemptSnipe(t *testing.T) {
	t.Run("zero liquidity is a terminal failure", func(t *testing.T) {
		chain := &mockChain{liquidity: big.NewInt(0)}
		f := newEngineFixture(t, chain, nil)

		_, err := f.engine.Attempt(context.Background(), snipeOpp())

		assert.ErrorIs(t, err, ports.ErrZeroLiquidity)
		assert.Equal(t, 0, chain.submits)
	})

	t.Run("liquidity below floor is a retryable failure", func(t *testing.T) {
		chain := &mockChain{liquidity: big.NewInt(999)}
		f := newEngineFixture(t, chain, nil)

		_, err := f.engine.Attempt(context.Background(), snipeOpp())

		assert.ErrorIs(t, err, ports.ErrInsufficientLiquidity)
		assert.NotErrorIs(t, err, ports.ErrZeroLiquidity)
		assert.Equal(t, 0, chain.submits)
		assert.Empty(t, f.repo.created)
	})

	t.Run("input leg other than the base asset is rejected", func(t *testing.T) {
		chain := &mockChain{liquidity: big.NewInt(5000)}
		f := newEngineFixture(t, chain, nil)
		opp := snipeOpp()
		opp.AssetIn = "0xother"

		_, err := f.engine.Attempt(context.Background(), opp)

		assert.ErrorIs(t, err, ports.ErrInvalidRequest)
		assert.Equal(t, 0, chain.submits)
	})

	t.Run("successful fill records the position", func(t *testing.T) {
		expected := bigFromString(t, "200000000000000000") // 0.2 token out
		chain := &mockChain{
			liquidity: big.NewInt(5000),
			amountOut: expected,
			receipt:   &ports.Receipt{Success: true, BlockNumber: 123, TxID: "0xfill"},
		}
		f := newEngineFixture(t, chain, nil)

		res, err := f.engine.Attempt(context.Background(), snipeOpp())

		require.NoError(t, err)
		require.NotNil(t, res.Position)
		pos := res.Position

		// minOut = floor(expected * 0.95)
		assert.Equal(t, bigFromString(t, "190000000000000000"), chain.lastMinOut)
		// entry price = minOut / amountIn = 1.9e17 / 1e17
		assert.True(t, pos.EntryPrice.Equal(dec("1.9")), "entry price was %s", pos.EntryPrice)
		assert.Equal(t, domain.SourceSnipe, pos.Source)
		assert.Equal(t, domain.VenueDex, pos.Venue)
		assert.Equal(t, uint64(123), pos.BlockNumber)
		assert.Equal(t, "0xfill", pos.TxID)
		assert.Equal(t, domain.StatusOpen, pos.Status)

		require.Len(t, f.repo.created, 1)
		require.Len(t, f.lists.filled, 1)
		assert.Equal(t, uint64(123), f.lists.filled[0].BlockNumber)
		assert.Equal(t, "1.9", f.lists.filled[0].EntryPrice)

		// On-chain fills count against the position limit but not the
		// simulated balance.
		assert.Equal(t, 1, f.riskMg.OpenPositions())
		assert.True(t, f.riskMg.Balance().Equal(dec("1000000")))
	})

	t.Run("reverted entry is retryable", func(t *testing.T) {
		chain := &mockChain{
			liquidity: big.NewInt(5000),
			amountOut: big.NewInt(1000),
			receipt:   &ports.Receipt{Success: false, TxID: "0xdead"},
		}
		f := newEngineFixture(t, chain, nil)

		_, err := f.engine.Attempt(context.Background(), snipeOpp())

		assert.ErrorIs(t, err, ports.ErrSubmissionFailed)
		assert.NotErrorIs(t, err, ports.ErrZeroLiquidity)
		assert.Empty(t, f.repo.created)
	})
}

func TestAttemptWhale(t *testing.T) {
	t.Run("opens a sized copy trade", func(t *testing.T) {
		quotes := map[domain.Venue]ports.QuoteGateway{
			domain.VenueBinance: &mockQuoter{price: dec("2000")},
		}
		f := newEngineFixture(t, &mockChain{}, quotes)

		res, err := f.engine.Attempt(context.Background(), whaleOpp("1500000"))

		require.NoError(t, err)
		require.NotNil(t, res.Position)
		pos := res.Position
		assert.Equal(t, domain.SourceWhale, pos.Source)
		assert.Equal(t, domain.DirectionLong, pos.Direction)
		// 10% of $1.5M at $2000 is 75 units.
		assert.True(t, pos.Amount.Equal(dec("75")), "amount was %s", pos.Amount)
		assert.True(t, pos.EntryPrice.Equal(dec("2000")))
		// Balance debited by notional plus fee.
		assert.True(t, f.riskMg.Balance().Equal(dec("849850")), "balance was %s", f.riskMg.Balance())
	})

	t.Run("risk rejection skips and retains", func(t *testing.T) {
		quotes := map[domain.Venue]ports.QuoteGateway{
			domain.VenueBinance: &mockQuoter{price: dec("2000")},
		}
		f := newEngineFixture(t, &mockChain{}, quotes)

		// 10% of $20M exceeds the starting balance.
		res, err := f.engine.Attempt(context.Background(), whaleOpp("20000000"))

		require.NoError(t, err)
		assert.True(t, res.Skipped)
		assert.Empty(t, f.repo.created)
		assert.True(t, f.riskMg.Balance().Equal(dec("1000000")))
	})

	t.Run("missing venue gateway fails the attempt", func(t *testing.T) {
		f := newEngineFixture(t, &mockChain{}, nil)

		_, err := f.engine.Attempt(context.Background(), whaleOpp("1500000"))

		assert.ErrorIs(t, err, ports.ErrQuoteUnavailable)
	})

	t.Run("sell side opens a short copy", func(t *testing.T) {
		quotes := map[domain.Venue]ports.QuoteGateway{
			domain.VenueBinance: &mockQuoter{price: dec("2000")},
		}
		f := newEngineFixture(t, &mockChain{}, quotes)

		opp := whaleOpp("1500000")
		opp.Side = domain.SideSell
		res, err := f.engine.Attempt(context.Background(), opp)

		require.NoError(t, err)
		require.NotNil(t, res.Position)
		assert.Equal(t, domain.DirectionShort, res.Position.Direction)
	})
}
