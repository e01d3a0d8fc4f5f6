package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whaleSnipeBot/internal/domain"
	"whaleSnipeBot/internal/ports"
)

// Mock implementations
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(Config{DBPath: ":memory:", Logger: &mockLogger{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newPosition(entry string, at time.Time) *domain.Position {
	return &domain.Position{
		Source:     domain.SourceWhale,
		Venue:      domain.VenueBinance,
		Pair:       domain.AssetPair{Base: "ETH", Quote: "USDT"},
		Direction:  domain.DirectionLong,
		Amount:     dec("2.5"),
		EntryPrice: dec(entry),
		EntryTime:  at,
		Status:     domain.StatusOpen,
	}
}

func TestPositionLifecycle(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	pos := newPosition("2000.50", now)
	id, err := repo.Create(ctx, pos)
	require.NoError(t, err)
	assert.Equal(t, id, pos.ID)

	open, err := repo.FindOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	got := open[0]
	assert.Equal(t, pos.ID, got.ID)
	assert.Equal(t, domain.SourceWhale, got.Source)
	assert.Equal(t, domain.VenueBinance, got.Venue)
	assert.Equal(t, "ETH/USDT", got.Pair.Key())
	assert.True(t, got.Amount.Equal(dec("2.5")))
	assert.True(t, got.EntryPrice.Equal(dec("2000.50")), "entry price round-trip lost precision: %s", got.EntryPrice)
	assert.True(t, got.IsOpen())

	// Close it.
	pos.Status = domain.StatusClosed
	pos.ExitPrice = dec("2400")
	pos.ExitTime = now.Add(time.Hour)
	pos.CloseReason = domain.CloseReasonTakeProfit
	pos.PNL = dec("998.75")
	require.NoError(t, repo.Update(ctx, pos))

	open, err = repo.FindOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	profit, err := repo.GetTotalProfit(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 998.75, profit, 0.001)
}

func TestFindOpen_OldestFirst(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	later := newPosition("2000", now.Add(time.Hour))
	earlier := newPosition("1900", now)
	_, err := repo.Create(ctx, later)
	require.NoError(t, err)
	_, err = repo.Create(ctx, earlier)
	require.NoError(t, err)

	open, err := repo.FindOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, earlier.ID, open[0].ID)
	assert.Equal(t, later.ID, open[1].ID)
}

func TestUpdate_MissingPosition(t *testing.T) {
	repo := newRepo(t)

	pos := newPosition("2000", time.Now().UTC())
	pos.ID = 42
	pos.Status = domain.StatusClosed
	pos.ExitTime = time.Now().UTC()

	err := repo.Update(context.Background(), pos)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestWhaleEvents(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	count, err := repo.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	id, err := repo.CreateEvent(ctx, &domain.WhaleEvent{
		Kind:        domain.WhaleConsecutiveSmall,
		Venue:       domain.VenueBinance,
		Chain:       "ETH",
		Wallet:      "0xwhale",
		Side:        domain.SideBuy,
		USDValue:    dec("550000"),
		TxIDs:       []string{"tx-1", "tx-2", "tx-3"},
		WindowStart: now,
	})
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	count, err = repo.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
