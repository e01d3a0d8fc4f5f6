package opportunity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whaleSnipeBot/internal/domain"
)

// Mock implementations
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func snipe(id, assetOut string) domain.Opportunity {
	return domain.Opportunity{
		ID:           id,
		Kind:         domain.OpportunitySnipe,
		Venue:        domain.VenueDex,
		AssetIn:      "0xweth",
		AssetOut:     assetOut,
		Side:         domain.SideBuy,
		DiscoveredAt: time.Now().UTC(),
	}
}

func TestNewQueue(t *testing.T) {
	t.Run("rejects nil logger", func(t *testing.T) {
		_, err := NewQueue(3, nil)
		assert.Error(t, err)
	})
	t.Run("rejects non-positive attempts", func(t *testing.T) {
		_, err := NewQueue(0, &mockLogger{})
		assert.Error(t, err)
	})
}

func TestAdd_PairUniqueness(t *testing.T) {
	q, err := NewQueue(3, &mockLogger{})
	require.NoError(t, err)

	assert.True(t, q.Add(snipe("0xpair1", "0xtoken")))
	// Same pair under a different id is still a duplicate.
	assert.False(t, q.Add(snipe("0xpair2", "0xtoken")))
	assert.Equal(t, 1, q.Len())

	assert.True(t, q.Add(snipe("0xpair3", "0xother")))
	assert.Equal(t, 2, q.Len())
}

func TestRemove_FreesThePair(t *testing.T) {
	q, err := NewQueue(3, &mockLogger{})
	require.NoError(t, err)

	require.True(t, q.Add(snipe("0xpair1", "0xtoken")))
	q.Remove(q.Items()[0])
	assert.Equal(t, 0, q.Len())

	// Consumed pair may be re-added.
	assert.True(t, q.Add(snipe("0xpair1", "0xtoken")))
}

func TestFail_RetryBound(t *testing.T) {
	q, err := NewQueue(3, &mockLogger{})
	require.NoError(t, err)

	require.True(t, q.Add(snipe("0xpair1", "0xtoken")))
	opp := q.Items()[0]

	assert.False(t, q.Fail(opp, false))
	assert.False(t, q.Fail(opp, false))
	assert.Equal(t, 1, q.Len())

	// Third failed attempt exhausts the budget.
	assert.True(t, q.Fail(opp, false))
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 3, opp.Attempts)
}

func TestFail_TerminalDiscardsImmediately(t *testing.T) {
	q, err := NewQueue(3, &mockLogger{})
	require.NoError(t, err)

	require.True(t, q.Add(snipe("0xpair1", "0xtoken")))
	opp := q.Items()[0]

	assert.True(t, q.Fail(opp, true))
	assert.Equal(t, 0, q.Len())
}

func TestItems_SnapshotSurvivesMutation(t *testing.T) {
	q, err := NewQueue(3, &mockLogger{})
	require.NoError(t, err)

	require.True(t, q.Add(snipe("0xpair1", "0xtokenA")))
	require.True(t, q.Add(snipe("0xpair2", "0xtokenB")))

	items := q.Items()
	require.Len(t, items, 2)
	for _, opp := range items {
		q.Remove(opp)
	}
	assert.Equal(t, 0, q.Len())
}
