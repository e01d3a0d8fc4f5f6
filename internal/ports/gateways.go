package ports

import (
	"context"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"whaleSnipeBot/internal/domain"
)

// QuoteGateway abstracts "get the current price of a pair on one venue".
// Price orientation is quote-units per one base-unit for CEX pairs; the
// on-chain gateway quotes output-token units per one input-token unit,
// matching the orientation the execution engine records entries in.
type QuoteGateway interface {
	// Quote returns the current price for the pair. A transient fetch
	// failure is reported as ErrQuoteUnavailable.
	Quote(ctx context.Context, pair domain.AssetPair) (decimal.Decimal, error)
}

// TradeFeed is the pull side of the event source: recent trades or transfers
// for one pair on one venue, normalized into transaction records.
type TradeFeed interface {
	// Venue identifies which venue the feed reads from.
	Venue() domain.Venue
	// ListRecentTransactions fetches up to limit recent transactions.
	ListRecentTransactions(ctx context.Context, pair domain.AssetPair, limit int) ([]domain.TransactionRecord, error)
}

// PairFeed is the push side of the event source: asynchronous notifications
// of newly created liquidity pools.
type PairFeed interface {
	// SubscribePairCreated starts the subscription and invokes handler for
	// every new pool. It returns a done channel closed when the subscription
	// terminates and a stop channel the caller closes to end it.
	SubscribePairCreated(ctx context.Context, handler func(domain.NewPair), errHandler func(error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}

// Receipt is the confirmation returned by an on-chain trade submission.
type Receipt struct {
	Success     bool
	BlockNumber uint64
	TxID        string
}

// ChainGateway abstracts the on-chain collaborators: pool inspection,
// router quoting and swap submission. Amounts are in integer on-chain units.
type ChainGateway interface {
	// PoolLiquidity returns the total supply of the pool's accounting token.
	PoolLiquidity(ctx context.Context, pairAddress string) (*big.Int, error)
	// AmountOut quotes the router output for amountIn of assetIn swapped to
	// assetOut. Failures are reported as ErrQuoteUnavailable.
	AmountOut(ctx context.Context, amountIn *big.Int, assetIn, assetOut string) (*big.Int, error)
	// SubmitSwap submits a swap with a minimum acceptable output and an
	// absolute deadline beyond which the venue must reject it, then waits
	// for the confirmation receipt.
	SubmitSwap(ctx context.Context, assetIn, assetOut string, amountIn, amountOutMin *big.Int, deadline time.Time) (*Receipt, error)
}
