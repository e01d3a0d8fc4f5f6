package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityKind distinguishes how a candidate entry was discovered.
type OpportunityKind string

const (
	// OpportunitySnipe is a newly created liquidity pool involving the base asset.
	OpportunitySnipe OpportunityKind = "snipe"
	// OpportunityWhale is a detected whale event to be copy-traded.
	OpportunityWhale OpportunityKind = "whale"
)

// Opportunity is a candidate entry awaiting an execution attempt. It is
// consumed on a successful fill or discarded on terminal failure.
type Opportunity struct {
	ID           string // pair address for snipes, synthetic id for whale events
	Kind         OpportunityKind
	Venue        Venue
	AssetIn      string
	AssetOut     string
	Side         Side
	USDValue     decimal.Decimal // whale aggregate; zero for snipes
	DiscoveredAt time.Time
	Attempts     int // failed execution attempts so far
}

// PairKey is the uniqueness key: at most one active opportunity per
// (AssetIn, AssetOut) pair.
func (o *Opportunity) PairKey() string {
	return o.AssetIn + "/" + o.AssetOut
}

// SnipeOpportunity builds an opportunity from a new base-asset liquidity pool.
// AssetIn is the base (wrapped native) token, AssetOut the newly listed token.
func SnipeOpportunity(pair NewPair, baseAsset string, now time.Time) Opportunity {
	tokenOut := pair.Token0
	if tokenOut == baseAsset {
		tokenOut = pair.Token1
	}
	return Opportunity{
		ID:           pair.PairAddress,
		Kind:         OpportunitySnipe,
		Venue:        VenueDex,
		AssetIn:      baseAsset,
		AssetOut:     tokenOut,
		Side:         SideBuy,
		DiscoveredAt: now,
	}
}

// WhaleOpportunity builds a copy-trade opportunity from a whale event.
// The pair is the event's asset against USDT on the venue the event was seen.
func WhaleOpportunity(ev WhaleEvent, now time.Time) Opportunity {
	return Opportunity{
		ID:           fmt.Sprintf("whale:%s:%s:%d", ev.Venue, ev.Chain, ev.WindowStart.UnixMilli()),
		Kind:         OpportunityWhale,
		Venue:        ev.Venue,
		AssetIn:      "USDT",
		AssetOut:     ev.Chain,
		Side:         ev.Side,
		USDValue:     ev.USDValue,
		DiscoveredAt: now,
	}
}
