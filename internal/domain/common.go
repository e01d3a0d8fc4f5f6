package domain

// Venue identifies where a price is quoted or a trade is executed.
type Venue string

const (
	VenueBinance Venue = "binance"
	VenueDex     Venue = "dex"
	VenueChain   Venue = "blockchain" // raw on-chain transfers in the transaction feed
)

// Side represents the direction of a raw transaction (taker side on a CEX).
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Direction represents the exposure of an open position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Direction maps a transaction side to the position direction a copy trade takes.
func (s Side) Direction() Direction {
	if s == SideSell {
		return DirectionShort
	}
	return DirectionLong
}

// PositionStatus represents the status of a trading position.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonStopLoss   CloseReason = "SL"
	CloseReasonTakeProfit CloseReason = "TP"
	CloseReasonArbitrage  CloseReason = "ARB"
	CloseReasonManual     CloseReason = "MANUAL"
	CloseReasonUnknown    CloseReason = "UNKNOWN"
)

// AssetPair identifies a tradeable pair. Base is the asset being priced,
// Quote the asset it is priced in. For on-chain pairs both legs are token
// contract addresses; for CEX pairs they are ticker symbols.
type AssetPair struct {
	Base  string
	Quote string
}

// Symbol renders the pair in exchange ticker form, e.g. "ETH"+"USDT" -> "ETHUSDT".
func (p AssetPair) Symbol() string {
	return p.Base + p.Quote
}

// Key returns the canonical identity used for uniqueness checks.
func (p AssetPair) Key() string {
	return p.Base + "/" + p.Quote
}
