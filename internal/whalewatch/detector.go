package whalewatch

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"whaleSnipeBot/internal/domain"
	"whaleSnipeBot/internal/ports"
)

// Config holds the detection thresholds.
type Config struct {
	LargeTxThreshold     decimal.Decimal // single transaction USD value, e.g. 1,000,000
	ConsecutiveThreshold decimal.Decimal // aggregated USD value inside the window, e.g. 500,000
	TimeWindow           time.Duration   // width of the aggregation window, e.g. 10m
}

// Detector turns a raw transaction stream into threshold-crossing whale
// events. Detect is pure given the configured thresholds.
type Detector struct {
	cfg    Config
	logger ports.Logger
}

// New creates a new Detector instance.
func New(cfg Config, logger ports.Logger) (*Detector, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for detector")
	}
	if !cfg.LargeTxThreshold.IsPositive() || !cfg.ConsecutiveThreshold.IsPositive() {
		return nil, fmt.Errorf("detection thresholds must be positive")
	}
	if cfg.TimeWindow <= 0 {
		return nil, fmt.Errorf("time window must be positive")
	}
	return &Detector{cfg: cfg, logger: logger}, nil
}

// groupKey identifies one actor acting in one direction on one venue/asset.
type groupKey struct {
	wallet string
	venue  domain.Venue
	chain  string
	side   domain.Side
}

func (k groupKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s", k.wallet, k.venue, k.chain, k.side)
}

// Detect applies the single-large rule and then the consecutive-small rule
// to the given records. A transaction consumed by the single-large rule is
// excluded from window accumulation, so no transaction id ever appears in
// two emitted events. Output order is deterministic: single-large events in
// input order, then consecutive-small events by group key and window start.
func (d *Detector) Detect(records []domain.TransactionRecord) []domain.WhaleEvent {
	if len(records) == 0 {
		return nil
	}

	events := make([]domain.WhaleEvent, 0)
	groups := make(map[groupKey][]domain.TransactionRecord)

	for _, tx := range records {
		if tx.USDValue.GreaterThanOrEqual(d.cfg.LargeTxThreshold) {
			events = append(events, domain.WhaleEvent{
				Kind:        domain.WhaleSingleLarge,
				Venue:       tx.Venue,
				Chain:       tx.Chain,
				Wallet:      tx.Wallet,
				Side:        tx.Side,
				USDValue:    tx.USDValue,
				TxIDs:       []string{tx.TxID},
				WindowStart: tx.Timestamp,
			})
			continue
		}
		key := groupKey{wallet: tx.Wallet, venue: tx.Venue, chain: tx.Chain, side: tx.Side}
		groups[key] = append(groups[key], tx)
	}

	// Stable iteration over groups for deterministic output.
	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	for _, key := range keys {
		events = append(events, d.detectConsecutive(groups[key])...)
	}
	return events
}

// detectConsecutive applies the forward-advancing window to one group.
// Starting at index i, values are accumulated while the record stays inside
// the time window measured from the window start; the first index j at which
// the running sum reaches the threshold closes the window, emits one event
// covering records i..j inclusive, and the scan resumes at j+1.
func (d *Detector) detectConsecutive(group []domain.TransactionRecord) []domain.WhaleEvent {
	sort.Slice(group, func(i, j int) bool { return group[i].Timestamp.Before(group[j].Timestamp) })

	var events []domain.WhaleEvent
	for i := 0; i < len(group); i++ {
		sum := decimal.Zero
		start := group[i].Timestamp

		for j := i; j < len(group) && group[j].Timestamp.Sub(start) <= d.cfg.TimeWindow; j++ {
			sum = sum.Add(group[j].USDValue)
			if sum.GreaterThanOrEqual(d.cfg.ConsecutiveThreshold) {
				txIDs := make([]string, 0, j-i+1)
				for _, tx := range group[i : j+1] {
					txIDs = append(txIDs, tx.TxID)
				}
				events = append(events, domain.WhaleEvent{
					Kind:        domain.WhaleConsecutiveSmall,
					Venue:       group[i].Venue,
					Chain:       group[i].Chain,
					Wallet:      group[i].Wallet,
					Side:        group[i].Side,
					USDValue:    sum,
					TxIDs:       txIDs,
					WindowStart: start,
				})
				i = j // next outer iteration resumes at j+1
				break
			}
		}
	}
	return events
}
