package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"whaleSnipeBot/internal/domain"
	"whaleSnipeBot/internal/ports"
)

const (
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"
)

// Client implements ports.QuoteGateway and ports.TradeFeed against the
// Binance spot API using the go-binance library.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance client adapter. Public endpoints (trades,
// prices) work without API keys.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	return &Client{spotClient: client, logger: cfg.Logger}, nil
}

// Venue identifies this feed as the Binance venue.
func (c *Client) Venue() domain.Venue {
	return domain.VenueBinance
}

// handleError translates Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003:
			mappedErr = ports.ErrRateLimited
		case -1021:
			mappedErr = ports.ErrTimeout
		case -1022:
			mappedErr = ports.ErrAuthenticationFailed
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1121:
			mappedErr = ports.ErrInvalidRequest
		case -2014, -2015:
			mappedErr = ports.ErrAuthenticationFailed
		default:
			mappedErr = ports.ErrVenueUnavailable
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") ||
		strings.Contains(err.Error(), "use of closed network connection") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Quote retrieves the last ticker price for the pair. Failures are reported
// as ErrQuoteUnavailable so the core treats them as transient.
func (c *Client) Quote(ctx context.Context, pair domain.AssetPair) (decimal.Decimal, error) {
	op := "Quote"
	prices, err := c.spotClient.NewListPricesService().Symbol(pair.Symbol()).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w", ports.ErrQuoteUnavailable, c.handleError(ctx, err, op))
	}
	if len(prices) == 0 {
		err := fmt.Errorf("%w: no price data returned for symbol %s", ports.ErrQuoteUnavailable, pair.Symbol())
		c.logger.Error(ctx, err, op+" returned empty result")
		return decimal.Zero, err
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		parseErr := fmt.Errorf("%w: could not parse price '%s': %w", ports.ErrQuoteUnavailable, prices[0].Price, err)
		c.logger.Error(ctx, parseErr, op+" failed to parse price")
		return decimal.Zero, parseErr
	}
	return price, nil
}

// ListRecentTransactions fetches up to limit recent trades for the pair and
// normalizes them into transaction records. The exchange does not expose
// wallets, so every record carries the anonymous actor identifier.
func (c *Client) ListRecentTransactions(ctx context.Context, pair domain.AssetPair, limit int) ([]domain.TransactionRecord, error) {
	op := "ListRecentTransactions"
	trades, err := c.spotClient.NewRecentTradesService().Symbol(pair.Symbol()).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	records := make([]domain.TransactionRecord, 0, len(trades))
	for _, trade := range trades {
		price, err := decimal.NewFromString(trade.Price)
		if err != nil {
			c.logger.Warn(ctx, "Skipping trade with malformed price", map[string]interface{}{"tradeID": trade.ID, "price": trade.Price})
			continue
		}
		qty, err := decimal.NewFromString(trade.Quantity)
		if err != nil {
			c.logger.Warn(ctx, "Skipping trade with malformed quantity", map[string]interface{}{"tradeID": trade.ID, "quantity": trade.Quantity})
			continue
		}

		// Taker side: when the buyer is the maker, the aggressing party sold.
		side := domain.SideBuy
		if trade.IsBuyerMaker {
			side = domain.SideSell
		}

		records = append(records, domain.TransactionRecord{
			Venue:     domain.VenueBinance,
			Chain:     pair.Base,
			Wallet:    domain.AnonymousWallet,
			Amount:    qty,
			Side:      side,
			Timestamp: time.UnixMilli(trade.Time),
			USDValue:  qty.Mul(price),
			TxID:      fmt.Sprintf("%s-%d", pair.Symbol(), trade.ID),
		})
	}
	return records, nil
}
