package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"whaleSnipeBot/internal/adapters/logger" // Import the logger package for LogLevel
	"whaleSnipeBot/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Whale detection
	LargeTxThreshold     decimal.Decimal // single-transaction USD threshold
	ConsecutiveThreshold decimal.Decimal // aggregated USD threshold within the time window
	TimeWindow           time.Duration   // aggregation window for consecutive transactions
	WatchPairs           []domain.AssetPair
	TradeFetchLimit      int // recent trades fetched per pair per tick

	// Sniping
	MinLiquidity  *big.Int        // pool supply floor in on-chain units
	EntryAmount   decimal.Decimal // snipe input size in base-asset units
	Slippage      decimal.Decimal // fractional slippage tolerance
	EntryDeadline time.Duration   // absolute deadline offset for submitted swaps

	// Position management
	StopLoss     decimal.Decimal // e.g. 0.1 for 10%
	TakeProfit   decimal.Decimal // e.g. 0.2 for 20%
	VenueFee     decimal.Decimal // fractional fee per fill
	CopyFraction decimal.Decimal // share of a whale's USD value to copy
	ExitPriority string          // comma-separated rule order

	// Risk limits
	SimBalance       decimal.Decimal // simulated starting balance in USDT
	MaxOpenPositions int
	MaxPositionUSD   decimal.Decimal // zero disables the per-entry cap

	// Scheduling
	TickInterval time.Duration
	CallTimeout  time.Duration // per outbound call inside a tick
	MaxAttempts  int           // execution attempts before an opportunity is discarded

	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Chain access
	RPCURLWS         string // websocket endpoint for log subscriptions
	FactoryAddress   string
	RouterAddress    string
	WETHAddress      string
	RecipientAddress string
	PrivateKey       string // hex; empty runs the chain gateway read-only

	// Persistence
	DBPath        string
	SnipeListFile string
	TokenListFile string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Whale detection
	cfg.LargeTxThreshold, err = getEnvAsDecimal("LARGE_TX_THRESHOLD", "1000000")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LARGE_TX_THRESHOLD: %v", err))
	} else if !cfg.LargeTxThreshold.IsPositive() {
		errs = append(errs, "LARGE_TX_THRESHOLD must be positive")
	}

	cfg.ConsecutiveThreshold, err = getEnvAsDecimal("CONSECUTIVE_THRESHOLD", "500000")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CONSECUTIVE_THRESHOLD: %v", err))
	} else if !cfg.ConsecutiveThreshold.IsPositive() {
		errs = append(errs, "CONSECUTIVE_THRESHOLD must be positive")
	}

	timeWindowMs := getEnvAsInt("TIME_WINDOW_MS", 600000) // 10 minutes
	if timeWindowMs <= 0 {
		errs = append(errs, "TIME_WINDOW_MS must be positive")
	}
	cfg.TimeWindow = time.Duration(timeWindowMs) * time.Millisecond

	watchSymbols := getEnv("WATCH_SYMBOLS", "ETH/USDT,BTC/USDT")
	cfg.WatchPairs, err = parseWatchPairs(watchSymbols)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid WATCH_SYMBOLS: %v", err))
	}

	cfg.TradeFetchLimit = getEnvAsInt("TRADE_FETCH_LIMIT", 500)
	if cfg.TradeFetchLimit <= 0 {
		errs = append(errs, "TRADE_FETCH_LIMIT must be positive")
	}

	// Sniping
	minLiquidityStr := getEnv("MIN_LIQUIDITY", "1000000000000000000") // 1 pool token
	cfg.MinLiquidity, err = parseBigInt(minLiquidityStr)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_LIQUIDITY: %v", err))
	} else if cfg.MinLiquidity.Sign() <= 0 {
		errs = append(errs, "MIN_LIQUIDITY must be positive")
	}

	cfg.EntryAmount, err = getEnvAsDecimal("ENTRY_AMOUNT", "0.1")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ENTRY_AMOUNT: %v", err))
	} else if !cfg.EntryAmount.IsPositive() {
		errs = append(errs, "ENTRY_AMOUNT must be positive")
	}

	cfg.Slippage, err = getEnvAsDecimal("SLIPPAGE", "0.05")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SLIPPAGE: %v", err))
	} else if cfg.Slippage.IsNegative() || cfg.Slippage.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "SLIPPAGE must be between 0.0 and 1.0 (exclusive)")
	}

	entryDeadlineMin := getEnvAsInt("ENTRY_DEADLINE_MIN", 10)
	if entryDeadlineMin <= 0 {
		errs = append(errs, "ENTRY_DEADLINE_MIN must be positive")
	}
	cfg.EntryDeadline = time.Duration(entryDeadlineMin) * time.Minute

	// Position management
	cfg.StopLoss, err = getEnvAsDecimal("STOP_LOSS", "0.1")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS: %v", err))
	} else if !cfg.StopLoss.IsPositive() || cfg.StopLoss.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "STOP_LOSS must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.TakeProfit, err = getEnvAsDecimal("TAKE_PROFIT", "0.2")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TAKE_PROFIT: %v", err))
	} else if !cfg.TakeProfit.IsPositive() {
		errs = append(errs, "TAKE_PROFIT must be positive")
	}

	cfg.VenueFee, err = getEnvAsDecimal("VENUE_FEE", "0.001")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid VENUE_FEE: %v", err))
	} else if cfg.VenueFee.IsNegative() || cfg.VenueFee.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, "VENUE_FEE must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.CopyFraction, err = getEnvAsDecimal("COPY_FRACTION", "0.1")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid COPY_FRACTION: %v", err))
	} else if !cfg.CopyFraction.IsPositive() || cfg.CopyFraction.GreaterThan(decimal.NewFromInt(1)) {
		errs = append(errs, "COPY_FRACTION must be between 0.0 (exclusive) and 1.0 (inclusive)")
	}

	cfg.ExitPriority = getEnv("EXIT_PRIORITY", "stop-loss,take-profit,arbitrage")

	// Risk limits
	cfg.SimBalance, err = getEnvAsDecimal("SIM_BALANCE", "10000")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SIM_BALANCE: %v", err))
	} else if cfg.SimBalance.IsNegative() {
		errs = append(errs, "SIM_BALANCE cannot be negative")
	}

	cfg.MaxOpenPositions = getEnvAsInt("MAX_OPEN_POSITIONS", 10)
	if cfg.MaxOpenPositions <= 0 {
		errs = append(errs, "MAX_OPEN_POSITIONS must be positive")
	}

	cfg.MaxPositionUSD, err = getEnvAsDecimal("MAX_POSITION_USD", "0")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_POSITION_USD: %v", err))
	} else if cfg.MaxPositionUSD.IsNegative() {
		errs = append(errs, "MAX_POSITION_USD cannot be negative")
	}

	// Scheduling
	tickIntervalMs := getEnvAsInt("TICK_INTERVAL_MS", 10000)
	if tickIntervalMs <= 0 {
		errs = append(errs, "TICK_INTERVAL_MS must be positive")
	}
	cfg.TickInterval = time.Duration(tickIntervalMs) * time.Millisecond

	callTimeoutMs := getEnvAsInt("CALL_TIMEOUT_MS", 10000)
	if callTimeoutMs <= 0 {
		errs = append(errs, "CALL_TIMEOUT_MS must be positive")
	}
	cfg.CallTimeout = time.Duration(callTimeoutMs) * time.Millisecond

	cfg.MaxAttempts = getEnvAsInt("MAX_ATTEMPTS", 3)
	if cfg.MaxAttempts <= 0 {
		errs = append(errs, "MAX_ATTEMPTS must be positive")
	}

	// Binance API. Keys may be empty; public market-data endpoints do not
	// require them.
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	// Chain access
	cfg.RPCURLWS = getEnv("RPC_URL_WS", "")
	if cfg.RPCURLWS == "" {
		errs = append(errs, "RPC_URL_WS must be set")
	}
	cfg.FactoryAddress = getEnv("FACTORY_ADDRESS", "")
	if cfg.FactoryAddress == "" {
		errs = append(errs, "FACTORY_ADDRESS must be set")
	}
	cfg.RouterAddress = getEnv("ROUTER_ADDRESS", "")
	if cfg.RouterAddress == "" {
		errs = append(errs, "ROUTER_ADDRESS must be set")
	}
	cfg.WETHAddress = getEnv("WETH_ADDRESS", "")
	if cfg.WETHAddress == "" {
		errs = append(errs, "WETH_ADDRESS must be set")
	}
	cfg.RecipientAddress = getEnv("RECIPIENT_ADDRESS", "")
	cfg.PrivateKey = getEnv("PRIVATE_KEY", "")

	// Persistence
	cfg.DBPath = getEnv("DB_PATH", "./data/whale_snipe_bot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}
	cfg.SnipeListFile = getEnv("SNIPE_LIST_FILE", "./data/snipe_list.csv")
	cfg.TokenListFile = getEnv("TOKEN_LIST_FILE", "./data/token_list.csv")

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// parseWatchPairs parses "ETH/USDT,BTC/USDT" into asset pairs.
func parseWatchPairs(s string) ([]domain.AssetPair, error) {
	parts := strings.Split(s, ",")
	pairs := make([]domain.AssetPair, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		legs := strings.Split(p, "/")
		if len(legs) != 2 || legs[0] == "" || legs[1] == "" {
			return nil, fmt.Errorf("pair %q must have the form BASE/QUOTE", p)
		}
		pairs = append(pairs, domain.AssetPair{Base: legs[0], Quote: legs[1]})
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("at least one pair must be configured")
	}
	return pairs, nil
}

func parseBigInt(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer value '%s'", s)
	}
	return v, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key, defaultValue string) (decimal.Decimal, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
