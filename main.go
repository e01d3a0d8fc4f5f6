package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"whaleSnipeBot/config"
	"whaleSnipeBot/internal/adapters/binanceclient"
	"whaleSnipeBot/internal/adapters/dexclient"
	"whaleSnipeBot/internal/adapters/listfile"
	"whaleSnipeBot/internal/adapters/logger"
	"whaleSnipeBot/internal/adapters/sqlite"
	"whaleSnipeBot/internal/app"
	"whaleSnipeBot/internal/domain"
	"whaleSnipeBot/internal/execution"
	"whaleSnipeBot/internal/opportunity"
	"whaleSnipeBot/internal/ports"
	"whaleSnipeBot/internal/risk"
	"whaleSnipeBot/internal/tracker"
	"whaleSnipeBot/internal/whalewatch"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing database repository")
		}
	}()
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize List Store (snipe and filled-position files)
	lists, err := listfile.New(listfile.Config{
		SnipeListPath:  cfg.SnipeListFile,
		FilledListPath: cfg.TokenListFile,
		Logger:         appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize list store")
		log.Fatalf("FATAL: Failed to initialize list store: %v", err)
	}
	appLogger.Info(context.Background(), "List store initialized")

	// 5. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized")

	// 6. Initialize Chain Client (Dex Adapter)
	dexClient, err := dexclient.New(context.Background(), dexclient.Config{
		WSURL:            cfg.RPCURLWS,
		FactoryAddress:   cfg.FactoryAddress,
		RouterAddress:    cfg.RouterAddress,
		RecipientAddress: cfg.RecipientAddress,
		PrivateKey:       cfg.PrivateKey,
		Logger:           appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize dex client")
		log.Fatalf("FATAL: Failed to initialize dex client: %v", err)
	}
	defer dexClient.Close()
	appLogger.Info(context.Background(), "Dex client initialized")

	// 7. Initialize Detection and Execution Components
	detector, err := whalewatch.New(whalewatch.Config{
		LargeTxThreshold:     cfg.LargeTxThreshold,
		ConsecutiveThreshold: cfg.ConsecutiveThreshold,
		TimeWindow:           cfg.TimeWindow,
	}, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize whale detector")
		log.Fatalf("FATAL: Failed to initialize whale detector: %v", err)
	}

	queue, err := opportunity.NewQueue(cfg.MaxAttempts, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize opportunity queue")
		log.Fatalf("FATAL: Failed to initialize opportunity queue: %v", err)
	}

	riskMg, err := risk.NewManager(risk.Config{
		StartingBalance:  cfg.SimBalance,
		MaxOpenPositions: cfg.MaxOpenPositions,
		MaxPositionUSD:   cfg.MaxPositionUSD,
		VenueFee:         cfg.VenueFee,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize risk manager")
		log.Fatalf("FATAL: Failed to initialize risk manager: %v", err)
	}

	quotes := map[domain.Venue]ports.QuoteGateway{
		domain.VenueBinance: binanceClient,
		domain.VenueDex:     dexClient,
	}

	engine, err := execution.NewEngine(execution.Config{
		BaseAsset:     cfg.WETHAddress,
		EntryAmount:   cfg.EntryAmount,
		MinLiquidity:  cfg.MinLiquidity,
		Slippage:      cfg.Slippage,
		EntryDeadline: cfg.EntryDeadline,
		CopyFraction:  cfg.CopyFraction,
	}, appLogger, dexClient, quotes, riskMg, lists, repo)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize execution engine")
		log.Fatalf("FATAL: Failed to initialize execution engine: %v", err)
	}

	exitPriority, err := tracker.ParseExitPriority(cfg.ExitPriority)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Invalid exit priority")
		log.Fatalf("FATAL: Invalid exit priority: %v", err)
	}

	trk, err := tracker.NewTracker(tracker.Config{
		StopLossPct:   cfg.StopLoss,
		TakeProfitPct: cfg.TakeProfit,
		Slippage:      cfg.Slippage,
		VenueFee:      cfg.VenueFee,
		ExitPriority:  exitPriority,
		ExitDeadline:  cfg.EntryDeadline,
		CallTimeout:   cfg.CallTimeout,
	}, appLogger, dexClient, quotes, riskMg, repo)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize position tracker")
		log.Fatalf("FATAL: Failed to initialize position tracker: %v", err)
	}
	appLogger.Info(context.Background(), "Detection and execution components initialized")

	// 8. Initialize Application Service
	service, err := app.NewService(
		cfg,
		appLogger,
		detector,
		queue,
		engine,
		trk,
		riskMg,
		[]ports.TradeFeed{binanceClient},
		dexClient,
		lists,
		repo,
		repo,
	)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize scheduling service")
		log.Fatalf("FATAL: Failed to initialize scheduling service: %v", err)
	}
	appLogger.Info(context.Background(), "Scheduling service initialized")

	// 9. Start the Service
	// Use context.Background() as the base context for the application run
	if err := service.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Scheduling service exited with error")
		log.Fatalf("FATAL: Scheduling service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
