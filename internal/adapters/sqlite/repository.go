package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"whaleSnipeBot/internal/domain"
	"whaleSnipeBot/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.PositionRepository and
// ports.WhaleEventRepository using SQLite. Monetary values are stored as
// decimal strings to preserve precision.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/whale_bot.db"
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
			cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite database ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS positions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		venue TEXT NOT NULL,
		base_asset TEXT NOT NULL,
		quote_asset TEXT NOT NULL,
		direction TEXT NOT NULL,
		amount TEXT NOT NULL,
		entry_price TEXT NOT NULL,
		entry_time TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		exit_price TEXT DEFAULT NULL,
		exit_time TIMESTAMP DEFAULT NULL,
		close_reason TEXT DEFAULT NULL,
		pnl TEXT DEFAULT NULL,
		block_number INTEGER NOT NULL DEFAULT 0,
		tx_id TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS whale_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		venue TEXT NOT NULL,
		chain TEXT NOT NULL,
		wallet TEXT NOT NULL,
		side TEXT NOT NULL,
		usd_value TEXT NOT NULL,
		tx_ids TEXT NOT NULL,
		window_start TIMESTAMP NOT NULL,
		detected_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_positions_status ON positions (status);
	CREATE INDEX IF NOT EXISTS idx_whale_events_chain ON whale_events (chain, window_start);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- PositionRepository implementation ---

// Create saves a new position and returns its assigned ID.
func (r *Repository) Create(ctx context.Context, pos *domain.Position) (int64, error) {
	const query = `
	INSERT INTO positions (source, venue, base_asset, quote_asset, direction, amount,
	                       entry_price, entry_time, status, block_number, tx_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		pos.Source, pos.Venue, pos.Pair.Base, pos.Pair.Quote, pos.Direction,
		pos.Amount.String(), pos.EntryPrice.String(), pos.EntryTime, pos.Status,
		pos.BlockNumber, pos.TxID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert position for %s: %w", pos.Pair.Key(), err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for position %s: %w", pos.Pair.Key(), err)
	}
	pos.ID = id
	r.logger.Debug(ctx, "Position created", map[string]interface{}{"positionID": id, "pair": pos.Pair.Key()})
	return id, nil
}

// Update modifies an existing position based on its ID.
func (r *Repository) Update(ctx context.Context, pos *domain.Position) error {
	const query = `
	UPDATE positions
	SET status = ?, exit_price = ?, exit_time = ?, close_reason = ?, pnl = ?
	WHERE id = ?`

	var exitTime sql.NullTime
	if !pos.ExitTime.IsZero() {
		exitTime = sql.NullTime{Time: pos.ExitTime, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query,
		pos.Status, pos.ExitPrice.String(), exitTime, pos.CloseReason, pos.PNL.String(), pos.ID)
	if err != nil {
		return fmt.Errorf("failed to update position ID %d: %w", pos.ID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for position ID %d: %w", pos.ID, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("position ID %d not found for update: %w", pos.ID, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Position updated", map[string]interface{}{"positionID": pos.ID, "status": pos.Status})
	return nil
}

// FindOpen retrieves all currently open positions, oldest first.
func (r *Repository) FindOpen(ctx context.Context) ([]*domain.Position, error) {
	const query = `
	SELECT id, source, venue, base_asset, quote_asset, direction, amount,
	       entry_price, entry_time, status,
	       COALESCE(exit_price, '0'), exit_time, COALESCE(close_reason, ''),
	       COALESCE(pnl, '0'), block_number, tx_id
	FROM positions
	WHERE status = ?
	ORDER BY entry_time ASC`

	rows, err := r.db.QueryContext(ctx, query, domain.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	defer rows.Close()

	positions := make([]*domain.Position, 0)
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position during FindOpen: %w", err)
		}
		positions = append(positions, pos)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position rows: %w", err)
	}
	return positions, nil
}

// GetTotalProfit calculates the sum of PNL for all closed positions.
func (r *Repository) GetTotalProfit(ctx context.Context) (float64, error) {
	const query = `SELECT COALESCE(SUM(CAST(pnl AS REAL)), 0) FROM positions WHERE status = ?`
	var totalProfit float64
	if err := r.db.QueryRowContext(ctx, query, domain.StatusClosed).Scan(&totalProfit); err != nil {
		return 0, fmt.Errorf("failed to calculate total profit: %w", err)
	}
	return totalProfit, nil
}

// --- WhaleEventRepository implementation ---

// CreateEvent saves a detected whale event and returns its assigned ID.
func (r *Repository) CreateEvent(ctx context.Context, ev *domain.WhaleEvent) (int64, error) {
	const query = `
	INSERT INTO whale_events (kind, venue, chain, wallet, side, usd_value, tx_ids, window_start, detected_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		ev.Kind, ev.Venue, ev.Chain, ev.Wallet, ev.Side,
		ev.USDValue.String(), strings.Join(ev.TxIDs, ","), ev.WindowStart, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert whale event for %s: %w", ev.Chain, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for whale event: %w", err)
	}
	r.logger.Debug(ctx, "Whale event recorded", map[string]interface{}{"eventID": id, "chain": ev.Chain, "kind": ev.Kind})
	return id, nil
}

// CountEvents returns the total number of recorded whale events.
func (r *Repository) CountEvents(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM whale_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count whale events: %w", err)
	}
	return count, nil
}

// --- Helpers ---

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var amount, entryPrice, exitPrice, pnl, status, source, venue, direction, closeReason string
	var exitTime sql.NullTime
	err := s.Scan(
		&p.ID, &source, &venue, &p.Pair.Base, &p.Pair.Quote, &direction, &amount,
		&entryPrice, &p.EntryTime, &status, &exitPrice, &exitTime, &closeReason,
		&pnl, &p.BlockNumber, &p.TxID)
	if err != nil {
		return nil, err
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("malformed amount '%s': %w", amount, err)
	}
	if p.EntryPrice, err = decimal.NewFromString(entryPrice); err != nil {
		return nil, fmt.Errorf("malformed entry price '%s': %w", entryPrice, err)
	}
	if p.ExitPrice, err = decimal.NewFromString(exitPrice); err != nil {
		return nil, fmt.Errorf("malformed exit price '%s': %w", exitPrice, err)
	}
	if p.PNL, err = decimal.NewFromString(pnl); err != nil {
		return nil, fmt.Errorf("malformed pnl '%s': %w", pnl, err)
	}
	if exitTime.Valid {
		p.ExitTime = exitTime.Time
	}
	p.Source = domain.PositionSource(source)
	p.Venue = domain.Venue(venue)
	p.Direction = domain.Direction(direction)
	p.Status = domain.PositionStatus(status)
	p.CloseReason = domain.CloseReason(closeReason)
	return p, nil
}
