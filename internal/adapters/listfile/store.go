package listfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"whaleSnipeBot/internal/ports"
)

// Store implements ports.ListStore with append-only CSV files, one record
// per line. Lines are never rewritten in place.
type Store struct {
	snipePath  string
	filledPath string
	logger     ports.Logger
}

// Config holds the file locations for the list store.
type Config struct {
	SnipeListPath  string
	FilledListPath string
	Logger         ports.Logger
}

// New creates a list store, creating parent directories as needed.
func New(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for list store")
	}
	if cfg.SnipeListPath == "" || cfg.FilledListPath == "" {
		return nil, fmt.Errorf("snipe and filled list paths are required")
	}
	for _, p := range []string{cfg.SnipeListPath, cfg.FilledListPath} {
		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create list directory '%s': %w", dir, err)
			}
		}
	}
	return &Store{
		snipePath:  cfg.SnipeListPath,
		filledPath: cfg.FilledListPath,
		logger:     cfg.Logger,
	}, nil
}

// AppendSnipeCandidate appends one `pairId, assetIn, assetOut` line.
func (s *Store) AppendSnipeCandidate(c ports.SnipeCandidate) error {
	return s.appendLine(s.snipePath, []string{c.PairID, c.AssetIn, c.AssetOut})
}

// LoadSnipeCandidates reads every recorded candidate. A missing file is an
// empty list, not an error.
func (s *Store) LoadSnipeCandidates() ([]ports.SnipeCandidate, error) {
	rows, err := s.readAll(s.snipePath, 3)
	if err != nil {
		return nil, err
	}
	candidates := make([]ports.SnipeCandidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, ports.SnipeCandidate{
			PairID:   row[0],
			AssetIn:  row[1],
			AssetOut: row[2],
		})
	}
	return candidates, nil
}

// AppendFilledRecord appends one `blockNumber, assetIn, assetOut, entryPrice` line.
func (s *Store) AppendFilledRecord(r ports.FilledRecord) error {
	return s.appendLine(s.filledPath, []string{
		strconv.FormatUint(r.BlockNumber, 10), r.AssetIn, r.AssetOut, r.EntryPrice,
	})
}

// LoadFilledRecords reads every recorded fill.
func (s *Store) LoadFilledRecords() ([]ports.FilledRecord, error) {
	rows, err := s.readAll(s.filledPath, 4)
	if err != nil {
		return nil, err
	}
	records := make([]ports.FilledRecord, 0, len(rows))
	for _, row := range rows {
		block, err := strconv.ParseUint(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed block number '%s' in %s: %w", row[0], s.filledPath, err)
		}
		records = append(records, ports.FilledRecord{
			BlockNumber: block,
			AssetIn:     row[1],
			AssetOut:    row[2],
			EntryPrice:  row[3],
		})
	}
	return records, nil
}

func (s *Store) appendLine(path string, fields []string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open list file '%s' for append: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(fields); err != nil {
		return fmt.Errorf("failed to append record to '%s': %w", path, err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush record to '%s': %w", path, err)
	}
	s.logger.Debug(context.Background(), "List record appended", map[string]interface{}{"file": path})
	return nil
}

func (s *Store) readAll(path string, wantFields int) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open list file '%s': %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = wantFields
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read list file '%s': %w", path, err)
	}
	return rows, nil
}
