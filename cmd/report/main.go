// Command report analyzes a recorded run (JSONL file or database) and
// prints the trading statistics as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/tick-session-engine/internal/recorder"
	"github.com/your-org/tick-session-engine/internal/report"
	"github.com/your-org/tick-session-engine/pkg/logger"
)

func main() {
	logPath := flag.String("log", "run.jsonl", "path to the run log")
	dbURL := flag.String("db", "", "read the run log from this postgres DSN instead of a file")
	flag.Parse()

	records, err := loadRecords(*logPath, *dbURL)
	if err != nil {
		logger.Fatalf("Failed to load run log: %v", err)
	}

	result, err := report.Analyze(records)
	if err != nil {
		logger.Fatalf("Failed to analyze run log: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Fatalf("Failed to encode report: %v", err)
	}
}

func loadRecords(logPath, dbURL string) ([]recorder.LogRecord, error) {
	if dbURL != "" {
		ctx := context.Background()
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return nil, err
		}
		defer pool.Close()
		return recorder.LoadRecords(ctx, pool)
	}

	f, err := os.Open(logPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	store, err := recorder.New("")
	if err != nil {
		return nil, err
	}
	if err := store.Restore(f); err != nil {
		return nil, err
	}
	return store.Records(), nil
}
