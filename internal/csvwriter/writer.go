// Package csvwriter streams OHLCV candles to a CSV file.
package csvwriter

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/tick-session-engine/internal/ohlcv"
)

var header = []string{"time", "open", "high", "low", "close", "volume", "count"}

// Writer writes candle rows to a CSV file. It is safe for concurrent
// use.
type Writer struct {
	file   *os.File
	writer *csv.Writer
	logger *zap.Logger
	mu     sync.Mutex
	rows   int
}

// NewWriter creates the output file and writes the header row.
func NewWriter(filePath string, logger *zap.Logger) (*Writer, error) {
	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV file: %w", err)
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	return &Writer{
		file:   file,
		writer: writer,
		logger: logger,
	}, nil
}

// WriteBar appends one candle row.
func (w *Writer) WriteBar(b ohlcv.Bar) error {
	record := []string{
		b.Time.Time().UTC().Format(time.RFC3339),
		b.Open.String(),
		b.High.String(),
		b.Low.String(),
		b.Close.String(),
		b.Volume.String(),
		strconv.FormatInt(b.Count, 10),
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record to CSV: %w", err)
	}
	w.rows++
	return nil
}

// Flush flushes any buffered data to the underlying file.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writer.Flush()
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.Flush()
	w.logger.Info("Finished writing candles", zap.String("file", w.file.Name()), zap.Int("rows", w.rows))
	return w.file.Close()
}
