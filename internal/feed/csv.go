package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/your-org/tick-session-engine/internal/market"
	"github.com/your-org/tick-session-engine/pkg/logger"
)

// CSVSource replays a trade capture from disk. The file is expected to
// have a header and the following columns: time, side, price, size, id.
// Start and End optionally bound the replay window: ticks before Start
// are skipped, the stream ends at the first tick at or after End.
type CSVSource struct {
	Path  string
	Start market.MicroSec
	End   market.MicroSec
}

// Stream implements Source. Records that fail to parse are skipped with
// a warning; ticks that would move time backwards are dropped so the
// session only ever sees a non-decreasing clock.
func (c *CSVSource) Stream(ctx context.Context) (<-chan market.Tick, <-chan error) {
	tickCh := make(chan market.Tick)
	errCh := make(chan error, 1)

	go func() {
		defer close(tickCh)
		defer close(errCh)

		file, err := os.Open(c.Path)
		if err != nil {
			errCh <- fmt.Errorf("failed to open csv file: %w", err)
			return
		}
		defer file.Close()

		reader := csv.NewReader(file)
		if _, err := reader.Read(); err != nil {
			if err != io.EOF {
				errCh <- fmt.Errorf("failed to read csv header: %w", err)
			}
			return // Empty file is not an error
		}

		var lastTime market.MicroSec
		var total int

		for {
			select {
			case <-ctx.Done():
				logger.Info("CSV streaming cancelled by context.")
				return
			default:
			}

			record, err := reader.Read()
			if err == io.EOF {
				logger.Infof("Successfully streamed %d ticks from %s", total, c.Path)
				return
			}
			if err != nil {
				errCh <- fmt.Errorf("failed to read csv record: %w", err)
				return
			}

			t, ok := parseTickRecord(record)
			if !ok {
				continue
			}
			if c.Start > 0 && t.Time < c.Start {
				continue
			}
			if c.End > 0 && t.Time >= c.End {
				logger.Infof("Reached end of replay window, streamed %d ticks from %s", total, c.Path)
				return
			}
			if t.Time < lastTime {
				logger.Warnf("Skipping out-of-order tick: %s < %s", t.Time, lastTime)
				continue
			}
			lastTime = t.Time

			select {
			case tickCh <- t:
				total++
			case <-ctx.Done():
				return
			}
		}
	}()

	return tickCh, errCh
}

// LoadTicksFromCSV reads an entire capture into memory. Used by the
// export tool and by backtests small enough not to need streaming.
func LoadTicksFromCSV(path string) ([]market.Tick, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return []market.Tick{}, nil // Empty file is okay
		}
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	var ticks []market.Tick
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv record: %w", err)
		}
		if t, ok := parseTickRecord(record); ok {
			ticks = append(ticks, t)
		}
	}
	return ticks, nil
}

func parseTickRecord(record []string) (market.Tick, bool) {
	if len(record) < 4 {
		logger.Warnf("Skipping record due to invalid number of columns: expected at least 4, got %d", len(record))
		return market.Tick{}, false
	}

	ts, err := parseTime(record[0])
	if err != nil {
		logger.Warnf("Skipping record due to time parse error: %v", err)
		return market.Tick{}, false
	}

	var side market.Side
	switch record[1] {
	case "Buy", "buy", "B":
		side = market.Buy
	case "Sell", "sell", "S":
		side = market.Sell
	default:
		logger.Warnf("Skipping record due to unknown side %q", record[1])
		return market.Tick{}, false
	}

	price, err := decimal.NewFromString(record[2])
	if err != nil {
		logger.Warnf("Skipping record due to price parse error: %v", err)
		return market.Tick{}, false
	}
	size, err := decimal.NewFromString(record[3])
	if err != nil {
		logger.Warnf("Skipping record due to size parse error: %v", err)
		return market.Tick{}, false
	}

	var id string
	if len(record) > 4 {
		id = record[4]
	}

	return market.Tick{Time: ts, Side: side, Price: price, Size: size, ID: id}, true
}

// parseTime accepts either a unix microsecond integer or an RFC3339
// timestamp, which covers both exchange exports and our own captures.
func parseTime(s string) (market.MicroSec, error) {
	if us, err := strconv.ParseInt(s, 10, 64); err == nil {
		return market.MicroSec(us), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, fmt.Errorf("could not parse time '%s' with any known format", s)
	}
	return market.TimeOf(t), nil
}
