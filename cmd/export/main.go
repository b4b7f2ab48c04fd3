// Command export converts a raw tick CSV into an OHLCV candle CSV.
package main

import (
	"flag"

	"go.uber.org/zap"

	"github.com/your-org/tick-session-engine/internal/csvwriter"
	"github.com/your-org/tick-session-engine/internal/feed"
	"github.com/your-org/tick-session-engine/internal/market"
	"github.com/your-org/tick-session-engine/internal/ohlcv"
	"github.com/your-org/tick-session-engine/pkg/logger"
)

func main() {
	input := flag.String("input", "", "path to the tick CSV")
	output := flag.String("output", "candles.csv", "path to the candle CSV to write")
	windowSec := flag.Int64("window", 60, "candle window in seconds")
	flag.Parse()

	if *input == "" {
		logger.Fatal("--input is required")
	}
	if *windowSec <= 0 {
		logger.Fatalf("--window must be positive, got %d", *windowSec)
	}

	ticks, err := feed.LoadTicksFromCSV(*input)
	if err != nil {
		logger.Fatalf("Failed to load ticks from %s: %v", *input, err)
	}
	if len(ticks) == 0 {
		logger.Fatalf("No ticks found in %s", *input)
	}

	agg := ohlcv.New(ohlcv.DefaultHistorySize)
	for _, t := range ticks {
		agg.Append(t)
	}

	start := market.FloorSec(ticks[0].Time, *windowSec)
	bars, err := agg.BarsBetween(*windowSec, start, ticks[len(ticks)-1].Time)
	if err != nil {
		logger.Fatalf("Failed to aggregate candles: %v", err)
	}

	zapLogger, err := zap.NewProduction()
	if err != nil {
		logger.Fatalf("Failed to build logger: %v", err)
	}
	defer zapLogger.Sync()

	writer, err := csvwriter.NewWriter(*output, zapLogger)
	if err != nil {
		logger.Fatalf("Failed to create candle writer: %v", err)
	}
	for _, b := range bars {
		if err := writer.WriteBar(b); err != nil {
			logger.Fatalf("Failed to write candle: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		logger.Fatalf("Failed to close candle writer: %v", err)
	}

	logger.Infof("Exported %d candles (%ds window) from %d ticks to %s", len(bars), *windowSec, len(ticks), *output)
}
