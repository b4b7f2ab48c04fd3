// Command bot runs the session engine: it wires the configured feed,
// gateway and recorder together and drives the strategy agent until the
// stream ends, the execute-time limit is hit, or a signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/your-org/tick-session-engine/internal/alert"
	"github.com/your-org/tick-session-engine/internal/config"
	"github.com/your-org/tick-session-engine/internal/feed"
	"github.com/your-org/tick-session-engine/internal/gateway"
	"github.com/your-org/tick-session-engine/internal/http/handler"
	"github.com/your-org/tick-session-engine/internal/market"
	"github.com/your-org/tick-session-engine/internal/recorder"
	"github.com/your-org/tick-session-engine/internal/runner"
	"github.com/your-org/tick-session-engine/internal/session"
	"github.com/your-org/tick-session-engine/internal/strategy"
	"github.com/your-org/tick-session-engine/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.SetGlobalLogLevel(cfg.LogLevel)

	if err := run(cfg); err != nil {
		logger.Errorf("Run aborted: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	mode, err := runner.ParseMode(cfg.Runner.Mode)
	if err != nil {
		return err
	}
	logger.Infof("Session engine starting: mode=%s symbol=%s", mode, cfg.Market.Symbol)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess := session.New(session.Config{
		Symbol:          cfg.Market.Symbol,
		PriceUnit:       decimal.NewFromFloat(cfg.Market.PriceUnit),
		MakerFeeRate:    decimal.NewFromFloat(cfg.Market.MakerFeeRate),
		TakerFeeRate:    decimal.NewFromFloat(cfg.Market.TakerFeeRate),
		MarketOrderSlip: decimal.NewFromFloat(cfg.Session.MarketOrderSlip),
		HistorySize:     cfg.OHLCV.HistorySize,
		// In a real run the venue executes; the session books the fills
		// it reports instead of simulating its own.
		ExternalFills: mode == runner.Real,
	})

	rec, err := recorder.New(cfg.Runner.LogFile)
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}
	defer rec.Close()

	var pgSink *recorder.PostgresSink
	if cfg.Database.URL != "" {
		if err := recorder.RunMigrations(cfg.Database.URL, "db/migrations"); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		zapLogger, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("failed to build logger: %w", err)
		}
		defer zapLogger.Sync()

		pgSink = recorder.NewPostgresSink(pool, recorder.PostgresConfig{
			BatchSize:     cfg.Database.BatchSize,
			WriteInterval: cfg.Database.WriteInterval.Duration(),
		}, zapLogger)
		defer pgSink.Close()
		logger.Info("Postgres run-log sink initialized")
	}

	var mirror *gateway.Mirror
	if mode == runner.Real {
		gateway.SetBaseURL(cfg.Gateway.BaseURL)
		client := gateway.NewClient(cfg.Market.Symbol, cfg.Gateway.APIKey, cfg.Gateway.APISecret)
		bal, err := client.Balance(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch venue balance: %w", err)
		}
		logger.Infof("Venue balance: cash=%s position=%s", bal.Cash, bal.Position)
		mirror = gateway.NewMirror(client)
	}

	board := handler.NewStatusBoard(string(runner.StatusIdle))
	sess.SetSink(func(e market.Event) {
		rec.Record(e)
		if pgSink != nil {
			pgSink.Record(e)
		}
		if mirror != nil {
			mirror.Observe(ctx, e)
		}
		if snap, ok := e.(market.AccountSnapshot); ok {
			board.SetAccount(snap)
		}
	})

	var events feed.EventSource
	switch mode {
	case runner.BackTest:
		if cfg.Feed.CSVPath == "" {
			return fmt.Errorf("feed.csv_path is required in backtest mode")
		}
		events = &feed.TickEvents{Source: &feed.CSVSource{Path: cfg.Feed.CSVPath}}

	case runner.Real:
		// Public ticks and private venue notifications merge into the
		// one stream the session consumes.
		events = &feed.Merge{
			Sources: []feed.EventSource{
				&feed.TickEvents{Source: newTradeFeed(cfg)},
				&gateway.UserStream{
					URL:            cfg.Gateway.UserStreamURL,
					APIKey:         cfg.Gateway.APIKey,
					SecretKey:      cfg.Gateway.APISecret,
					MaxRetries:     cfg.Feed.MaxRetries,
					InitialBackoff: cfg.Feed.InitialBackoff.Duration(),
					ReadTimeout:    cfg.Feed.ReadTimeout.Duration(),
				},
			},
			Size: cfg.Session.QueueSize,
		}

	default: // dry
		events = &feed.TickEvents{Source: &feed.BufferedSource{
			Inner: newTradeFeed(cfg),
			Size:  cfg.Session.QueueSize,
		}}
	}

	agent := strategy.NewSMACross(
		cfg.Strategy.WindowSec,
		cfg.Strategy.FastBars,
		cfg.Strategy.SlowBars,
		decimal.NewFromFloat(cfg.Strategy.OrderSize),
	)

	r := runner.New(runner.Config{
		Mode:             mode,
		ExecuteTime:      time.Duration(cfg.Runner.ExecuteTimeSec) * time.Second,
		ProgressInterval: time.Duration(cfg.Runner.ProgressIntervalSec) * time.Second,
	}, sess)

	// Live modes expose health and status endpoints for the supervisor.
	// The handlers read the board, never the session, so they are safe
	// to serve while the runner goroutine mutates run state.
	if mode != runner.BackTest {
		srv := newStatusServer(board)
		go func() {
			logger.Info("Status server listening on :8080")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("Status server failed: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	notifier := alert.FromConfig(cfg.Alert.WebhookURL)
	defer notifier.Close()

	board.SetStatus(string(runner.StatusRunning))
	runErr := r.RunEvents(ctx, agent, events)
	board.SetStatus(string(r.Status()))
	if runErr != nil {
		if alertErr := notifier.Send(fmt.Sprintf("Run failed (%s, %s): %v", cfg.Market.Symbol, mode, runErr)); alertErr != nil {
			logger.Errorf("Failed to send failure alert: %v", alertErr)
		}
		return runErr
	}

	sum := r.Summary()
	if pgSink != nil {
		// The signal context may already be cancelled on a stop.
		saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := pgSink.SaveRunSummary(saveCtx, recorder.RunSummary{
			StartTime:   sum.StartTime.Time(),
			EndTime:     sum.EndTime.Time(),
			Symbol:      cfg.Market.Symbol,
			Mode:        string(mode),
			TickCount:   sum.TickCount,
			OrderCount:  sum.Orders.LimitBuy + sum.Orders.LimitSell + sum.Orders.MarketBuy + sum.Orders.MarketSell,
			Profit:      sum.Profit,
			Fee:         sum.Fee,
			TotalProfit: sum.TotalProfit,
		})
		if err != nil {
			logger.Errorf("Failed to persist run summary: %v", err)
		}
	}
	logger.Infof("Run %s: ticks=%d profit=%.4f fee=%.4f net=%.4f",
		sum.Status, sum.TickCount, sum.Profit, sum.Fee, sum.TotalProfit)
	return nil
}

// newTradeFeed builds the public trade websocket source.
func newTradeFeed(cfg *config.Config) *feed.WebSocketSource {
	return &feed.WebSocketSource{
		URL:            cfg.Feed.URL,
		Channel:        cfg.Feed.Channel,
		MaxRetries:     cfg.Feed.MaxRetries,
		InitialBackoff: cfg.Feed.InitialBackoff.Duration(),
		ReadTimeout:    cfg.Feed.ReadTimeout.Duration(),
	}
}

func newStatusServer(board *handler.StatusBoard) *http.Server {
	router := chi.NewRouter()
	router.Get("/healthz", handler.HealthCheckHandler)
	handler.NewStatusHandler(board).RegisterRoutes(router)
	return &http.Server{Addr: ":8080", Handler: router}
}
