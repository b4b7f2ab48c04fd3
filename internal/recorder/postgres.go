package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/your-org/tick-session-engine/internal/market"
)

// Pool is an interface that abstracts the pgxpool.Pool for testability.
type Pool interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Close()
}

// PostgresConfig tunes the batch writer.
type PostgresConfig struct {
	BatchSize     int
	WriteInterval time.Duration
}

// PostgresSink batches session events into the database. A nil pool
// yields a dummy sink that drops everything, so callers never branch on
// whether persistence is configured.
type PostgresSink struct {
	pool   Pool
	logger *zap.Logger
	config PostgresConfig

	orderBuffer     []*market.Order
	accountBuffer   []market.AccountSnapshot
	indicatorBuffer []market.Indicator
	bufferMutex     sync.Mutex

	flushTicker  *time.Ticker
	shutdownChan chan struct{}
}

// NewPostgresSink creates the sink and starts its background flusher.
func NewPostgresSink(pool Pool, config PostgresConfig, logger *zap.Logger) *PostgresSink {
	s := &PostgresSink{
		pool:         pool,
		logger:       logger,
		config:       config,
		shutdownChan: make(chan struct{}),
	}
	if pool == nil {
		logger.Info("pgx pool is nil, creating dummy run-log sink.")
		return s
	}

	if s.config.WriteInterval <= 0 {
		s.config.WriteInterval = time.Second
		logger.Warn("WriteInterval is zero or negative, defaulting to 1s.")
	}
	if s.config.BatchSize <= 0 {
		s.config.BatchSize = 100
		logger.Warn("BatchSize is zero or negative, defaulting to 100.")
	}

	s.orderBuffer = make([]*market.Order, 0, s.config.BatchSize)
	s.accountBuffer = make([]market.AccountSnapshot, 0, s.config.BatchSize)
	s.indicatorBuffer = make([]market.Indicator, 0, s.config.BatchSize)

	s.flushTicker = time.NewTicker(s.config.WriteInterval)
	go s.run()
	logger.Info("Started run-log batch writer")
	return s
}

// Record buffers one session event for the next batch flush.
func (s *PostgresSink) Record(e market.Event) {
	if s.pool == nil {
		return
	}

	s.bufferMutex.Lock()
	switch v := e.(type) {
	case *market.Order:
		s.orderBuffer = append(s.orderBuffer, v)
	case market.AccountSnapshot:
		s.accountBuffer = append(s.accountBuffer, v)
	case market.Indicator:
		s.indicatorBuffer = append(s.indicatorBuffer, v)
	}
	shouldFlush := len(s.orderBuffer) >= s.config.BatchSize ||
		len(s.accountBuffer) >= s.config.BatchSize ||
		len(s.indicatorBuffer) >= s.config.BatchSize
	s.bufferMutex.Unlock()

	if shouldFlush {
		s.flushBuffers()
	}
}

// Close stops the flusher, flushes what remains and closes the pool.
func (s *PostgresSink) Close() {
	if s.pool == nil {
		return
	}

	s.logger.Info("Closing run-log sink...")
	close(s.shutdownChan)
	s.flushTicker.Stop()

	s.flushBuffers()
	s.pool.Close()
	s.logger.Info("Run-log connection pool closed")
}

func (s *PostgresSink) run() {
	for {
		select {
		case <-s.flushTicker.C:
			s.flushBuffers()
		case <-s.shutdownChan:
			return
		}
	}
}

func (s *PostgresSink) flushBuffers() {
	s.bufferMutex.Lock()
	defer s.bufferMutex.Unlock()

	if len(s.orderBuffer) > 0 {
		s.batchInsertOrders(context.Background(), s.orderBuffer)
		s.orderBuffer = s.orderBuffer[:0]
	}
	if len(s.accountBuffer) > 0 {
		s.batchInsertAccounts(context.Background(), s.accountBuffer)
		s.accountBuffer = s.accountBuffer[:0]
	}
	if len(s.indicatorBuffer) > 0 {
		s.batchInsertIndicators(context.Background(), s.indicatorBuffer)
		s.indicatorBuffer = s.indicatorBuffer[:0]
	}
}

func (s *PostgresSink) batchInsertOrders(ctx context.Context, orders []*market.Order) {
	s.logger.Debug("Flushing order rows", zap.Int("count", len(orders)))

	rows := make([][]interface{}, len(orders))
	for i, o := range orders {
		rows[i] = []interface{}{
			o.UpdateTime.Time(), o.ID, o.SubID, string(o.Side), string(o.Type), string(o.Status),
			o.Price, o.Size, o.RemainSize, o.ExecutePrice, o.ExecuteSize, o.IsMaker,
			o.OpenSize, o.CloseSize, o.Position, o.Profit, o.Fee, o.TotalProfit, o.SumProfit,
			o.LogID,
		}
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"order_logs"},
		[]string{
			"time", "order_id", "sub_id", "side", "order_type", "status",
			"order_price", "order_size", "remain_size", "execute_price", "execute_size", "is_maker",
			"open_size", "close_size", "position", "profit", "fee", "total_profit", "sum_profit",
			"log_id",
		},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		s.logger.Error("Failed to batch insert order rows", zap.Error(err))
	}
}

func (s *PostgresSink) batchInsertAccounts(ctx context.Context, snaps []market.AccountSnapshot) {
	s.logger.Debug("Flushing account snapshots", zap.Int("count", len(snaps)))

	rows := make([][]interface{}, len(snaps))
	for i, a := range snaps {
		rows[i] = []interface{}{a.Time.Time(), a.Position, a.AveragePrice, a.Profit, a.Fee, a.TotalProfit}
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"account_snapshots"},
		[]string{"time", "position", "average_price", "profit", "fee", "total_profit"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		s.logger.Error("Failed to batch insert account snapshots", zap.Error(err))
	}
}

func (s *PostgresSink) batchInsertIndicators(ctx context.Context, inds []market.Indicator) {
	s.logger.Debug("Flushing indicators", zap.Int("count", len(inds)))

	rows := make([][]interface{}, len(inds))
	for i, ind := range inds {
		rows[i] = []interface{}{ind.Time.Time(), ind.Name, ind.Value}
	}

	_, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{"indicators"},
		[]string{"time", "name", "value"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		s.logger.Error("Failed to batch insert indicators", zap.Error(err))
	}
}

// RunSummary is the end-of-run aggregate persisted once per run.
type RunSummary struct {
	StartTime   time.Time
	EndTime     time.Time
	Symbol      string
	Mode        string
	TickCount   int64
	OrderCount  int64
	Profit      float64
	Fee         float64
	TotalProfit float64
}

// SaveRunSummary persists the end-of-run aggregate.
func (s *PostgresSink) SaveRunSummary(ctx context.Context, sum RunSummary) error {
	if s.pool == nil {
		s.logger.Debug("Skipping run summary save for dummy sink", zap.Any("summary", sum))
		return nil
	}

	query := `INSERT INTO run_summaries (start_time, end_time, symbol, mode, tick_count, order_count, profit, fee, total_profit)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.pool.Exec(ctx, query,
		sum.StartTime, sum.EndTime, sum.Symbol, sum.Mode,
		sum.TickCount, sum.OrderCount,
		sum.Profit, sum.Fee, sum.TotalProfit,
	)
	if err != nil {
		s.logger.Error("Failed to insert run summary", zap.Error(err), zap.Any("summary", sum))
		return fmt.Errorf("failed to insert run summary: %w", err)
	}
	return nil
}
