package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/your-org/tick-session-engine/internal/market"
)

// Querier is the read-side subset of pgxpool.Pool.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// LoadRecords reads a persisted run log back from the database into the
// same record shape a JSONL restore produces: order rows and indicator
// points, merged in time order, one event per record.
func LoadRecords(ctx context.Context, q Querier) ([]LogRecord, error) {
	orders, err := loadOrderRecords(ctx, q)
	if err != nil {
		return nil, err
	}
	indicators, err := loadIndicatorRecords(ctx, q)
	if err != nil {
		return nil, err
	}
	return mergeByTime(orders, indicators), nil
}

func loadOrderRecords(ctx context.Context, q Querier) ([]LogRecord, error) {
	rows, err := q.Query(ctx, `
		SELECT time, order_id, sub_id, side, order_type, status,
		       order_price, order_size, remain_size, execute_price, execute_size, is_maker,
		       open_size, close_size, position, profit, fee, total_profit, sum_profit, log_id
		FROM order_logs ORDER BY time, log_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query order rows: %w", err)
	}
	defer rows.Close()

	var out []LogRecord
	for rows.Next() {
		// NUMERIC columns scan as strings and parse into decimals.
		var (
			o market.Order
			t time.Time

			price, size, remain, execPrice, execSize   string
			openSize, closeSize, position, profit, fee string
			totalProfit, sumProfit                     string
		)
		err := rows.Scan(&t, &o.ID, &o.SubID, &o.Side, &o.Type, &o.Status,
			&price, &size, &remain, &execPrice, &execSize, &o.IsMaker,
			&openSize, &closeSize, &position, &profit, &fee, &totalProfit, &sumProfit,
			&o.LogID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}

		o.UpdateTime = market.TimeOf(t)
		o.CreateTime = o.UpdateTime
		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{
			{&o.Price, price}, {&o.Size, size}, {&o.RemainSize, remain},
			{&o.ExecutePrice, execPrice}, {&o.ExecuteSize, execSize},
			{&o.OpenSize, openSize}, {&o.CloseSize, closeSize},
			{&o.Position, position}, {&o.Profit, profit}, {&o.Fee, fee},
			{&o.TotalProfit, totalProfit}, {&o.SumProfit, sumProfit},
		} {
			d, err := decimal.NewFromString(f.src)
			if err != nil {
				return nil, fmt.Errorf("failed to parse decimal column %q: %w", f.src, err)
			}
			*f.dst = d
		}

		row := o
		out = append(out, LogRecord{T: row.UpdateTime, Data: []LogMessage{{Order: &row}}})
	}
	return out, rows.Err()
}

func loadIndicatorRecords(ctx context.Context, q Querier) ([]LogRecord, error) {
	rows, err := q.Query(ctx, `SELECT time, name, value FROM indicators ORDER BY time`)
	if err != nil {
		return nil, fmt.Errorf("failed to query indicators: %w", err)
	}
	defer rows.Close()

	var out []LogRecord
	for rows.Next() {
		var (
			t   time.Time
			ind market.Indicator
		)
		if err := rows.Scan(&t, &ind.Name, &ind.Value); err != nil {
			return nil, fmt.Errorf("failed to scan indicator row: %w", err)
		}
		ind.Time = market.TimeOf(t)
		point := ind
		out = append(out, LogRecord{T: point.Time, Data: []LogMessage{{Indicator: &point}}})
	}
	return out, rows.Err()
}

// mergeByTime interleaves two time-ordered record slices, keeping order
// rows ahead of indicators on equal timestamps.
func mergeByTime(a, b []LogRecord) []LogRecord {
	out := make([]LogRecord, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].T <= b[j].T {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
