package recorder

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/tick-session-engine/internal/market"
)

// fakeRows implements pgx.Rows over a fixed result set.
type fakeRows struct {
	data [][]interface{}
	pos  int
}

func (f *fakeRows) Close()                                       {}
func (f *fakeRows) Err() error                                   { return nil }
func (f *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (f *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (f *fakeRows) Values() ([]interface{}, error)               { return f.data[f.pos-1], nil }
func (f *fakeRows) RawValues() [][]byte                          { return nil }
func (f *fakeRows) Conn() *pgx.Conn                              { return nil }

func (f *fakeRows) Next() bool {
	f.pos++
	return f.pos <= len(f.data)
}

func (f *fakeRows) Scan(dest ...interface{}) error {
	row := f.data[f.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan expects %d destinations, got %d", len(row), len(dest))
	}
	for i, src := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = src.(string)
		case *time.Time:
			*d = src.(time.Time)
		case *int:
			*d = src.(int)
		case *int64:
			*d = src.(int64)
		case *float64:
			*d = src.(float64)
		case *bool:
			*d = src.(bool)
		case *market.Side:
			*d = market.Side(src.(string))
		case *market.OrderType:
			*d = market.OrderType(src.(string))
		case *market.OrderStatus:
			*d = market.OrderStatus(src.(string))
		default:
			return fmt.Errorf("unsupported scan destination %T", dest[i])
		}
	}
	return nil
}

// fakeQuerier routes order_logs and indicators queries to canned rows.
type fakeQuerier struct {
	orders     [][]interface{}
	indicators [][]interface{}
}

func (f *fakeQuerier) Query(_ context.Context, sql string, _ ...interface{}) (pgx.Rows, error) {
	if strings.Contains(sql, "order_logs") {
		return &fakeRows{data: f.orders}, nil
	}
	return &fakeRows{data: f.indicators}, nil
}

func orderRow(at time.Time, id string, logID int64) []interface{} {
	return []interface{}{
		at, id, 0, "Buy", "Limit", "Filled",
		"100", "1", "0", "100", "1", true,
		"1", "0", "1", "0", "0.02", "-0.02", "0",
		logID,
	}
}

func TestLoadRecordsMergesOrdersAndIndicators(t *testing.T) {
	base := time.Unix(100, 0).UTC()
	q := &fakeQuerier{
		orders: [][]interface{}{
			orderRow(base, "o-1", 1),
			orderRow(base.Add(2*time.Second), "o-2", 2),
		},
		indicators: [][]interface{}{
			{base.Add(time.Second), "sma_fast", 100.5},
		},
	}

	recs, err := LoadRecords(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, recs, 3)

	require.NotNil(t, recs[0].Data[0].Order)
	assert.Equal(t, "o-1", recs[0].Data[0].Order.ID)
	require.NotNil(t, recs[1].Data[0].Indicator)
	assert.Equal(t, "sma_fast", recs[1].Data[0].Indicator.Name)
	require.NotNil(t, recs[2].Data[0].Order)
	assert.Equal(t, "o-2", recs[2].Data[0].Order.ID)

	o := recs[0].Data[0].Order
	assert.Equal(t, market.Buy, o.Side)
	assert.Equal(t, market.StatusFilled, o.Status)
	assert.True(t, o.Fee.Equal(dec("0.02")))
	assert.Equal(t, market.TimeOf(base), o.UpdateTime)
}

func TestLoadRecordsRejectsBadDecimal(t *testing.T) {
	row := orderRow(time.Unix(100, 0).UTC(), "o-1", 1)
	row[6] = "not-a-number"
	q := &fakeQuerier{orders: [][]interface{}{row}}

	_, err := LoadRecords(context.Background(), q)
	assert.Error(t, err)
}
