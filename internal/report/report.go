// Package report analyzes a run log into the usual strategy statistics:
// win rate, profit factor, drawdown and the risk-adjusted ratios. The
// input is the recorder's log; realized profit is read off the close
// rows directly, so no trade matching is redone here.
package report

import (
	"errors"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/your-org/tick-session-engine/internal/market"
	"github.com/your-org/tick-session-engine/internal/recorder"
)

// ErrNoClosedTrades is returned when the log contains no rows that
// realized profit or loss.
var ErrNoClosedTrades = errors.New("no closed trades to analyze")

// Report holds the result of a run-log analysis.
type Report struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	TotalTrades        int     `json:"total_trades"`
	CancelledOrders    int     `json:"cancelled_orders"`
	ExpiredOrders      int     `json:"expired_orders"`
	WinningTrades      int     `json:"winning_trades"`
	LosingTrades       int     `json:"losing_trades"`
	WinRate            float64 `json:"win_rate"`
	LongWinningTrades  int     `json:"long_winning_trades"`
	LongLosingTrades   int     `json:"long_losing_trades"`
	LongWinRate        float64 `json:"long_win_rate"`
	ShortWinningTrades int     `json:"short_winning_trades"`
	ShortLosingTrades  int     `json:"short_losing_trades"`
	ShortWinRate       float64 `json:"short_win_rate"`

	TotalPnL        decimal.Decimal `json:"total_pnl"`
	TotalFee        decimal.Decimal `json:"total_fee"`
	NetPnL          decimal.Decimal `json:"net_pnl"`
	AverageProfit   decimal.Decimal `json:"average_profit"`
	AverageLoss     decimal.Decimal `json:"average_loss"`
	RiskRewardRatio float64         `json:"risk_reward_ratio"`
	ProfitFactor    float64         `json:"profit_factor"`
	MaxDrawdown     decimal.Decimal `json:"max_drawdown"`
	RecoveryFactor  float64         `json:"recovery_factor"`
	SharpeRatio     float64         `json:"sharpe_ratio"`
	SortinoRatio    float64         `json:"sortino_ratio"`

	MaxConsecutiveWins   int `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int `json:"max_consecutive_losses"`
}

// Analyze walks the run log and builds the report. Only order rows with
// a non-zero close size count as trades; open rows, cancels and expiries
// are tallied but realize nothing.
func Analyze(records []recorder.LogRecord) (Report, error) {
	var closes []*market.Order
	var cancelled, expired int

	for _, rec := range records {
		for _, msg := range rec.Data {
			o := msg.Order
			if o == nil {
				continue
			}
			switch o.Status {
			case market.StatusCancelled:
				cancelled++
				continue
			case market.StatusExpired:
				expired++
				continue
			}
			if o.CloseSize.IsPositive() {
				closes = append(closes, o)
			}
		}
	}

	if len(closes) == 0 {
		return Report{}, ErrNoClosedTrades
	}

	var (
		totalPnL, totalFee, totalProfit, totalLoss   decimal.Decimal
		longWins, longLosses, shortWins, shortLosses int
		pnlHistory                                   []decimal.Decimal

		consecutiveWins, consecutiveLosses       int
		maxConsecutiveWins, maxConsecutiveLosses int
	)

	for _, o := range closes {
		pnl := o.Profit
		totalPnL = totalPnL.Add(pnl)
		totalFee = totalFee.Add(o.Fee)
		pnlHistory = append(pnlHistory, pnl)

		// A sell row closes a long, a buy row closes a short.
		long := o.Side == market.Sell

		switch {
		case pnl.IsPositive():
			totalProfit = totalProfit.Add(pnl)
			if long {
				longWins++
			} else {
				shortWins++
			}
			consecutiveWins++
			consecutiveLosses = 0
			if consecutiveWins > maxConsecutiveWins {
				maxConsecutiveWins = consecutiveWins
			}
		case pnl.IsNegative():
			totalLoss = totalLoss.Add(pnl)
			if long {
				longLosses++
			} else {
				shortLosses++
			}
			consecutiveLosses++
			consecutiveWins = 0
			if consecutiveLosses > maxConsecutiveLosses {
				maxConsecutiveLosses = consecutiveLosses
			}
		}
	}

	winning := longWins + shortWins
	losing := longLosses + shortLosses
	total := len(closes)

	avgProfit := decimal.Zero
	if winning > 0 {
		avgProfit = totalProfit.Div(decimal.NewFromInt(int64(winning)))
	}
	avgLoss := decimal.Zero
	if losing > 0 {
		avgLoss = totalLoss.Div(decimal.NewFromInt(int64(losing)))
	}

	riskRewardRatio := 0.0
	if !avgLoss.IsZero() {
		riskRewardRatio = avgProfit.Div(avgLoss.Abs()).InexactFloat64()
	}
	profitFactor := 0.0
	if totalLoss.IsNegative() {
		profitFactor = totalProfit.Div(totalLoss.Abs()).InexactFloat64()
	}

	maxDrawdown := maxDrawdownOf(pnlHistory)
	recoveryFactor := 0.0
	if maxDrawdown.IsPositive() {
		recoveryFactor = totalPnL.Div(maxDrawdown).InexactFloat64()
	}

	pnlFloats := make([]float64, len(pnlHistory))
	for i, pnl := range pnlHistory {
		pnlFloats[i] = pnl.InexactFloat64()
	}

	return Report{
		StartDate:            closes[0].UpdateTime.Time(),
		EndDate:              closes[len(closes)-1].UpdateTime.Time(),
		TotalTrades:          total,
		CancelledOrders:      cancelled,
		ExpiredOrders:        expired,
		WinningTrades:        winning,
		LosingTrades:         losing,
		WinRate:              rate(winning, winning+losing),
		LongWinningTrades:    longWins,
		LongLosingTrades:     longLosses,
		LongWinRate:          rate(longWins, longWins+longLosses),
		ShortWinningTrades:   shortWins,
		ShortLosingTrades:    shortLosses,
		ShortWinRate:         rate(shortWins, shortWins+shortLosses),
		TotalPnL:             totalPnL,
		TotalFee:             totalFee,
		NetPnL:               totalPnL.Sub(totalFee),
		AverageProfit:        avgProfit,
		AverageLoss:          avgLoss,
		RiskRewardRatio:      riskRewardRatio,
		ProfitFactor:         profitFactor,
		MaxDrawdown:          maxDrawdown,
		RecoveryFactor:       recoveryFactor,
		SharpeRatio:          calculateSharpeRatio(pnlFloats, 0.0),
		SortinoRatio:         calculateSortinoRatio(pnlFloats, 0.0),
		MaxConsecutiveWins:   maxConsecutiveWins,
		MaxConsecutiveLosses: maxConsecutiveLosses,
	}, nil
}

func rate(part, whole int) float64 {
	if whole == 0 {
		return 0.0
	}
	return float64(part) / float64(whole) * 100
}

func maxDrawdownOf(pnlHistory []decimal.Decimal) decimal.Decimal {
	maxDrawdown := decimal.Zero
	peak := decimal.Zero
	equity := decimal.Zero
	for _, pnl := range pnlHistory {
		equity = equity.Add(pnl)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if drawdown := peak.Sub(equity); drawdown.GreaterThan(maxDrawdown) {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}

func calculateStandardDeviation(returns []float64, mean float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	variance := 0.0
	for _, r := range returns {
		variance += math.Pow(r-mean, 2)
	}
	return math.Sqrt(variance / float64(len(returns)))
}

func calculateDownsideDeviation(returns []float64, target float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	downsideVariance := 0.0
	downsideCount := 0
	for _, r := range returns {
		if r < target {
			downsideVariance += math.Pow(r-target, 2)
			downsideCount++
		}
	}
	if downsideCount == 0 {
		return 0.0
	}
	return math.Sqrt(downsideVariance / float64(downsideCount))
}

func calculateSharpeRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	stdDev := calculateStandardDeviation(returns, mean)
	if stdDev == 0 {
		return 0.0
	}
	return (mean - riskFreeRate) / stdDev
}

func calculateSortinoRatio(returns []float64, riskFreeRate float64) float64 {
	if len(returns) == 0 {
		return 0.0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	downsideDev := calculateDownsideDeviation(returns, 0)
	if downsideDev == 0 {
		return 0.0
	}
	return (mean - riskFreeRate) / downsideDev
}
