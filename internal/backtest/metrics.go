package backtest

import (
	"encoding/json"
	"math"
	"time"

	"github.com/yourusername/candle-forge/internal/models"
)

// Metrics is the fixed structure of scalar performance figures produced by
// one run.
type Metrics struct {
	TotalReturn         float64       `json:"total_return"`
	AnnualizedReturn    float64       `json:"annualized_return"`
	WinRate             float64       `json:"win_rate"`
	MaxDrawdown         float64       `json:"max_drawdown"`
	MaxDrawdownDuration time.Duration `json:"max_drawdown_duration"`
	SharpeRatio         float64       `json:"sharpe_ratio"`
	SortinoRatio        float64       `json:"sortino_ratio"`
	CalmarRatio         float64       `json:"calmar_ratio"`
	ProfitFactor        float64       `json:"profit_factor"`
	Expectancy          float64       `json:"expectancy"`
	TotalTrades         int           `json:"total_trades"`
	WinningTrades       int           `json:"winning_trades"`
	LosingTrades        int           `json:"losing_trades"`
	AverageWin          float64       `json:"average_win"`
	AverageLoss         float64       `json:"average_loss"`
	LargestWin          float64       `json:"largest_win"`
	LargestLoss         float64       `json:"largest_loss"`
	GrossProfit         float64       `json:"gross_profit"`
	GrossLoss           float64       `json:"gross_loss"`
	TotalFees           float64       `json:"total_fees"`
	AvgTradeDuration    time.Duration `json:"avg_trade_duration"`
	FinalEquity         float64       `json:"final_equity"`
}

// Analyze is a pure function from trade list and equity curve to Metrics.
// Degenerate inputs (zero trades, fewer than two equity points) return the
// zero Metrics value, never an error.
func Analyze(trades []models.Trade, curve EquityCurve, initialCapital float64, elapsedDays float64) Metrics {
	if len(trades) == 0 || len(curve) < 2 {
		return Metrics{}
	}

	m := Metrics{TotalTrades: len(trades)}

	final := curve[len(curve)-1].Value
	m.FinalEquity = final
	if initialCapital > 0 {
		m.TotalReturn = (final - initialCapital) / initialCapital
		m.AnnualizedReturn = annualizedReturn(initialCapital, final, elapsedDays)
	}

	m.MaxDrawdown, m.MaxDrawdownDuration = maxDrawdown(curve)

	returns := curve.GetReturns()
	periodsPerYear := periodsPerYear(len(returns), elapsedDays)
	m.SharpeRatio = sharpe(returns, periodsPerYear)
	m.SortinoRatio = sortino(returns, periodsPerYear)
	if m.MaxDrawdown > 0 {
		m.CalmarRatio = m.AnnualizedReturn / m.MaxDrawdown
	}

	var totalDuration time.Duration
	for _, t := range trades {
		m.TotalFees += t.Fees
		totalDuration += t.Duration()
		switch {
		case t.PnL > 0:
			m.WinningTrades++
			m.GrossProfit += t.PnL
			if t.PnL > m.LargestWin {
				m.LargestWin = t.PnL
			}
		case t.PnL < 0:
			m.LosingTrades++
			m.GrossLoss += -t.PnL
			if t.PnL < m.LargestLoss {
				m.LargestLoss = t.PnL
			}
		}
	}
	m.AvgTradeDuration = totalDuration / time.Duration(len(trades))
	m.WinRate = float64(m.WinningTrades) / float64(m.TotalTrades)
	if m.WinningTrades > 0 {
		m.AverageWin = m.GrossProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AverageLoss = -m.GrossLoss / float64(m.LosingTrades)
	}
	if m.GrossLoss > 0 {
		m.ProfitFactor = m.GrossProfit / m.GrossLoss
	}
	m.Expectancy = m.WinRate*m.AverageWin - (1-m.WinRate)*math.Abs(m.AverageLoss)

	return m
}

// ToJSON exports metrics as a JSON string
func (m Metrics) ToJSON() string {
	data, _ := json.Marshal(m)
	return string(data)
}

// Value returns the named metric, for objective ranking. The second result
// is false for unknown names.
func (m Metrics) Value(name string) (float64, bool) {
	switch name {
	case "total_return":
		return m.TotalReturn, true
	case "annualized_return":
		return m.AnnualizedReturn, true
	case "sharpe_ratio":
		return m.SharpeRatio, true
	case "sortino_ratio":
		return m.SortinoRatio, true
	case "calmar_ratio":
		return m.CalmarRatio, true
	case "profit_factor":
		return m.ProfitFactor, true
	case "expectancy":
		return m.Expectancy, true
	case "win_rate":
		return m.WinRate, true
	case "max_drawdown":
		return m.MaxDrawdown, true
	default:
		return 0, false
	}
}

func maxDrawdown(curve EquityCurve) (float64, time.Duration) {
	maxDD := 0.0
	var maxDuration time.Duration
	peak := 0.0
	var peakTime time.Time
	for _, p := range curve {
		if p.Value >= peak {
			peak = p.Value
			peakTime = p.Time
			continue
		}
		if peak == 0 {
			continue
		}
		dd := (peak - p.Value) / peak
		if dd > maxDD {
			maxDD = dd
		}
		if d := p.Time.Sub(peakTime); d > maxDuration {
			maxDuration = d
		}
	}
	return maxDD, maxDuration
}

func annualizedReturn(initial, final, elapsedDays float64) float64 {
	if initial <= 0 || final <= 0 || elapsedDays <= 0 {
		return 0
	}
	years := elapsedDays / 365.0
	return math.Pow(final/initial, 1.0/years) - 1.0
}

func periodsPerYear(periods int, elapsedDays float64) float64 {
	if elapsedDays <= 0 {
		return 0
	}
	return float64(periods) / (elapsedDays / 365.0)
}

// sharpe is the mean of per-period returns over their standard deviation,
// annualized by the square root of periods per year. Zero when the return
// series has fewer than two points or zero variance.
func sharpe(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := average(returns)
	std := stddev(returns)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

// sortino is sharpe with only the downside deviation in the denominator
func sortino(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := average(returns)
	std := downsideStddev(returns)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := average(values)
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(values)))
}

func downsideStddev(values []float64) float64 {
	negatives := make([]float64, 0)
	for _, v := range values {
		if v < 0 {
			negatives = append(negatives, v)
		}
	}
	return stddev(negatives)
}
