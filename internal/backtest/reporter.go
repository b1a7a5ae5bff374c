package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GenerateConsoleReport formats a run result for terminal output
func GenerateConsoleReport(result *Result) string {
	var builder strings.Builder
	builder.WriteString("Backtest Report\n")
	builder.WriteString("================\n")
	builder.WriteString(fmt.Sprintf("Symbol: %s %s\n", result.Symbol, result.Timeframe))
	builder.WriteString(fmt.Sprintf("Strategy: %s (%s)\n", result.Strategy, result.Params.Hash()))
	builder.WriteString(fmt.Sprintf("Period: %s -> %s\n", result.StartDate.Format("2006-01-02"), result.EndDate.Format("2006-01-02")))
	builder.WriteString(fmt.Sprintf("Total Return: %.2f%%\n", result.Metrics.TotalReturn*100))
	builder.WriteString(fmt.Sprintf("Annualized Return: %.2f%%\n", result.Metrics.AnnualizedReturn*100))
	builder.WriteString(fmt.Sprintf("Sharpe Ratio: %.2f\n", result.Metrics.SharpeRatio))
	builder.WriteString(fmt.Sprintf("Sortino Ratio: %.2f\n", result.Metrics.SortinoRatio))
	builder.WriteString(fmt.Sprintf("Max Drawdown: %.2f%%\n", result.Metrics.MaxDrawdown*100))
	builder.WriteString(fmt.Sprintf("Win Rate: %.2f%% (%d/%d)\n", result.Metrics.WinRate*100, result.Metrics.WinningTrades, result.Metrics.TotalTrades))
	builder.WriteString(fmt.Sprintf("Profit Factor: %.2f\n", result.Metrics.ProfitFactor))
	builder.WriteString(fmt.Sprintf("Expectancy: %.4f\n", result.Metrics.Expectancy))
	builder.WriteString(fmt.Sprintf("Total Fees: %.4f\n", result.Metrics.TotalFees))
	return builder.String()
}

// ExportToJSON writes a run result to a JSON file
func ExportToJSON(result *Result, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return os.WriteFile(outputPath, data, 0o644)
}

// ExportEquityCSV writes the equity curve to a CSV file
func ExportEquityCSV(result *Result, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outputPath, []byte(result.EquityCurve.ToCSV()), 0o644)
}
