package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"swing-backtest/internal/model"
	"swing-backtest/internal/stats"
)

// Sink turns finished runs into alerts. Losing runs are warnings, the rest
// informational.
type Sink struct {
	n Notifier

	// LossOnly suppresses alerts for runs that did not lose money.
	LossOnly bool
}

// NewSink wraps n as a result sink.
func NewSink(n Notifier) *Sink {
	return &Sink{n: n}
}

// Publish sends the run summary.
func (s *Sink) Publish(ctx context.Context, r model.RunResult) error {
	var sum stats.Summary
	if err := json.Unmarshal(r.Summary, &sum); err != nil {
		return fmt.Errorf("notify: decode summary: %w", err)
	}
	alert := RunAlert(r.Symbol, r.Strategy, sum)
	if s.LossOnly && alert.Level == AlertInfo {
		return nil
	}
	return s.n.Send(ctx, alert)
}

// Close is a no-op.
func (s *Sink) Close() error { return nil }

// RunAlert summarises one strategy run.
func RunAlert(symbol, strategy string, sum stats.Summary) Alert {
	level := AlertInfo
	if sum.NetProfit < 0 {
		level = AlertWarning
	}
	return Alert{
		Level: level,
		Title: fmt.Sprintf("%s %s", symbol, strategy),
		Message: fmt.Sprintf("%d trades, %.2f%% win rate, net %.2f (%+.2f%%), max drawdown %.2f%%",
			sum.TotalTrades, sum.WinRate, sum.NetProfit, sum.TotalReturnPct, sum.MaxDrawdownPct),
	}
}

// FailureAlert reports a backtest that did not complete.
func FailureAlert(symbol string, err error) Alert {
	return Alert{
		Level:   AlertCritical,
		Title:   fmt.Sprintf("%s backtest failed", symbol),
		Message: err.Error(),
	}
}
