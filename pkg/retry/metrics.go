package retry

import (
	"context"
	"log/slog"

	"github.com/shouni/gemini-photo-editor/pkg/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/shouni/gemini-photo-editor/pkg/retry"

// Metrics は再試行制御の計測値です。MeterProvider 未設定時は no-op になります。
type Metrics struct {
	attempts metric.Int64Counter
	retries  metric.Int64Counter
	outcomes metric.Int64Counter
}

// NewMetrics はグローバル MeterProvider からカウンタを生成します。
func NewMetrics() *Metrics {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.attempts, err = meter.Int64Counter("photoedit.edit.attempts",
		metric.WithDescription("Number of edit requests sent to the remote service")); err != nil {
		slog.Warn("メトリクスの初期化に失敗しました", "name", "attempts", "error", err)
	}
	if m.retries, err = meter.Int64Counter("photoedit.edit.retries",
		metric.WithDescription("Number of retries scheduled after rate limiting")); err != nil {
		slog.Warn("メトリクスの初期化に失敗しました", "name", "retries", "error", err)
	}
	if m.outcomes, err = meter.Int64Counter("photoedit.edit.outcomes",
		metric.WithDescription("Terminal outcomes of edit requests by kind")); err != nil {
		slog.Warn("メトリクスの初期化に失敗しました", "name", "outcomes", "error", err)
	}
	return m
}

func (m *Metrics) attempt(ctx context.Context) {
	if m != nil && m.attempts != nil {
		m.attempts.Add(ctx, 1)
	}
}

func (m *Metrics) retry(ctx context.Context) {
	if m != nil && m.retries != nil {
		m.retries.Add(ctx, 1)
	}
}

func (m *Metrics) outcome(ctx context.Context, err error) {
	if m == nil || m.outcomes == nil {
		return
	}
	result := "success"
	if err != nil {
		result = domain.KindOf(err).String()
	}
	m.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
