// Package retry はレート制限に対する指数バックオフ付きの再試行制御を提供します。
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shouni/gemini-photo-editor/pkg/adapters"
	"github.com/shouni/gemini-photo-editor/pkg/domain"
)

const (
	DefaultMaxAttempts = 8
	DefaultBaseDelay   = 7500 * time.Millisecond
	// JitterFactor は遅延に加える対称ジッタの幅 (±10%) です。
	JitterFactor = 0.1
	// MaxBackOff は1回の待機の上限です。Validate を通ったポリシーでは到達しません。
	MaxBackOff = 24 * time.Hour
	// MaxAttemptsLimit は MaxAttempts に指定できる上限です。
	MaxAttemptsLimit = 16
)

// Policy は再試行の上限と待機時間の基準値です。
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy は既定の再試行ポリシーを返します。
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

// Validate はポリシーの値を検証します。
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1: %d", p.MaxAttempts)
	}
	if p.MaxAttempts > MaxAttemptsLimit {
		return fmt.Errorf("max attempts must be at most %d: %d", MaxAttemptsLimit, p.MaxAttempts)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be positive: %s", p.BaseDelay)
	}
	// 最後の待機も BaseDelay*2^n のまま MaxBackOff に収まる必要がある
	if longest := p.LongestDelay(); longest > MaxBackOff {
		return fmt.Errorf("longest backoff %s exceeds %s (base delay %s, %d attempts)",
			longest, MaxBackOff, p.BaseDelay, p.MaxAttempts)
	}
	return nil
}

// LongestDelay はジッタを除いた最後の待機時間 BaseDelay*2^(MaxAttempts-2) を返します。
// 再試行が起きない場合は 0 です。
func (p Policy) LongestDelay() time.Duration {
	if p.MaxAttempts < 2 || p.BaseDelay <= 0 {
		return 0
	}
	if p.BaseDelay > MaxBackOff || p.MaxAttempts > MaxAttemptsLimit {
		return p.BaseDelay
	}
	return p.BaseDelay << (p.MaxAttempts - 2)
}

// Sleeper は ctx を尊重して d だけ待機します。
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep は標準の Sleeper です。
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// state は1リクエスト分の再試行状態です。終端に達したら破棄されます。
type state struct {
	attempt     int
	maxAttempts int
	baseDelay   time.Duration
	backoff     *backoff.ExponentialBackOff
}

// Controller は EditExecutor をレート制限向けの再試行で包みます。
// キャンセルは ctx でのみ扱い、送信済みの呼び出しは中断せず結果だけを捨てます。
type Controller struct {
	executor adapters.EditExecutor
	policy   Policy
	sleep    Sleeper
	metrics  *Metrics
}

// Option は Controller の任意設定です。
type Option func(*Controller)

// WithSleeper は待機処理を差し替えます（テスト用）。
func WithSleeper(s Sleeper) Option {
	return func(c *Controller) { c.sleep = s }
}

// WithMetrics は計測値の記録先を設定します。
func WithMetrics(m *Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// NewController は Controller を生成します。
func NewController(executor adapters.EditExecutor, policy Policy, opts ...Option) (*Controller, error) {
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		executor: executor,
		policy:   policy,
		sleep:    Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Policy は設定済みのポリシーを返します。
func (c *Controller) Policy() Policy { return c.policy }

// ExecuteWithRetry は編集リクエストを実行し、RateLimited の場合のみ指数バックオフで再試行します。
// observer は nil でもかまいません。
func (c *Controller) ExecuteWithRetry(ctx context.Context, req domain.EditRequest, observer ProgressObserver) (*domain.EditResult, error) {
	st := c.newState()
	var lastErr error

	for st.attempt = 1; st.attempt <= st.maxAttempts; st.attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c.metrics.attempt(ctx)
		res, err := c.executor.Execute(ctx, req)

		// 呼び出し中にキャンセルされた場合、返ってきた結果は捨てる
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if err == nil {
			c.metrics.outcome(ctx, nil)
			return res, nil
		}

		if !domain.IsRetryable(err) {
			slog.WarnContext(ctx, "再試行しないエラーで終了します",
				"attempt", st.attempt, "kind", domain.KindOf(err).String(), "error", err)
			c.metrics.outcome(ctx, err)
			return nil, err
		}

		lastErr = err
		if st.attempt == st.maxAttempts {
			break
		}

		delay := st.backoff.NextBackOff()
		slog.InfoContext(ctx, "レート制限に達しました。再試行を待機します",
			"attempt", st.attempt, "max_attempts", st.maxAttempts, "delay", delay)

		c.metrics.retry(ctx)
		if observer != nil {
			observer.OnRetry(ctx, RetryEvent{
				Attempt:     st.attempt,
				MaxAttempts: st.maxAttempts,
				Delay:       delay,
				Err:         err,
			})
		}

		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	busy := domain.NewServiceBusyError(st.maxAttempts, lastErr)
	slog.ErrorContext(ctx, "再試行の上限に達しました",
		"attempts", st.maxAttempts, "base_delay", st.baseDelay, "error", lastErr)
	c.metrics.outcome(ctx, busy)
	return nil, busy
}

func (c *Controller) newState() *state {
	return &state{
		maxAttempts: c.policy.MaxAttempts,
		baseDelay:   c.policy.BaseDelay,
		backoff:     NewBackOff(c.policy),
	}
}

// NewBackOff は n 回目 (0始まり) の遅延が BaseDelay*2^n*(1±0.1) になる ExponentialBackOff を返します。
func NewBackOff(p Policy) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.RandomizationFactor = JitterFactor
	b.Multiplier = 2
	b.MaxInterval = MaxBackOff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// IsCancelled は err がキャンセル（呼び出し元による中断）かどうかを返します。
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
