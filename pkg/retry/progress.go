package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

// RetryEvent は再試行を予約したことを知らせるイベントです。
type RetryEvent struct {
	// Attempt は失敗した試行の番号です（1始まり）。
	Attempt     int
	MaxAttempts int
	Delay       time.Duration
	Err         error
}

// Message は UI にそのまま表示できる待機メッセージを返します。
func (e RetryEvent) Message() string {
	seconds := int(math.Round(e.Delay.Seconds()))
	return fmt.Sprintf("Service is busy. Retrying in %ds...", seconds)
}

// ProgressObserver は再試行の進捗を受け取ります。
// 最終結果より前にしか呼ばれず、終端の失敗では呼ばれません。
type ProgressObserver interface {
	OnRetry(ctx context.Context, event RetryEvent)
}

// ProgressFunc は関数を ProgressObserver として使うためのアダプターです。
type ProgressFunc func(ctx context.Context, event RetryEvent)

func (f ProgressFunc) OnRetry(ctx context.Context, event RetryEvent) {
	f(ctx, event)
}

// ChannelObserver はイベントをチャネルへ送ります。受信側が詰まっている場合は ctx が終わるまで待ちます。
type ChannelObserver chan<- RetryEvent

func (c ChannelObserver) OnRetry(ctx context.Context, event RetryEvent) {
	select {
	case c <- event:
	case <-ctx.Done():
	}
}
