package retry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shouni/gemini-photo-editor/pkg/domain"
)

// scriptedExecutor は用意した結果を順番に返す EditExecutor のモックなのだ。
// 用意した分を使い切ったあとは最後の結果を返し続けるのだ。
type scriptedExecutor struct {
	mu      sync.Mutex
	results []error
	calls   int
	hook    func(call int)
}

func (s *scriptedExecutor) Execute(ctx context.Context, req domain.EditRequest) (*domain.EditResult, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	var err error
	if len(s.results) > 0 {
		err = s.results[min(call, len(s.results))-1]
	}
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if err != nil {
		return nil, err
	}
	return &domain.EditResult{Data: []byte("edited"), MimeType: "image/png"}, nil
}

func (s *scriptedExecutor) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// recordingSleeper は実際には待たずに遅延だけを記録するのだ。
type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

// recordingObserver は受け取ったイベントを記録するのだ。
type recordingObserver struct {
	events []RetryEvent
}

func (r *recordingObserver) OnRetry(ctx context.Context, event RetryEvent) {
	r.events = append(r.events, event)
}

func rateLimited() error {
	return domain.NewRateLimitedError(errors.New("Error 429: RESOURCE_EXHAUSTED"))
}

func repeat(err error, n int) []error {
	out := make([]error, n)
	for i := range out {
		out[i] = err
	}
	return out
}
