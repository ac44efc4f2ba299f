// Package editor は UI や CLI から呼ばれる画像編集サービスを提供します。
// リモートの編集サービスへのリクエストは、構成された戦略（再試行またはキュー）で常に1件ずつ送られます。
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shouni/gemini-photo-editor/pkg/adapters"
	"github.com/shouni/gemini-photo-editor/pkg/domain"
	"github.com/shouni/gemini-photo-editor/pkg/queue"
	"github.com/shouni/gemini-photo-editor/pkg/retry"
)

// Strategy はリクエストの間引き方です。2つを重ねて使うことはありません。
type Strategy string

const (
	// StrategyRetry はレート制限時に指数バックオフで再試行し、バッチは固定間隔で逐次処理します。
	StrategyRetry Strategy = "retry"
	// StrategyQueue はすべてのリクエストを単一ワーカーのキューに通します。個別の再試行はしません。
	StrategyQueue Strategy = "queue"
)

// DefaultBatchDelay はバッチ処理で画像と画像の間に挟む待機時間です。
const DefaultBatchDelay = 3000 * time.Millisecond

// ParseStrategy は文字列から Strategy を返します。
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyRetry, StrategyQueue:
		return Strategy(s), nil
	case "":
		return StrategyRetry, nil
	default:
		return "", fmt.Errorf("unknown strategy: %q (retry or queue)", s)
	}
}

// Options は Service の構成です。
type Options struct {
	Strategy   Strategy
	Policy     retry.Policy
	QueueDelay time.Duration
	BatchDelay time.Duration
	Metrics    *retry.Metrics
	// Sleeper はバックオフとバッチ間隔の待機に使われます。nil なら retry.Sleep です。
	Sleeper retry.Sleeper
}

// Service は画像編集の受付口です。
type Service struct {
	executor   adapters.EditExecutor
	controller *retry.Controller
	queue      *queue.Queue
	strategy   Strategy
	batchDelay time.Duration
	sleep      retry.Sleeper

	// flight はリモート呼び出しを同時に1件に制限します。
	flight sync.Mutex
}

// NewService は依存関係を注入して Service を生成します。
// ctx はキューのワーカーの寿命になります。
func NewService(ctx context.Context, executor adapters.EditExecutor, opts Options) (*Service, error) {
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	strategy, err := ParseStrategy(string(opts.Strategy))
	if err != nil {
		return nil, err
	}
	if opts.BatchDelay < 0 {
		return nil, fmt.Errorf("batch delay must not be negative: %s", opts.BatchDelay)
	}
	if opts.Policy == (retry.Policy{}) {
		opts.Policy = retry.DefaultPolicy()
	}
	sleep := opts.Sleeper
	if sleep == nil {
		sleep = retry.Sleep
	}

	s := &Service{
		executor:   executor,
		strategy:   strategy,
		batchDelay: opts.BatchDelay,
		sleep:      sleep,
	}

	controller, err := retry.NewController(executorFunc(s.execute), opts.Policy,
		retry.WithSleeper(sleep), retry.WithMetrics(opts.Metrics))
	if err != nil {
		return nil, fmt.Errorf("再試行コントローラーの初期化に失敗しました: %w", err)
	}
	s.controller = controller

	q, err := queue.New(ctx, opts.QueueDelay)
	if err != nil {
		return nil, fmt.Errorf("キューの初期化に失敗しました: %w", err)
	}
	s.queue = q

	return s, nil
}

// Strategy は構成された戦略を返します。
func (s *Service) Strategy() Strategy { return s.strategy }

// Queue は内部のキューを返します。
func (s *Service) Queue() *queue.Queue { return s.queue }

// EditOne は1枚の画像を編集します。
// retry 戦略では observer に再試行イベントが届きます。queue 戦略ではキューの順番を待ってから1回だけ送信します。
// キャンセルされた場合は ctx.Err() を返し、結果は捨てられます。
func (s *Service) EditOne(ctx context.Context, req domain.EditRequest, observer retry.ProgressObserver) (*domain.EditResult, error) {
	if s.strategy == StrategyQueue {
		return s.editQueued(ctx, req)
	}
	return s.controller.ExecuteWithRetry(ctx, req, observer)
}

// EnqueueEdit は任意のタスクをキューへ追加します。
// タスクの失敗はキュー側ではログに残すだけなので、タスク自身が呼び出し元へ伝える必要があります。
func (s *Service) EnqueueEdit(task queue.Task) {
	s.queue.Enqueue(task)
}

// EditTask は req を1回だけ送信して結果を done に渡すタスクを作ります。done は nil でもかまいません。
func (s *Service) EditTask(ctx context.Context, req domain.EditRequest, done func(*domain.EditResult, error)) queue.Task {
	return func(workerCtx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.execute(ctx, req)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if done != nil {
			done(res, err)
		}
		return err
	}
}

func (s *Service) editQueued(ctx context.Context, req domain.EditRequest) (*domain.EditResult, error) {
	type outcome struct {
		res *domain.EditResult
		err error
	}
	// 実行と破棄のどちらか一方だけが ch に送ります。
	ch := make(chan outcome, 1)
	group := uuid.NewString()
	s.queue.Push(queue.Item{
		Task: s.EditTask(ctx, req, func(res *domain.EditResult, err error) {
			ch <- outcome{res: res, err: err}
		}),
		Group: group,
		OnDiscard: func() {
			ch <- outcome{err: queue.ErrDiscarded}
		},
	})

	select {
	case o := <-ch:
		return o.res, o.err
	case <-ctx.Done():
		s.queue.ClearGroup(group)
		return nil, ctx.Err()
	}
}

// execute はリモート呼び出しを直列化します。
func (s *Service) execute(ctx context.Context, req domain.EditRequest) (*domain.EditResult, error) {
	s.flight.Lock()
	defer s.flight.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.executor.Execute(ctx, req)
}

// RunBatch はバッチ内の画像すべてに同じ指示を適用します。
// 個々の失敗は画像ごとに記録して処理を続けます。キャンセル時は未完了の画像を idle に戻して ctx.Err() を返します。
// API キーが無い場合は最初の1件で打ち切り、domain.ErrMissingCredential を含むエラーを返します。
func (s *Service) RunBatch(ctx context.Context, batch *domain.Batch, instruction string, observer retry.ProgressObserver) error {
	if batch == nil {
		return fmt.Errorf("batch is required")
	}
	ids := batch.IDs()
	for _, id := range ids {
		batch.MarkQueued(id)
	}

	slog.InfoContext(ctx, "バッチ処理を開始します", "images", len(ids), "strategy", string(s.strategy))

	var err error
	if s.strategy == StrategyQueue {
		err = s.runBatchQueued(ctx, batch, ids, instruction)
	} else {
		err = s.runBatchSequential(ctx, batch, ids, instruction, observer)
	}

	if err != nil {
		batch.ResetPending()
		slog.InfoContext(ctx, "バッチ処理を中断しました", "error", err)
		return err
	}

	counts := batch.Counts()
	slog.InfoContext(ctx, "バッチ処理が完了しました",
		"success", counts[domain.StatusSuccess], "error", counts[domain.StatusError])
	return nil
}

func (s *Service) runBatchSequential(ctx context.Context, batch *domain.Batch, ids []string, instruction string, observer retry.ProgressObserver) error {
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		req, err := batchRequest(batch, id, instruction)
		if err != nil {
			batch.MarkError(id, err)
			continue
		}

		batch.MarkProcessing(id)
		res, err := s.controller.ExecuteWithRetry(ctx, req, observer)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, domain.ErrMissingCredential) {
			return err
		}
		settle(ctx, batch, id, res, err)

		if i < len(ids)-1 && s.batchDelay > 0 {
			if err := s.sleep(ctx, s.batchDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) runBatchQueued(ctx context.Context, batch *domain.Batch, ids []string, instruction string) error {
	group := uuid.NewString()

	var (
		wg        sync.WaitGroup
		discarded atomic.Int32
		fatalMu   sync.Mutex
		fatal     error
		items     []queue.Item
	)

	for _, id := range ids {
		req, err := batchRequest(batch, id, instruction)
		if err != nil {
			batch.MarkError(id, err)
			continue
		}

		id := id
		wg.Add(1)
		task := s.EditTask(ctx, req, func(res *domain.EditResult, err error) {
			if errors.Is(err, domain.ErrMissingCredential) {
				fatalMu.Lock()
				if fatal == nil {
					fatal = err
				}
				fatalMu.Unlock()
				s.queue.ClearGroup(group)
				return
			}
			settle(ctx, batch, id, res, err)
		})
		items = append(items, queue.Item{
			Task: func(workerCtx context.Context) error {
				defer wg.Done()
				if ctx.Err() == nil {
					batch.MarkProcessing(id)
				}
				return task(workerCtx)
			},
			Group: group,
			OnDiscard: func() {
				defer wg.Done()
				discarded.Add(1)
				batch.MarkIdle(id)
			},
		})
	}

	s.queue.Push(items...)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// 残りを取り下げて後続のリクエストを待たせないようにします。
		s.queue.ClearGroup(group)
		return ctx.Err()
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	fatalMu.Lock()
	defer fatalMu.Unlock()
	if fatal != nil {
		return fatal
	}
	if n := discarded.Load(); n > 0 {
		return fmt.Errorf("%d 枚の画像が処理されずに取り下げられました: %w", n, queue.ErrDiscarded)
	}
	return nil
}

func batchRequest(batch *domain.Batch, id, instruction string) (domain.EditRequest, error) {
	img, err := batch.Get(id)
	if err != nil {
		return domain.EditRequest{}, err
	}
	return domain.NewEditRequest(img.Data, img.MimeType, instruction)
}

func settle(ctx context.Context, batch *domain.Batch, id string, res *domain.EditResult, err error) {
	if err != nil {
		slog.WarnContext(ctx, "画像の編集に失敗しました", "id", id, "kind", domain.KindOf(err).String(), "error", err)
		batch.MarkError(id, err)
		return
	}
	batch.MarkSuccess(id, res)
}

// executorFunc は関数を EditExecutor として扱うアダプターです。
type executorFunc func(ctx context.Context, req domain.EditRequest) (*domain.EditResult, error)

func (f executorFunc) Execute(ctx context.Context, req domain.EditRequest) (*domain.EditResult, error) {
	return f(ctx, req)
}
