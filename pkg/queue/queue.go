// Package queue は一度に1件だけを実行する FIFO のタスクキューを提供します。
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultDelay はタスク終了から次のタスク開始までの既定の待機時間です。
const DefaultDelay = 3500 * time.Millisecond

// ErrDiscarded は実行前にキューから取り除かれたタスクを表します。
var ErrDiscarded = errors.New("タスクは実行前にキューから破棄されました")

// Task はキューで実行される処理です。失敗は呼び出し元へ自分で伝える必要があります。
type Task func(ctx context.Context) error

// Item はキューに積む1件です。
type Item struct {
	Task Task
	// Group は ClearGroup でまとめて取り除くための識別子です。空でもかまいません。
	Group string
	// OnDiscard は Task が実行されずに破棄されたときに1度だけ呼ばれます。
	OnDiscard func()
}

// Queue は単一ワーカーの逐次キューです。
// 各タスクの後（最後のタスクも含む）に固定の待機を挟み、待機中も処理中として扱います。
type Queue struct {
	ctx   context.Context
	delay time.Duration

	mu      sync.Mutex
	pending []Item
	running bool
	idle    chan struct{}
	seq     uint64
}

// New は Queue を生成します。ctx はワーカーに渡され、キャンセルされるとワーカーは停止します。
func New(ctx context.Context, delay time.Duration) (*Queue, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if delay < 0 {
		return nil, fmt.Errorf("delay must not be negative: %s", delay)
	}
	idle := make(chan struct{})
	close(idle)
	return &Queue{ctx: ctx, delay: delay, idle: idle}, nil
}

// Enqueue はタスクを末尾に追加します。
func (q *Queue) Enqueue(task Task) {
	q.Push(Item{Task: task})
}

// Push は items をまとめて末尾に追加し、ワーカーが停止していれば起動します。
// 1回の Push で追加したものの間に他のタスクが割り込むことはありません。
func (q *Queue) Push(items ...Item) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, item := range items {
		if item.Task != nil {
			q.pending = append(q.pending, item)
		}
	}
	if len(q.pending) > 0 && !q.running {
		q.running = true
		q.idle = make(chan struct{})
		go q.work(q.idle)
	}
}

// Clear は未実行のタスクをすべて破棄し、破棄した件数を返します。実行中のタスクはそのままです。
func (q *Queue) Clear() int {
	return q.remove(func(Item) bool { return true })
}

// ClearGroup は group に属する未実行のタスクだけを破棄し、破棄した件数を返します。
func (q *Queue) ClearGroup(group string) int {
	return q.remove(func(item Item) bool { return item.Group == group })
}

// Len は未実行のタスク数を返します。
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Busy はワーカーが動作中（タスク実行中または待機中）かどうかを返します。
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Wait はキューが空になりワーカーが停止するまで待ちます。
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) remove(match func(Item) bool) int {
	q.mu.Lock()
	var dropped, kept []Item
	for _, item := range q.pending {
		if match(item) {
			dropped = append(dropped, item)
		} else {
			kept = append(kept, item)
		}
	}
	q.pending = kept
	q.mu.Unlock()

	if len(dropped) > 0 {
		slog.Info("キューを破棄しました", "discarded", len(dropped), "remaining", len(kept))
	}
	discard(dropped)
	return len(dropped)
}

func (q *Queue) work(idle chan struct{}) {
	defer close(idle)

	for {
		item, ok := q.next()
		if !ok {
			return
		}

		q.run(item.Task)

		if err := q.pause(); err != nil {
			q.stop()
			return
		}
	}
}

// next は先頭のタスクを取り出します。空ならワーカーを停止状態にします。
// ワーカーの ctx が終わっていれば残りをすべて破棄します。
func (q *Queue) next() (Item, bool) {
	q.mu.Lock()
	if q.ctx.Err() != nil {
		dropped := q.pending
		q.pending = nil
		q.running = false
		q.mu.Unlock()
		discard(dropped)
		return Item{}, false
	}
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		q.running = false
		return Item{}, false
	}
	item := q.pending[0]
	q.pending[0] = Item{}
	q.pending = q.pending[1:]
	q.seq++
	return item, true
}

func (q *Queue) stop() {
	q.mu.Lock()
	dropped := q.pending
	q.pending = nil
	q.running = false
	q.mu.Unlock()
	discard(dropped)
}

func (q *Queue) run(task Task) {
	q.mu.Lock()
	seq := q.seq
	q.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("キューのタスクがパニックしました", "task", seq, "panic", r)
		}
	}()

	if err := task(q.ctx); err != nil {
		slog.Warn("キューのタスクが失敗しました", "task", seq, "error", err)
	}
}

func (q *Queue) pause() error {
	if q.delay <= 0 {
		return q.ctx.Err()
	}
	timer := time.NewTimer(q.delay)
	defer timer.Stop()
	select {
	case <-q.ctx.Done():
		return q.ctx.Err()
	case <-timer.C:
		return nil
	}
}

func discard(items []Item) {
	for _, item := range items {
		if item.OnDiscard != nil {
			item.OnDiscard()
		}
	}
}
