package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder はタスクの開始・終了時刻と同時実行数を記録するのだ。
type recorder struct {
	mu       sync.Mutex
	order    []int
	starts   []time.Time
	ends     []time.Time
	inFlight int32
	overlap  bool
}

func (r *recorder) task(id int, err error) Task {
	return func(ctx context.Context) error {
		if atomic.AddInt32(&r.inFlight, 1) > 1 {
			r.mu.Lock()
			r.overlap = true
			r.mu.Unlock()
		}
		r.mu.Lock()
		r.order = append(r.order, id)
		r.starts = append(r.starts, time.Now())
		r.mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		r.mu.Lock()
		r.ends = append(r.ends, time.Now())
		r.mu.Unlock()
		atomic.AddInt32(&r.inFlight, -1)
		return err
	}
}

func waitIdle(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))
}

func TestNew(t *testing.T) {
	t.Run("nilチェック", func(t *testing.T) {
		_, err := New(nil, time.Millisecond)
		assert.Error(t, err)
	})

	t.Run("負の待機時間はエラーなのだ", func(t *testing.T) {
		_, err := New(context.Background(), -time.Second)
		assert.Error(t, err)
	})
}

func TestQueue_Order(t *testing.T) {
	const delay = 30 * time.Millisecond
	q, err := New(context.Background(), delay)
	require.NoError(t, err)

	rec := &recorder{}
	for i := 1; i <= 3; i++ {
		q.Enqueue(rec.task(i, nil))
	}
	waitIdle(t, q)

	t.Run("投入順に1件ずつ実行されるのだ", func(t *testing.T) {
		assert.Equal(t, []int{1, 2, 3}, rec.order)
		assert.False(t, rec.overlap)
	})

	t.Run("終了から次の開始までは少なくとも delay 空くのだ", func(t *testing.T) {
		require.Len(t, rec.starts, 3)
		for i := 1; i < 3; i++ {
			gap := rec.starts[i].Sub(rec.ends[i-1])
			assert.GreaterOrEqual(t, gap, delay, "task %d", i+1)
		}
	})

	t.Run("最後のタスクの後も待機してから停止するのだ", func(t *testing.T) {
		assert.False(t, q.Busy())
		assert.GreaterOrEqual(t, time.Since(rec.ends[2]), delay)
	})
}

func TestQueue_FailureDoesNotBlock(t *testing.T) {
	q, err := New(context.Background(), time.Millisecond)
	require.NoError(t, err)

	rec := &recorder{}
	q.Enqueue(rec.task(1, errors.New("boom")))
	q.Enqueue(func(ctx context.Context) error { panic("unexpected") })
	q.Enqueue(rec.task(3, nil))
	waitIdle(t, q)

	assert.Equal(t, []int{1, 3}, rec.order, "失敗やパニックの後も次のタスクが動くのだ")
}

func TestQueue_Clear(t *testing.T) {
	q, err := New(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	q.Enqueue(func(ctx context.Context) error {
		close(started)
		<-release
		finished.Store(true)
		return nil
	})

	var ran atomic.Int32
	for i := 0; i < 4; i++ {
		q.Enqueue(func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
	}

	<-started
	assert.Equal(t, 4, q.Len())
	assert.Equal(t, 4, q.Clear(), "未実行の件数を返すのだ")
	assert.Equal(t, 0, q.Len())
	close(release)
	waitIdle(t, q)

	assert.True(t, finished.Load(), "実行中のタスクは中断されないのだ")
	assert.Equal(t, int32(0), ran.Load())
}

func TestQueue_Discard(t *testing.T) {
	blocking := func(started, release chan struct{}) Task {
		return func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		}
	}

	t.Run("Clear は破棄したタスクの OnDiscard を呼ぶのだ", func(t *testing.T) {
		q, err := New(context.Background(), time.Millisecond)
		require.NoError(t, err)
		started, release := make(chan struct{}), make(chan struct{})
		q.Enqueue(blocking(started, release))

		var discarded atomic.Int32
		q.Push(
			Item{Task: func(ctx context.Context) error { return nil }, OnDiscard: func() { discarded.Add(1) }},
			Item{Task: func(ctx context.Context) error { return nil }, OnDiscard: func() { discarded.Add(1) }},
		)

		<-started
		assert.Equal(t, 2, q.Clear())
		assert.Equal(t, int32(2), discarded.Load())
		close(release)
		waitIdle(t, q)
	})

	t.Run("ClearGroup は同じグループのタスクだけを取り除くのだ", func(t *testing.T) {
		q, err := New(context.Background(), time.Millisecond)
		require.NoError(t, err)
		started, release := make(chan struct{}), make(chan struct{})
		q.Enqueue(blocking(started, release))

		var mu sync.Mutex
		var ran []string
		task := func(name string) Task {
			return func(ctx context.Context) error {
				mu.Lock()
				ran = append(ran, name)
				mu.Unlock()
				return nil
			}
		}
		var discarded atomic.Int32
		q.Push(
			Item{Task: task("a1"), Group: "a", OnDiscard: func() { discarded.Add(1) }},
			Item{Task: task("b1"), Group: "b"},
			Item{Task: task("a2"), Group: "a", OnDiscard: func() { discarded.Add(1) }},
		)

		<-started
		assert.Equal(t, 2, q.ClearGroup("a"))
		assert.Equal(t, 1, q.Len())
		close(release)
		waitIdle(t, q)

		assert.Equal(t, []string{"b1"}, ran)
		assert.Equal(t, int32(2), discarded.Load())
	})

	t.Run("ワーカーの ctx が終わると残りは破棄されるのだ", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		q, err := New(ctx, time.Hour)
		require.NoError(t, err)
		started, release := make(chan struct{}), make(chan struct{})
		q.Enqueue(blocking(started, release))

		discarded := make(chan struct{})
		q.Push(Item{
			Task:      func(ctx context.Context) error { return nil },
			OnDiscard: func() { close(discarded) },
		})

		<-started
		cancel()
		close(release)

		select {
		case <-discarded:
		case <-time.After(2 * time.Second):
			t.Fatal("OnDiscard が呼ばれないのだ")
		}
		waitIdle(t, q)
		assert.Equal(t, 0, q.Len())
	})
}

func TestQueue_RestartAfterIdle(t *testing.T) {
	q, err := New(context.Background(), time.Millisecond)
	require.NoError(t, err)

	rec := &recorder{}
	q.Enqueue(rec.task(1, nil))
	waitIdle(t, q)
	assert.False(t, q.Busy())

	q.Enqueue(rec.task(2, nil))
	waitIdle(t, q)

	assert.Equal(t, []int{1, 2}, rec.order, "停止後の投入でワーカーが再起動するのだ")
}

func TestQueue_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q, err := New(ctx, time.Hour)
	require.NoError(t, err)

	rec := &recorder{}
	q.Enqueue(rec.task(1, nil))
	q.Enqueue(rec.task(2, nil))

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.ends) == 1
	}, time.Second, time.Millisecond)
	cancel()
	waitIdle(t, q)

	assert.Equal(t, []int{1}, rec.order, "キャンセル後は次のタスクを取り出さないのだ")
}

func TestQueue_WaitContext(t *testing.T) {
	q, err := New(context.Background(), time.Hour)
	require.NoError(t, err)
	q.Enqueue(func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Wait(ctx), context.DeadlineExceeded)
}
