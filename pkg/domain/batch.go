package domain

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// BatchStatus はバッチ内の1枚の処理状態です。
type BatchStatus string

const (
	StatusIdle       BatchStatus = "idle"
	StatusQueued     BatchStatus = "queued"
	StatusProcessing BatchStatus = "processing"
	StatusSuccess    BatchStatus = "success"
	StatusError      BatchStatus = "error"
)

// BatchImage はバッチ処理対象の画像1枚分の状態です。
type BatchImage struct {
	ID       string
	Name     string
	MimeType string
	Data     []byte
	Edited   *EditResult
	Status   BatchStatus
	Error    string
}

// Batch は複数画像の状態をまとめて保持します。
// キューのワーカーと呼び出し元の両方から更新されるため、操作はすべてロック下で行います。
type Batch struct {
	mu       sync.Mutex
	images   []*BatchImage
	onUpdate func(BatchImage)
}

// NewBatch は画像ごとに ID を振って Batch を生成します。
// onUpdate は状態が変わるたびにスナップショットを受け取ります（nil 可）。
func NewBatch(images []BatchImage, onUpdate func(BatchImage)) *Batch {
	b := &Batch{onUpdate: onUpdate}
	for _, img := range images {
		img := img
		if img.ID == "" {
			img.ID = uuid.NewString()
		}
		img.Status = StatusIdle
		b.images = append(b.images, &img)
	}
	return b
}

// Len はバッチ内の画像枚数を返します。
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.images)
}

// Snapshot は現在の状態のコピーを返します。
func (b *Batch) Snapshot() []BatchImage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return lo.Map(b.images, func(img *BatchImage, _ int) BatchImage {
		return *img
	})
}

// IDs は処理順の ID 一覧を返します。
func (b *Batch) IDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return lo.Map(b.images, func(img *BatchImage, _ int) string {
		return img.ID
	})
}

// Get は ID に対応する画像のコピーを返します。
func (b *Batch) Get(id string) (BatchImage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	img, ok := lo.Find(b.images, func(img *BatchImage) bool { return img.ID == id })
	if !ok {
		return BatchImage{}, fmt.Errorf("batch image not found: %s", id)
	}
	return *img, nil
}

// MarkQueued はキュー投入済みにします。
func (b *Batch) MarkQueued(id string) {
	b.update(id, func(img *BatchImage) {
		img.Status = StatusQueued
		img.Error = ""
	})
}

// MarkProcessing は処理中にします。
func (b *Batch) MarkProcessing(id string) {
	b.update(id, func(img *BatchImage) {
		img.Status = StatusProcessing
		img.Error = ""
	})
}

// MarkSuccess は編集結果を保存して成功にします。
func (b *Batch) MarkSuccess(id string, result *EditResult) {
	b.update(id, func(img *BatchImage) {
		img.Status = StatusSuccess
		img.Edited = result
		img.Error = ""
	})
}

// MarkError はエラー内容を保存して失敗にします。
func (b *Batch) MarkError(id string, err error) {
	b.update(id, func(img *BatchImage) {
		img.Status = StatusError
		img.Error = err.Error()
	})
}

// MarkIdle は実行されずに取り下げられた画像を idle に戻します。
func (b *Batch) MarkIdle(id string) {
	b.update(id, func(img *BatchImage) {
		img.Status = StatusIdle
		img.Error = ""
	})
}

// ResetPending はキャンセル時に未完了の画像を idle に戻します。
func (b *Batch) ResetPending() {
	b.mu.Lock()
	var changed []BatchImage
	for _, img := range b.images {
		if img.Status == StatusQueued || img.Status == StatusProcessing {
			img.Status = StatusIdle
			changed = append(changed, *img)
		}
	}
	b.mu.Unlock()

	for _, img := range changed {
		b.notify(img)
	}
}

// Counts はステータスごとの件数を返します。
func (b *Batch) Counts() map[BatchStatus]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	counts := make(map[BatchStatus]int)
	for _, img := range b.images {
		counts[img.Status]++
	}
	return counts
}

func (b *Batch) update(id string, fn func(*BatchImage)) {
	b.mu.Lock()
	img, ok := lo.Find(b.images, func(img *BatchImage) bool { return img.ID == id })
	if !ok {
		b.mu.Unlock()
		return
	}
	fn(img)
	snapshot := *img
	b.mu.Unlock()

	b.notify(snapshot)
}

func (b *Batch) notify(img BatchImage) {
	if b.onUpdate != nil {
		b.onUpdate(img)
	}
}
