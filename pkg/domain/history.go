package domain

import "fmt"

// HistoryState は編集履歴の1エントリです。
type HistoryState struct {
	Image     EditResult
	Thumbnail []byte
	Label     string
}

// History は undo/redo 可能な編集履歴です。先頭は常に元画像です。
type History struct {
	entries []HistoryState
	index   int
}

// NewHistory は元画像を起点に履歴を作ります。
func NewHistory(original HistoryState) *History {
	return &History{entries: []HistoryState{original}}
}

// Push は現在位置の後ろに新しい状態を追加します。
// undo 後に Push した場合、redo 側の履歴は破棄されます。
func (h *History) Push(state HistoryState) {
	h.entries = append(h.entries[:h.index+1], state)
	h.index = len(h.entries) - 1
}

func (h *History) Undo() bool {
	if !h.CanUndo() {
		return false
	}
	h.index--
	return true
}

func (h *History) Redo() bool {
	if !h.CanRedo() {
		return false
	}
	h.index++
	return true
}

// Select は任意の履歴位置へ移動します。
func (h *History) Select(i int) error {
	if i < 0 || i >= len(h.entries) {
		return fmt.Errorf("history index out of range: %d", i)
	}
	h.index = i
	return nil
}

func (h *History) CanUndo() bool { return h.index > 0 }
func (h *History) CanRedo() bool { return h.index < len(h.entries)-1 }
func (h *History) Index() int    { return h.index }
func (h *History) Len() int      { return len(h.entries) }

// Current は現在表示中の状態です。
func (h *History) Current() HistoryState { return h.entries[h.index] }

// Original は元画像です。
func (h *History) Original() HistoryState { return h.entries[0] }

// Edited は編集後画像を返します。元画像を表示中の場合は nil です。
func (h *History) Edited() *HistoryState {
	if h.index == 0 {
		return nil
	}
	state := h.entries[h.index]
	return &state
}

// Entries は履歴一覧のコピーを返します。
func (h *History) Entries() []HistoryState {
	return append([]HistoryState(nil), h.entries...)
}
