package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shouni/gemini-photo-editor/pkg/domain"
	"github.com/shouni/gemini-photo-editor/pkg/imgutil"
	"github.com/shouni/gemini-photo-editor/pkg/retry"
)

// ThumbnailFunc は履歴用のサムネイルを生成します。
type ThumbnailFunc func(data []byte) ([]byte, error)

// Session は1枚の画像に対する編集セッションです。編集結果は undo/redo 可能な履歴として残ります。
type Session struct {
	service   *Service
	thumbnail ThumbnailFunc

	mu      sync.Mutex
	history *domain.History
}

// NewSession は元画像から編集セッションを開始します。
func NewSession(service *Service, original domain.EditResult) (*Session, error) {
	return newSession(service, original, imgutil.Thumbnail)
}

func newSession(service *Service, original domain.EditResult, thumbnail ThumbnailFunc) (*Session, error) {
	if service == nil {
		return nil, fmt.Errorf("service is required")
	}
	if len(original.Data) == 0 {
		return nil, fmt.Errorf("original image is empty")
	}

	s := &Session{service: service, thumbnail: thumbnail}
	s.history = domain.NewHistory(domain.HistoryState{
		Image:     original,
		Thumbnail: s.makeThumbnail(context.Background(), original.Data),
		Label:     "Original",
	})
	return s, nil
}

// Apply は現在表示中の画像に指示を適用し、成功したら履歴に追加します。
// 失敗やキャンセルの場合、履歴は変更されません。
func (s *Session) Apply(ctx context.Context, instruction, label string, observer retry.ProgressObserver) (domain.HistoryState, error) {
	s.mu.Lock()
	current := s.history.Current()
	base := s.history.Index()
	s.mu.Unlock()

	req, err := domain.NewEditRequest(current.Image.Data, current.Image.MimeType, instruction)
	if err != nil {
		return domain.HistoryState{}, err
	}

	res, err := s.service.EditOne(ctx, req, observer)
	if err != nil {
		return domain.HistoryState{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.HistoryState{}, err
	}

	state := domain.HistoryState{
		Image:     *res,
		Thumbnail: s.makeThumbnail(ctx, res.Data),
		Label:     label,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history.Index() != base {
		// 編集中に履歴位置が動いた場合は、編集元の位置から分岐させる
		if err := s.history.Select(base); err != nil {
			return domain.HistoryState{}, err
		}
	}
	s.history.Push(state)
	slog.InfoContext(ctx, "編集結果を履歴に追加しました", "label", label, "index", s.history.Index())
	return state, nil
}

// ApplyEffects は選択したプリセットを1つの指示にまとめて適用します。
func (s *Session) ApplyEffects(ctx context.Context, effects []domain.EditEffect, observer retry.ProgressObserver) (domain.HistoryState, error) {
	if len(effects) == 0 {
		return domain.HistoryState{}, fmt.Errorf("no effect selected")
	}
	return s.Apply(ctx, domain.CombinePrompt(effects), domain.HistoryLabel(effects), observer)
}

func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Undo()
}

func (s *Session) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Redo()
}

// Select は任意の履歴位置へ移動します。
func (s *Session) Select(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Select(i)
}

// Current は現在表示中の状態を返します。
func (s *Session) Current() domain.HistoryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Current()
}

// Original は元画像の状態を返します。
func (s *Session) Original() domain.HistoryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Original()
}

// History は履歴一覧と現在位置を返します。
func (s *Session) History() ([]domain.HistoryState, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Entries(), s.history.Index()
}

func (s *Session) makeThumbnail(ctx context.Context, data []byte) []byte {
	if s.thumbnail == nil {
		return nil
	}
	thumb, err := s.thumbnail(data)
	if err != nil {
		slog.WarnContext(ctx, "サムネイルの生成に失敗しました", "error", err)
		return nil
	}
	return thumb
}
