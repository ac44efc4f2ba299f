package logging

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/shouni/gemini-photo-editor/pkg/domain"
	"github.com/shouni/gemini-photo-editor/pkg/retry"
)

var (
	infoPrefix    = color.New(color.FgBlue).SprintFunc()
	successPrefix = color.New(color.FgGreen).SprintFunc()
	warnPrefix    = color.New(color.FgYellow).SprintFunc()
	errorPrefix   = color.New(color.FgRed).SprintFunc()
	retryPrefix   = color.New(color.FgCyan).SprintFunc()
)

// Status はユーザー向けの進捗を1行ずつ色付きで出力します。
// 再試行イベントを受け取れるよう retry.ProgressObserver も満たします。
type Status struct {
	out io.Writer
	err io.Writer
}

// NewStatus は Status を生成します。
func NewStatus(out, errOut io.Writer) *Status {
	return &Status{out: out, err: errOut}
}

func (s *Status) Info(msg string) {
	fmt.Fprintln(s.out, infoPrefix("[INFO]")+" "+msg)
}

func (s *Status) Success(msg string) {
	fmt.Fprintln(s.out, successPrefix("[SUCCESS]")+" "+msg)
}

func (s *Status) Warn(msg string) {
	fmt.Fprintln(s.out, warnPrefix("[WARN]")+" "+msg)
}

func (s *Status) Error(msg string) {
	fmt.Fprintln(s.err, errorPrefix("[ERROR]")+" "+msg)
}

// OnRetry は再試行までの待機メッセージを表示します。
func (s *Status) OnRetry(_ context.Context, event retry.RetryEvent) {
	fmt.Fprintf(s.out, "%s %s (%d/%d)\n", retryPrefix("[RETRY]"), event.Message(), event.Attempt, event.MaxAttempts)
}

// BatchUpdate はバッチ内の画像の状態変化を表示します。
func (s *Status) BatchUpdate(img domain.BatchImage) {
	switch img.Status {
	case domain.StatusProcessing:
		s.Info(fmt.Sprintf("%s: processing", img.Name))
	case domain.StatusSuccess:
		s.Success(fmt.Sprintf("%s: done", img.Name))
	case domain.StatusError:
		s.Error(fmt.Sprintf("%s: %s", img.Name, img.Error))
	case domain.StatusIdle:
		s.Warn(fmt.Sprintf("%s: cancelled", img.Name))
	}
}
