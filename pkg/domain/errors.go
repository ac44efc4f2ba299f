package domain

import (
	"errors"
	"fmt"
)

// ErrorKind は編集失敗の分類です。
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindRateLimited
	KindModelRefused
	KindNoImageReturned
	KindMissingCredential
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindModelRefused:
		return "model_refused"
	case KindNoImageReturned:
		return "no_image_returned"
	case KindMissingCredential:
		return "missing_credential"
	default:
		return "unknown"
	}
}

var (
	// ErrMissingCredential は API キーが設定されていない場合の設定エラーです。
	// リクエスト単位の失敗とは区別して扱います。
	ErrMissingCredential = errors.New("APIキーが設定されていません。環境変数 GEMINI_API_KEY (または API_KEY) を設定してから再実行してください")

	// ErrServiceBusy はレート制限による再試行をすべて使い切ったことを示します。
	ErrServiceBusy = errors.New("service busy")
)

// EditError は分類付きの編集エラーです。
type EditError struct {
	Kind    ErrorKind
	Message string
	// Attempts は再試行を使い切った場合のみ試行回数が入ります。
	Attempts int
	Err      error
}

func (e *EditError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *EditError) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	switch {
	case e.Kind == KindMissingCredential:
		errs = append(errs, ErrMissingCredential)
	case e.Kind == KindRateLimited && e.Attempts > 0:
		errs = append(errs, ErrServiceBusy)
	}
	return errs
}

// Retryable は再試行の対象かどうかを返します。
// 再試行を使い切った RateLimited は終端扱いです。
func (e *EditError) Retryable() bool {
	return e.Kind == KindRateLimited && e.Attempts == 0
}

// NewRateLimitedError はレート制限エラーを生成します。
func NewRateLimitedError(cause error) *EditError {
	return &EditError{
		Kind:    KindRateLimited,
		Message: fmt.Sprintf("レート制限に達しました: %v", cause),
		Err:     cause,
	}
}

// NewServiceBusyError は再試行上限に達したときの終端エラーを生成します。
func NewServiceBusyError(attempts int, last error) *EditError {
	return &EditError{
		Kind:     KindRateLimited,
		Message:  fmt.Sprintf("The service is still busy after %d attempts. Please try again later.", attempts),
		Attempts: attempts,
		Err:      last,
	}
}

// NewModelRefusedError はモデルが処理を断った場合のエラーです。
// モデルの応答文はそのまま表示できるよう Message に格納します。
func NewModelRefusedError(text string) *EditError {
	return &EditError{Kind: KindModelRefused, Message: text}
}

// NewNoImageReturnedError は画像を含まない応答に対するエラーです。
func NewNoImageReturnedError(detail string) *EditError {
	return &EditError{
		Kind:    KindNoImageReturned,
		Message: "The API did not return an image. Please try a different image or effect.",
		Err:     errors.New(detail),
	}
}

// NewUnknownError は分類できない通信・サービスエラーです。
func NewUnknownError(cause error) *EditError {
	return &EditError{
		Kind:    KindUnknown,
		Message: fmt.Sprintf("Failed to edit image: %v", cause),
		Err:     cause,
	}
}

// NewMissingCredentialError は認証情報の欠落を表すエラーです。
func NewMissingCredentialError() *EditError {
	return &EditError{Kind: KindMissingCredential, Message: ErrMissingCredential.Error()}
}

// KindOf は err から ErrorKind を取り出します。EditError でない場合は KindUnknown です。
func KindOf(err error) ErrorKind {
	var editErr *EditError
	if errors.As(err, &editErr) {
		return editErr.Kind
	}
	if errors.Is(err, ErrMissingCredential) {
		return KindMissingCredential
	}
	return KindUnknown
}

// IsRetryable は err が再試行対象のレート制限エラーかどうかを返します。
func IsRetryable(err error) bool {
	var editErr *EditError
	return errors.As(err, &editErr) && editErr.Retryable()
}
