package adapters

import (
	"context"
	"errors"
	"strings"

	"github.com/shouni/gemini-photo-editor/pkg/domain"
	"google.golang.org/genai"
)

// rateLimitMarkers はレート制限を示すエラーメッセージ中の語句です（小文字で比較）。
var rateLimitMarkers = []string{
	"429",
	"resource exhausted",
	"resource_exhausted",
	"rate limit exceeded",
}

// refusalMarkers はモデルが処理を断ったと判断する言い回しです（小文字で比較）。
var refusalMarkers = []string{
	"i can't",
	"i can’t",
	"i cannot",
	"i am unable",
	"i'm unable",
	"i am not able",
	"i'm not able",
}

// ParseToResponse は Gemini のレスポンスを解析して EditResult に変換します。
// 画像が含まれない場合は、テキスト内容に応じて ModelRefused か NoImageReturned を返します。
func ParseToResponse(resp *genai.GenerateContentResponse) (*domain.EditResult, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, domain.NewNoImageReturnedError("Geminiからの有効な応答がありませんでした")
	}

	// 現在の仕様では、Geminiからの最初の候補 (Candidate) のみを利用する。
	candidate := resp.Candidates[0]

	var texts []string
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return &domain.EditResult{
					Data:     part.InlineData.Data,
					MimeType: part.InlineData.MIMEType,
				}, nil
			}
			if part.Text != "" && !part.Thought {
				texts = append(texts, part.Text)
			}
		}
	}

	text := strings.TrimSpace(strings.Join(texts, ""))
	if isRefusal(text) {
		return nil, domain.NewModelRefusedError(text)
	}

	// 安全フィルター等によるブロックの確認
	switch candidate.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent:
		msg := text
		if msg == "" {
			msg = "The model was unable to process this request (FinishReason: " + string(candidate.FinishReason) + ")."
		}
		return nil, domain.NewModelRefusedError(msg)
	}

	if text == "" {
		text = "No text response found."
	}
	return nil, domain.NewNoImageReturnedError(text)
}

// ClassifyError は通信・サービスエラーを分類します。
// キャンセルと認証情報の欠落は分類せずにそのまま返します。
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var editErr *domain.EditError
	if errors.As(err, &editErr) {
		return err
	}
	if isRateLimit(err.Error()) {
		return domain.NewRateLimitedError(err)
	}
	return domain.NewUnknownError(err)
}

func isRateLimit(msg string) bool {
	return containsAny(strings.ToLower(msg), rateLimitMarkers)
}

func isRefusal(text string) bool {
	return containsAny(strings.ToLower(text), refusalMarkers)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
