package adapters

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shouni/gemini-photo-editor/pkg/domain"
	"github.com/shouni/gemini-photo-editor/pkg/imgutil"
	"google.golang.org/genai"
)

const (
	// DefaultModel は画像編集に使うモデルです。
	DefaultModel = "gemini-2.5-flash-image-preview"

	compressedMimeType = "image/jpeg"
)

// EditExecutor は1回分の画像編集リクエストを実行するインターフェースです。
type EditExecutor interface {
	Execute(ctx context.Context, req domain.EditRequest) (*domain.EditResult, error)
}

// GeminiEditExecutor は Gemini に画像と指示文を送り、編集結果を受け取るアダプターです。
// 共有状態は持たず、ネットワーク呼び出し以外の副作用はありません。
type GeminiEditExecutor struct {
	aiClient        ModelClient // 通信クライアント
	model           string      // 使用するモデル名
	compressInput   bool        // 送信前に JPEG へ再圧縮するか
	compressQuality int
}

// ExecutorOption は GeminiEditExecutor の任意設定です。
type ExecutorOption func(*GeminiEditExecutor)

// WithInputCompression は送信前に入力画像を指定品質の JPEG に再圧縮します。
func WithInputCompression(quality int) ExecutorOption {
	return func(e *GeminiEditExecutor) {
		e.compressInput = true
		e.compressQuality = quality
	}
}

// NewGeminiEditExecutor は依存関係を注入して初期化します。
func NewGeminiEditExecutor(aiClient ModelClient, model string, opts ...ExecutorOption) (*GeminiEditExecutor, error) {
	if aiClient == nil {
		return nil, fmt.Errorf("aiClient is required")
	}
	if model == "" {
		model = DefaultModel
	}

	e := &GeminiEditExecutor{
		aiClient: aiClient,
		model:    model,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute は画像と指示文を1つのマルチモーダルリクエストとして送信し、結果を分類して返します。
func (e *GeminiEditExecutor) Execute(ctx context.Context, req domain.EditRequest) (*domain.EditResult, error) {
	data, mimeType := e.prepareInput(ctx, req)

	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
		{Text: req.Instruction()},
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}

	slog.DebugContext(ctx, "Geminiに画像編集をリクエストします", "model", e.model, "mime_type", mimeType, "bytes", len(data))

	resp, err := e.aiClient.GenerateContent(ctx, e.model, contents, config)
	if err != nil {
		classified := ClassifyError(err)
		slog.WarnContext(ctx, "Gemini API エラー", "kind", domain.KindOf(classified).String(), "error", err)
		return nil, classified
	}

	return ParseToResponse(resp)
}

func (e *GeminiEditExecutor) prepareInput(ctx context.Context, req domain.EditRequest) ([]byte, string) {
	data := req.Data()
	if !e.compressInput {
		return data, req.MimeType()
	}

	compressed, err := imgutil.CompressToJPEG(data, e.compressQuality)
	if err != nil {
		slog.WarnContext(ctx, "入力画像の圧縮に失敗しました。元データで続行します", "error", err)
		return data, req.MimeType()
	}
	return compressed, compressedMimeType
}
