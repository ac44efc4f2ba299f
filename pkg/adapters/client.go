package adapters

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/shouni/gemini-photo-editor/pkg/domain"
	"google.golang.org/genai"
)

// ModelClient は Gemini のコンテンツ生成 API を抽象化するインターフェースです。
// *genai.Models がそのまま満たします。
type ModelClient interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ClientFactory は API キーから ModelClient を生成します。
type ClientFactory func(ctx context.Context, apiKey string) (ModelClient, error)

// NewGenAIClient は Gemini API バックエンドの genai クライアントを生成します。
func NewGenAIClient(ctx context.Context, apiKey string) (ModelClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("genaiクライアントの初期化に失敗しました: %w", err)
	}
	return client.Models, nil
}

// LazyModelClient は初回の呼び出し時に一度だけクライアントを生成する ModelClient です。
// API キーが無い場合は MissingCredential エラーを保持し、以後の呼び出しでも同じエラーを返します。
type LazyModelClient struct {
	apiKey  string
	factory ClientFactory

	once   sync.Once
	client ModelClient
	err    error
}

// NewLazyModelClient は LazyModelClient を生成します。factory が nil の場合は NewGenAIClient を使います。
func NewLazyModelClient(apiKey string, factory ClientFactory) *LazyModelClient {
	if factory == nil {
		factory = NewGenAIClient
	}
	return &LazyModelClient{apiKey: apiKey, factory: factory}
}

// GenerateContent はクライアントを必要に応じて初期化してから処理を委譲します。
func (l *LazyModelClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	client, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	return client.GenerateContent(ctx, model, contents, config)
}

func (l *LazyModelClient) get(ctx context.Context) (ModelClient, error) {
	l.once.Do(func() {
		key := strings.TrimSpace(l.apiKey)
		if key == "" || key == "undefined" {
			slog.ErrorContext(ctx, "APIキーが設定されていません")
			l.err = domain.NewMissingCredentialError()
			return
		}
		l.client, l.err = l.factory(ctx, key)
		if l.err == nil {
			slog.InfoContext(ctx, "Geminiクライアントを初期化しました")
		}
	})
	return l.client, l.err
}
