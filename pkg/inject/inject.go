// Package inject はアプリケーションの依存関係を組み立てます。
package inject

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/do"
	"github.com/shouni/gemini-photo-editor/pkg/adapters"
	"github.com/shouni/gemini-photo-editor/pkg/config"
	"github.com/shouni/gemini-photo-editor/pkg/editor"
	"github.com/shouni/gemini-photo-editor/pkg/logging"
	"github.com/shouni/gemini-photo-editor/pkg/retry"
	"github.com/shouni/gemini-photo-editor/pkg/storage"
	"github.com/shouni/go-http-kit/pkg/httpkit"
)

// fetchTimeout は URL 指定の入力画像を取得するときのタイムアウトです。
const fetchTimeout = 30 * time.Second

// Setup は cfg をもとにインジェクターを構築します。各サービスは初回の Invoke で生成されます。
// ctx はキューのワーカーとクライアント生成に使われます。
func Setup(ctx context.Context, cfg *config.Config) *do.Injector {
	log := logging.FromContextOrDiscard(ctx)

	injector := do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...))
		},
	})

	do.ProvideValue[*config.Config](injector, cfg)

	do.Provide[adapters.ModelClient](injector, func(i *do.Injector) (adapters.ModelClient, error) {
		c := do.MustInvoke[*config.Config](i)
		return adapters.NewLazyModelClient(c.APIKey, nil), nil
	})

	do.Provide[adapters.EditExecutor](injector, func(i *do.Injector) (adapters.EditExecutor, error) {
		c := do.MustInvoke[*config.Config](i)
		var opts []adapters.ExecutorOption
		if c.CompressInput {
			opts = append(opts, adapters.WithInputCompression(c.Quality))
		}
		return adapters.NewGeminiEditExecutor(do.MustInvoke[adapters.ModelClient](i), c.Model, opts...)
	})

	do.Provide[*retry.Metrics](injector, func(i *do.Injector) (*retry.Metrics, error) {
		return retry.NewMetrics(), nil
	})

	do.Provide[*editor.Service](injector, func(i *do.Injector) (*editor.Service, error) {
		c := do.MustInvoke[*config.Config](i)
		executor, err := do.Invoke[adapters.EditExecutor](i)
		if err != nil {
			return nil, err
		}
		return editor.NewService(ctx, executor, editor.Options{
			Strategy:   editor.Strategy(c.Strategy),
			Policy:     retry.Policy{MaxAttempts: c.MaxAttempts, BaseDelay: c.BaseDelay},
			QueueDelay: c.QueueDelay,
			BatchDelay: c.BatchDelay,
			Metrics:    do.MustInvoke[*retry.Metrics](i),
		})
	})

	do.Provide[httpkit.ClientInterface](injector, func(i *do.Injector) (httpkit.ClientInterface, error) {
		return httpkit.New(fetchTimeout), nil
	})

	do.Provide[*editor.SourceReader](injector, func(i *do.Injector) (*editor.SourceReader, error) {
		return editor.NewSourceReader(), nil
	})

	do.Provide[*editor.Loader](injector, func(i *do.Injector) (*editor.Loader, error) {
		return editor.NewLoader(
			do.MustInvoke[httpkit.ClientInterface](i),
			do.MustInvoke[*editor.SourceReader](i),
		)
	})

	do.Provide[*storage.Storage](injector, func(i *do.Injector) (*storage.Storage, error) {
		return storage.NewStorage(do.MustInvoke[*config.Config](i).OutputDir)
	})

	return injector
}
