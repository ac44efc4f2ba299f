package adapters

import (
	"context"
	"errors"
	"testing"

	"github.com/shouni/gemini-photo-editor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLazyModelClient(t *testing.T) {
	ctx := context.Background()

	t.Run("クライアントは初回呼び出し時に一度だけ生成されるのだ", func(t *testing.T) {
		built := 0
		inner := &mockAIClient{}
		lazy := NewLazyModelClient("test-key", func(ctx context.Context, apiKey string) (ModelClient, error) {
			built++
			assert.Equal(t, "test-key", apiKey)
			return inner, nil
		})
		assert.Equal(t, 0, built, "生成は遅延されるのだ")

		for i := 0; i < 3; i++ {
			_, err := lazy.GenerateContent(ctx, "model", nil, nil)
			require.NoError(t, err)
		}
		assert.Equal(t, 1, built)
		assert.Equal(t, 3, inner.calls)
	})

	t.Run("APIキーが無い場合は MissingCredential を毎回返すのだ", func(t *testing.T) {
		built := 0
		lazy := NewLazyModelClient("  ", func(ctx context.Context, apiKey string) (ModelClient, error) {
			built++
			return &mockAIClient{}, nil
		})

		_, err1 := lazy.GenerateContent(ctx, "model", nil, nil)
		_, err2 := lazy.GenerateContent(ctx, "model", nil, nil)

		assert.True(t, errors.Is(err1, domain.ErrMissingCredential))
		assert.Same(t, err1, err2)
		assert.Equal(t, domain.KindMissingCredential, domain.KindOf(err1))
		assert.Equal(t, 0, built)
	})

	t.Run("ClassifyError を通しても MissingCredential のままなのだ", func(t *testing.T) {
		executor, err := NewGeminiEditExecutor(NewLazyModelClient("", nil), "")
		require.NoError(t, err)

		_, err = executor.Execute(ctx, mustRequest(t, []byte("x"), "image/png", "edit"))
		assert.True(t, errors.Is(err, domain.ErrMissingCredential))
	})
}
