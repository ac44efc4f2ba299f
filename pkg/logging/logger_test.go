package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/shouni/gemini-photo-editor/pkg/domain"
	"github.com/shouni/gemini-photo-editor/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("JSON 出力では時刻を落とすのだ", func(t *testing.T) {
		buf := new(bytes.Buffer)
		logger, err := New(buf, "json", "info")
		require.NoError(t, err)

		logger.Info("hello", "key", "value")

		var m map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
		assert.NotContains(t, m, slog.TimeKey)
		assert.Equal(t, "hello", m["msg"])
		assert.Equal(t, "value", m["key"])
	})

	t.Run("レベル未満は出力しないのだ", func(t *testing.T) {
		buf := new(bytes.Buffer)
		logger, err := New(buf, "text", "warn")
		require.NoError(t, err)

		logger.Info("hidden")
		assert.Empty(t, buf.String())
	})

	t.Run("未知の形式とレベルはエラーなのだ", func(t *testing.T) {
		_, err := New(new(bytes.Buffer), "xml", "info")
		assert.Error(t, err)
		_, err = New(new(bytes.Buffer), "text", "loud")
		assert.Error(t, err)
	})
}

func TestFromContextOrDiscard(t *testing.T) {
	buf := new(bytes.Buffer)
	logger, err := New(buf, "text", "debug")
	require.NoError(t, err)

	ctx := NewContext(context.Background(), logger)
	assert.Same(t, logger, FromContextOrDiscard(ctx))
	assert.NotNil(t, FromContextOrDiscard(context.Background()))
}

func TestStatus(t *testing.T) {
	color.NoColor = true
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	s := NewStatus(out, errOut)

	s.OnRetry(context.Background(), retry.RetryEvent{Attempt: 2, MaxAttempts: 8, Delay: 15 * time.Second})
	s.BatchUpdate(domain.BatchImage{Name: "a.png", Status: domain.StatusSuccess})
	s.BatchUpdate(domain.BatchImage{Name: "b.png", Status: domain.StatusError, Error: "boom"})

	assert.Contains(t, out.String(), "[RETRY] Service is busy. Retrying in 15s... (2/8)")
	assert.Contains(t, out.String(), "[SUCCESS] a.png: done")
	assert.Contains(t, errOut.String(), "[ERROR] b.png: boom")
}
