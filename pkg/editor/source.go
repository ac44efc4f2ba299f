package editor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/shouni/go-remote-io/pkg/gcsfactory"
	"github.com/shouni/go-remote-io/pkg/remoteio"
	"github.com/shouni/go-remote-io/pkg/s3factory"
)

// FactoryFunc はクラウドストレージ用の IOFactory を生成します。
type FactoryFunc func(ctx context.Context) (remoteio.IOFactory, error)

// SourceReader は remoteio.InputReader の実装で、URI のスキームに応じて読み込み先を振り分けます。
// GCS と S3 のクライアントは最初に使われたときに生成します。
type SourceReader struct {
	local remoteio.InputReader

	mu        sync.Mutex
	factories map[string]FactoryFunc
	opened    map[string]remoteio.IOFactory
	readers   map[string]remoteio.InputReader
}

// NewSourceReader は gcsfactory と s3factory を使う SourceReader を生成します。
func NewSourceReader() *SourceReader {
	return newSourceReader(gcsfactory.New, s3factory.New)
}

func newSourceReader(gcs, s3 FactoryFunc) *SourceReader {
	return &SourceReader{
		local:     remoteio.NewUniversalInputReader(nil, nil),
		factories: map[string]FactoryFunc{"gs": gcs, "s3": s3},
		opened:    make(map[string]remoteio.IOFactory),
		readers:   make(map[string]remoteio.InputReader),
	}
}

// Open は filePath を開きます。
func (r *SourceReader) Open(ctx context.Context, filePath string) (io.ReadCloser, error) {
	reader, err := r.readerFor(ctx, filePath)
	if err != nil {
		return nil, err
	}
	return reader.Open(ctx, filePath)
}

// List は path 直下のファイルごとに callback を呼びます。
func (r *SourceReader) List(ctx context.Context, path string, callback func(filePath string) error) error {
	reader, err := r.readerFor(ctx, path)
	if err != nil {
		return err
	}
	return reader.List(ctx, path, callback)
}

// Close は生成済みのクライアントをすべて閉じます。
func (r *SourceReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for scheme, f := range r.opened {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", scheme, err))
		}
	}
	r.opened = make(map[string]remoteio.IOFactory)
	r.readers = make(map[string]remoteio.InputReader)
	return errors.Join(errs...)
}

// Shutdown は Close を呼びます。インジェクターの終了処理から使われます。
func (r *SourceReader) Shutdown() error {
	return r.Close()
}

func (r *SourceReader) readerFor(ctx context.Context, uri string) (remoteio.InputReader, error) {
	var scheme string
	switch {
	case remoteio.IsGCSURI(uri):
		scheme = "gs"
	case remoteio.IsS3URI(uri):
		scheme = "s3"
	default:
		return r.local, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if reader, ok := r.readers[scheme]; ok {
		return reader, nil
	}
	factory, err := r.factories[scheme](ctx)
	if err != nil {
		return nil, fmt.Errorf("%s:// のクライアント初期化に失敗しました: %w", scheme, err)
	}
	reader, err := factory.InputReader()
	if err != nil {
		_ = factory.Close()
		return nil, err
	}
	slog.DebugContext(ctx, "ストレージクライアントを初期化しました", "scheme", scheme)
	r.opened[scheme] = factory
	r.readers[scheme] = reader
	return reader, nil
}
