package editor

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/shouni/gemini-photo-editor/pkg/domain"
	"github.com/shouni/gemini-photo-editor/pkg/imgutil"
	"github.com/shouni/go-http-kit/pkg/httpkit"
	"github.com/shouni/go-remote-io/pkg/remoteio"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultLoadConcurrency は画像を同時に読み込む数の既定値です。
	DefaultLoadConcurrency = 4
	// MaxImageBytes は読み込める画像1枚あたりの上限サイズです。
	MaxImageBytes = 20 << 20
)

// Loader は入力画像を読み込みます。
// http(s) の URL は httpkit 経由で取得し（SSRF 対策は httpkit 側で行われます）、
// gs:// と s3:// とローカルパスは remoteio.InputReader で開きます。
type Loader struct {
	httpClient httpkit.ClientInterface
	reader     remoteio.InputReader
	maxBytes   int
}

// NewLoader は依存関係を注入して Loader を生成します。
func NewLoader(httpClient httpkit.ClientInterface, reader remoteio.InputReader) (*Loader, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("httpClient is required")
	}
	if reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	return &Loader{httpClient: httpClient, reader: reader, maxBytes: MaxImageBytes}, nil
}

// LoadImage は画像を1枚読み込み、MIME タイプを判定します。
func (l *Loader) LoadImage(ctx context.Context, source string) (domain.BatchImage, error) {
	data, err := l.read(ctx, source)
	if err != nil {
		return domain.BatchImage{}, fmt.Errorf("画像の読み込みに失敗しました (%s): %w", source, err)
	}
	if len(data) > l.maxBytes {
		return domain.BatchImage{}, fmt.Errorf("%s: 画像が大きすぎます (上限 %d MB)", source, l.maxBytes>>20)
	}

	mimeType, err := imgutil.DetectImageMIME(data)
	if err != nil {
		return domain.BatchImage{}, fmt.Errorf("%s: %w", source, err)
	}
	return domain.BatchImage{
		Name:     sourceName(source),
		MimeType: mimeType,
		Data:     data,
	}, nil
}

// LoadBatch は複数の画像を並行して読み込み、指定順のまま Batch を作ります。
// 編集サービスへの送信は行わないため、ここでの並行処理は送信数の制約に影響しません。
func (l *Loader) LoadBatch(ctx context.Context, sources []string, limit int, onUpdate func(domain.BatchImage)) (*domain.Batch, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("no image paths given")
	}
	if limit <= 0 {
		limit = DefaultLoadConcurrency
	}

	images := make([]domain.BatchImage, len(sources))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(limit)

	for i, source := range sources {
		i, source := i, source
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			img, err := l.LoadImage(ctx, source)
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return domain.NewBatch(images, onUpdate), nil
}

func (l *Loader) read(ctx context.Context, source string) ([]byte, error) {
	if isHTTP(source) {
		return l.httpClient.FetchBytes(ctx, source)
	}

	rc, err := l.reader.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, int64(l.maxBytes)+1))
}

func isHTTP(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// sourceName は保存や表示に使うファイル名を返します。
func sourceName(source string) string {
	switch {
	case isHTTP(source):
		if u, err := url.Parse(source); err == nil {
			return path.Base(u.Path)
		}
		return path.Base(source)
	case remoteio.IsRemoteURI(source):
		return path.Base(source)
	default:
		return filepath.Base(source)
	}
}
