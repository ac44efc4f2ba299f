package editor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shouni/gemini-photo-editor/pkg/domain"
	"github.com/shouni/go-remote-io/pkg/remoteio"
)

// mockExecutor は EditExecutor のモックなのだ。
// 同時実行数の最大値を記録し、fn が nil なら入力の先頭に "edited:" を付けて返すのだ。
type mockExecutor struct {
	mu       sync.Mutex
	calls    []domain.EditRequest
	fn       func(call int, req domain.EditRequest) (*domain.EditResult, error)
	inFlight int32
	maxSeen  int32
	latency  time.Duration
}

func (m *mockExecutor) Execute(ctx context.Context, req domain.EditRequest) (*domain.EditResult, error) {
	n := atomic.AddInt32(&m.inFlight, 1)
	defer atomic.AddInt32(&m.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&m.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&m.maxSeen, seen, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	call := len(m.calls)
	fn := m.fn
	m.mu.Unlock()

	if m.latency > 0 {
		time.Sleep(m.latency)
	}
	if fn != nil {
		return fn(call, req)
	}
	return &domain.EditResult{Data: append([]byte("edited:"), req.Data()...), MimeType: "image/png"}, nil
}

func (m *mockExecutor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockExecutor) MaxConcurrent() int {
	return int(atomic.LoadInt32(&m.maxSeen))
}

// noSleep は待たずに ctx の状態だけを返す Sleeper なのだ。
func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

func rateLimited() error {
	return domain.NewRateLimitedError(errors.New("429 Too Many Requests"))
}

func batchImages(names ...string) []domain.BatchImage {
	images := make([]domain.BatchImage, 0, len(names))
	for _, name := range names {
		images = append(images, domain.BatchImage{Name: name, MimeType: "image/png", Data: []byte(name)})
	}
	return images
}

// mockHTTPClient は httpkit.ClientInterface を実装するのだ。
type mockHTTPClient struct {
	fetchFunc func(ctx context.Context, url string) ([]byte, error)
	fetched   []string
}

func (m *mockHTTPClient) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	m.fetched = append(m.fetched, url)
	return m.fetchFunc(ctx, url)
}

// インターフェースを満たすための空実装群なのだ
func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) { return nil, nil }

func (m *mockHTTPClient) DoRequest(req *http.Request) ([]byte, error) { return nil, nil }

func (m *mockHTTPClient) FetchAndDecodeJSON(ctx context.Context, url string, v any) error {
	return nil
}

func (m *mockHTTPClient) PostJSONAndFetchBytes(ctx context.Context, url string, data any) ([]byte, error) {
	return nil, nil
}

func (m *mockHTTPClient) PostRawBodyAndFetchBytes(ctx context.Context, url string, body []byte, contentType string) ([]byte, error) {
	return nil, nil
}

func (m *mockHTTPClient) IsSafeURL(urlStr string) (bool, error) { return true, nil }

func (m *mockHTTPClient) IsSecureServiceURL(serviceURL string) bool { return true }

// mockInputReader はパスごとの内容を返す remoteio.InputReader なのだ。
type mockInputReader struct {
	files  map[string][]byte
	opened []string
}

func (m *mockInputReader) Open(ctx context.Context, filePath string) (io.ReadCloser, error) {
	m.opened = append(m.opened, filePath)
	data, ok := m.files[filePath]
	if !ok {
		return nil, errors.New("not found: " + filePath)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockInputReader) List(ctx context.Context, path string, callback func(filePath string) error) error {
	for name := range m.files {
		if err := callback(name); err != nil {
			return err
		}
	}
	return nil
}

// mockIOFactory は InputReader だけを返す remoteio.IOFactory なのだ。
type mockIOFactory struct {
	reader remoteio.InputReader
	closed bool
}

func (m *mockIOFactory) Close() error {
	m.closed = true
	return nil
}

func (m *mockIOFactory) InputReader() (remoteio.InputReader, error) { return m.reader, nil }

func (m *mockIOFactory) OutputWriter() (remoteio.OutputWriter, error) {
	return nil, errors.New("not supported")
}

func (m *mockIOFactory) URLSigner() (remoteio.URLSigner, error) {
	return nil, errors.New("not supported")
}
