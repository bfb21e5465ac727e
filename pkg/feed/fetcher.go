package feed

import (
	"context"
	"time"

	"github.com/shouni/go-http-kit/pkg/httpkit"
)

// DefaultMaxRetries はフィード取得のデフォルトのリトライ回数です。
const DefaultMaxRetries = 3

var _ Fetcher = (*RetryingFetcher)(nil)

// RetryingFetcher は httpkit.Client を Fetcher に適合させます。
// フィードは実行全体の入力であり、取得できなければ処理を続けられないため、一時的な失敗はリトライします。
// 個々のページの取得 (fetch.Client) はリトライしません。
type RetryingFetcher struct {
	client *httpkit.Client
}

// NewRetryingFetcher は timeout と最大リトライ回数を指定して RetryingFetcher を生成します。
func NewRetryingFetcher(timeout time.Duration, maxRetries uint64) *RetryingFetcher {
	return &RetryingFetcher{
		client: httpkit.New(timeout, httpkit.WithMaxRetries(maxRetries)),
	}
}

// FetchBytes はフィードのバイト列を取得します。4xx はリトライされません。
func (f *RetryingFetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	return f.client.FetchBytes(url, ctx)
}
