package extract

import (
	"context"
)

// ----------------------------------------------------------------------
// 依存性の定義 (DIP)
// ----------------------------------------------------------------------

// Fetcher は、URLからデコード済みのHTML文字列を取得する機能のインターフェースを定義します。
// Extractor は、この抽象に依存します。*fetch.Client と *fetch.LoggingFetcher がこれを満たします。
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}
