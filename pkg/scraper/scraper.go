package scraper

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/shouni/go-link-titles/pkg/types"
)

const (
	// DefaultMaxConcurrency は、並列フェッチのデフォルトの最大同時実行数を定義します。
	DefaultMaxConcurrency = 10
)

// TitleExtractor は1件のURLからタイトルを取得する機能です。*extract.Extractor がこれを満たします。
type TitleExtractor interface {
	FetchAndExtractTitle(ctx context.Context, url string) (title string, found bool, err error)
}

// EmitFunc は結果を1件ずつ受け取るコールバックです。エラーを返すと処理全体が中断されます。
type EmitFunc func(types.URLResult) error

// Scraper は複数URLのタイトルを取得し、入力順に結果を渡すインターフェースです。
type Scraper interface {
	Scrape(ctx context.Context, urls []string, emit EmitFunc) error
}

// OrderedScraper は Scraper インターフェースを実装する並列処理構造体です。
// 取得は並列に行いますが、emit は必ず入力順に呼ばれます。
type OrderedScraper struct {
	extractor      TitleExtractor
	maxConcurrency int
	limiter        *HostLimiter // nil の場合はレート制限なし
}

// Option は OrderedScraper の設定を行うための関数型です。
type Option func(*OrderedScraper)

// WithRateLimit はホストごとのリクエスト数を rps 件/秒に制限します。0以下は制限なしです。
func WithRateLimit(rps float64) Option {
	return func(s *OrderedScraper) {
		if rps > 0 {
			s.limiter = NewHostLimiter(rps)
		} else {
			s.limiter = nil
		}
	}
}

// NewOrderedScraper は OrderedScraper を初期化します。
// maxConcurrency が1の場合は1件ずつ順番に処理します。0以下は DefaultMaxConcurrency です。
func NewOrderedScraper(extractor TitleExtractor, maxConcurrency int, opts ...Option) *OrderedScraper {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	s := &OrderedScraper{
		extractor:      extractor,
		maxConcurrency: maxConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape は urls を最大 maxConcurrency 件ずつ並列に処理し、結果を入力順に emit へ渡します。
// 先頭から連続して完了した分はすぐに渡されるため、全件の完了を待つ必要はありません。
// 1件の失敗は他のURLの処理を止めません。emit がエラーを返した場合のみ中断します。
func (s *OrderedScraper) Scrape(ctx context.Context, urls []string, emit EmitFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 入力位置をキーにした結果バッファ。ready[i] が閉じられた後に results[i] を読む
	results := make([]types.URLResult, len(urls))
	ready := make([]chan struct{}, len(urls))
	for i := range ready {
		ready[i] = make(chan struct{})
	}

	var g errgroup.Group
	g.SetLimit(s.maxConcurrency)

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		for i, u := range urls {
			g.Go(func() error {
				results[i] = s.scrapeOne(ctx, i, u)
				close(ready[i])
				return nil
			})
		}
	}()

	var emitErr error
	for i := range urls {
		<-ready[i]
		if err := emit(results[i]); err != nil {
			emitErr = eris.Wrapf(err, "結果の出力に失敗しました (URL: %s)", results[i].URL)
			cancel()
			break
		}
	}

	<-dispatched
	_ = g.Wait()
	return emitErr
}

// ScrapeAll は全件の結果を入力順のスライスで返します。
func (s *OrderedScraper) ScrapeAll(ctx context.Context, urls []string) []types.URLResult {
	finalResults := make([]types.URLResult, 0, len(urls))
	_ = s.Scrape(ctx, urls, func(res types.URLResult) error {
		finalResults = append(finalResults, res)
		return nil
	})
	return finalResults
}

// scrapeOne は1件のURLを処理します。
func (s *OrderedScraper) scrapeOne(ctx context.Context, index int, url string) types.URLResult {
	res := types.URLResult{Index: index, URL: url}

	if err := ctx.Err(); err != nil {
		res.Error = err
		return res
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, hostOf(url)); err != nil {
			res.Error = eris.Wrap(err, "レートリミッターの待機に失敗しました")
			return res
		}
	}

	res.Title, res.Found, res.Error = s.extractor.FetchAndExtractTitle(ctx, url)
	return res
}
