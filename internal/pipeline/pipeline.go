package pipeline

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/shouni/go-link-titles/pkg/fetch"
	"github.com/shouni/go-link-titles/pkg/format"
	"github.com/shouni/go-link-titles/pkg/scraper"
	"github.com/shouni/go-link-titles/pkg/types"
)

// ログメッセージ。ログを検査するテストからも参照します。
const (
	MsgFetchFailed = "取得に失敗したため出力から除外しました"
	MsgNoTitle     = "タイトルがありません"
)

// Stats は1回の実行の集計です。Total = Emitted + Skipped + Failed が成り立ちます。
type Stats struct {
	Total   int // 入力URL数
	Emitted int // 出力した行数
	Skipped int // タイトルが無く、ポリシーにより出力しなかった件数
	Failed  int // フェッチに失敗して出力から除外した件数
}

// Pipeline は URL一覧 → フェッチ → タイトル抽出 → 整形 → 書き込み を実行します。
type Pipeline struct {
	scraper  scraper.Scraper
	template format.Template
	policy   format.Policy
	logger   *zap.Logger
}

// Option は Pipeline の設定を行うための関数型です。
type Option func(*Pipeline)

// WithLogger はロガーを差し替えます。既定は zap.L() です。
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New は Pipeline を生成します。s が nil の場合はエラーです。
func New(s scraper.Scraper, tmpl format.Template, policy format.Policy, opts ...Option) (*Pipeline, error) {
	if s == nil {
		return nil, eris.New("pipeline.New: Scraper cannot be nil")
	}
	p := &Pipeline{
		scraper:  s,
		template: tmpl,
		policy:   policy,
		logger:   zap.L(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run は urls を処理し、出力行 (改行付き) を入力順に w へ書き込みます。
// 個々のURLの失敗は記録して読み飛ばします。エラーを返すのは w への書き込みに失敗した場合だけです。
func (p *Pipeline) Run(ctx context.Context, urls []string, w io.Writer) (Stats, error) {
	stats := Stats{Total: len(urls)}

	err := p.scraper.Scrape(ctx, urls, func(res types.URLResult) error {
		if res.Error != nil {
			stats.Failed++
			fields := []zap.Field{zap.Int("index", res.Index), zap.String("url", res.URL)}
			// レートリミッターの待機中断などは *fetch.Error を持たないため kind を付けない
			if kind := fetch.KindOf(res.Error); kind != 0 {
				fields = append(fields, zap.Stringer("kind", kind))
			}
			p.logger.Warn(MsgFetchFailed, append(fields, zap.Error(res.Error))...)
			return nil
		}

		if !res.Found {
			p.logger.Info(MsgNoTitle,
				zap.String("url", res.URL),
				zap.Stringer("policy", p.policy),
			)
		}

		line, ok := format.Format(p.template, res.URL, res.Title, res.Found, p.policy)
		if !ok {
			stats.Skipped++
			return nil
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return eris.Wrap(err, "出力の書き込みに失敗しました")
		}
		stats.Emitted++
		return nil
	})
	if err != nil {
		return stats, err
	}

	p.logger.Debug("パイプライン完了",
		zap.Int("total", stats.Total),
		zap.Int("emitted", stats.Emitted),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}
