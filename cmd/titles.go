package cmd

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shouni/go-link-titles/internal/config"
	"github.com/shouni/go-link-titles/internal/pipeline"
	"github.com/shouni/go-link-titles/pkg/extract"
	"github.com/shouni/go-link-titles/pkg/feed"
	"github.com/shouni/go-link-titles/pkg/fetch"
	"github.com/shouni/go-link-titles/pkg/format"
	"github.com/shouni/go-link-titles/pkg/scraper"
	"github.com/shouni/go-link-titles/pkg/source"
)

// フィードURLを保持するフラグ変数
var feedURL string

// titlesInput は処理対象URLの入手先です。path と feedURL が両方空なら標準入力です。
type titlesInput struct {
	path    string
	feedURL string
	stdin   io.Reader
}

// loadURLs は入力元から URL 一覧を読み込みます。ここでの失敗は致命的エラーです。
func loadURLs(ctx context.Context, feedFetcher feed.Fetcher, in titlesInput) ([]string, error) {
	if in.feedURL != "" {
		urls, err := feed.NewParser(feedFetcher).FetchLinks(ctx, in.feedURL)
		if err != nil {
			return nil, eris.Wrap(err, "フィードからURL一覧を取得できませんでした")
		}
		return urls, nil
	}
	return source.Load(in.path, in.stdin)
}

// runTitles は URL 一覧を読み込み、タイトル付きの行を out へ入力順に書き出します。
func runTitles(ctx context.Context, cfg *config.Config, in titlesInput, out io.Writer) (pipeline.Stats, error) {
	log := zap.L().With(zap.String("command", "titles"), zap.String("run_id", uuid.New().String()))

	tmpl := cfg.OutputTemplate()
	if hasTitle, hasURL := tmpl.Placeholders(); !hasTitle && !hasURL {
		log.Warn("テンプレートに %title も %url も含まれていません。全ての行が同じ内容になります",
			zap.String("template", string(tmpl)))
	}

	urls, err := loadURLs(ctx, newFeedFetcher(cfg), in)
	if err != nil {
		return pipeline.Stats{}, err
	}

	extractor, err := extract.NewExtractor(fetch.NewLoggingFetcher(newFetchClient(cfg), log))
	if err != nil {
		return pipeline.Stats{}, eris.Wrap(err, "Extractorの初期化エラー")
	}

	s := scraper.NewOrderedScraper(extractor, cfg.Concurrency, scraper.WithRateLimit(cfg.Rate))
	p, err := pipeline.New(s, tmpl, cfg.Policy(), pipeline.WithLogger(log))
	if err != nil {
		return pipeline.Stats{}, eris.Wrap(err, "パイプラインの初期化エラー")
	}

	log.Debug("タイトル取得開始",
		zap.Int("urls", len(urls)),
		zap.Int("concurrency", cfg.Concurrency),
	)
	return p.Run(ctx, urls, out)
}

var titlesCmd = &cobra.Command{
	Use:   "titles [FILE]",
	Short: "URL一覧の各ページからタイトルを取得し、テンプレートに沿って出力します",
	Long: `FILE (省略時は標準入力) から1行1URLで読み込み、各ページの <title> を取得して
テンプレート (既定: "%title <%url>") に当てはめた行を入力順に標準出力へ書き出します。
取得に失敗したURLは出力されません (警告ログは標準エラーに出ます)。
タイトルが無いページの通知は info レベルのため、既定 (--log-level warn) では表示されません。
表示するには --log-level info を指定してください。
--feed を指定すると RSS/Atom フィードの各記事のリンクを入力として使います。
フィードの取得は一時的な失敗を --feed-retries 回までリトライします (各ページの取得はリトライしません)。`,
	Args: cobra.MaximumNArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		defer flushLogs()

		if appConfig == nil {
			return eris.New("設定が初期化されていません")
		}

		in := titlesInput{feedURL: feedURL, stdin: cmd.InOrStdin()}
		if len(args) == 1 {
			in.path = args[0]
		}
		if in.path != "" && in.feedURL != "" {
			return eris.New("FILE と --feed は同時に指定できません")
		}

		stats, err := runTitles(cmd.Context(), appConfig, in, cmd.OutOrStdout())
		if err != nil {
			return err
		}

		zap.L().Info("完了",
			zap.Int("total", stats.Total),
			zap.Int("emitted", stats.Emitted),
			zap.Int("skipped", stats.Skipped),
			zap.Int("failed", stats.Failed),
		)
		return nil
	},
}

func init() {
	titlesCmd.Flags().StringP("template", "t", string(format.DefaultTemplate), "出力テンプレート。%title と %url が置換されます")
	titlesCmd.Flags().BoolP("skip-no-title", "s", false, "タイトルが無いページを出力しない")
	titlesCmd.Flags().IntP("concurrency", "c", scraper.DefaultMaxConcurrency, "最大並列取得数 (1で逐次処理)")
	titlesCmd.Flags().Float64("rate", 0, "ホストごとの秒間リクエスト数の上限 (0で無制限)")
	titlesCmd.Flags().StringVarP(&feedURL, "feed", "f", "", "入力として使う RSS/Atom フィードのURL")
	titlesCmd.Flags().Int("feed-retries", feed.DefaultMaxRetries, "フィード取得のリトライ最大回数")
}
