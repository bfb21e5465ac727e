package cmd

import (
	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shouni/go-link-titles/internal/config"
	"github.com/shouni/go-link-titles/pkg/feed"
	"github.com/shouni/go-link-titles/pkg/fetch"
)

// --- グローバル定数 ---

const (
	appName           = "link-titles"
	defaultTimeoutSec = 10 // 秒
)

// --- グローバル変数とフラグ構造体 ---

// AppFlags はこのアプリケーション固有の永続フラグを保持
type AppFlags struct {
	TimeoutSec int    // --timeout タイムアウト
	MaxBody    int64  // --max-body 読み込むボディの上限
	UserAgent  string // --user-agent
	LogLevel   string // --log-level
	LogFormat  string // --log-format
}

var Flags AppFlags

// appConfig は PersistentPreRunE で確定した設定です。
var appConfig *config.Config

// --- 初期化とロジック (clibaseへのコールバックとして利用) ---

// addAppPersistentFlags は、アプリケーション固有の永続フラグをルートコマンドに追加します。
func addAppPersistentFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().IntVar(&Flags.TimeoutSec, "timeout", defaultTimeoutSec, "HTTPリクエストのタイムアウト時間（秒）")
	rootCmd.PersistentFlags().Int64Var(&Flags.MaxBody, "max-body", fetch.MaxBodySize, "1ページあたりに読み込む最大バイト数")
	rootCmd.PersistentFlags().StringVar(&Flags.UserAgent, "user-agent", fetch.DefaultUserAgent, "HTTPリクエストの User-Agent")
	rootCmd.PersistentFlags().StringVar(&Flags.LogLevel, "log-level", "warn", "ログレベル (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&Flags.LogFormat, "log-format", "console", "ログ形式 (console, json)。出力先は標準エラー")
}

// initAppPreRunE は、clibase共通処理の後に実行される、アプリケーション固有のPersistentPreRunEです。
// NOTE: clibaseの PersistentPreRunE チェーンにより、clibase.Flags.Verbose はこの関数実行前に設定済み
func initAppPreRunE(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	if err := config.InitLogger(cfg.Log, clibase.Flags.Verbose); err != nil {
		return err
	}
	appConfig = cfg

	zap.L().Debug("設定を読み込みました",
		zap.Duration("timeout", cfg.Timeout()),
		zap.Int64("max_body_bytes", cfg.MaxBodyBytes),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Float64("rate", cfg.Rate),
		zap.Stringer("policy", cfg.Policy()),
	)
	return nil
}

// newFetchClient は設定から共有の HTTP クライアントを生成します。
func newFetchClient(cfg *config.Config) *fetch.Client {
	return fetch.New(
		cfg.Timeout(),
		fetch.WithMaxBodySize(cfg.MaxBodyBytes),
		fetch.WithUserAgent(cfg.UserAgent),
	)
}

// newFeedFetcher はフィード取得用のリトライ付きクライアントを生成します。
func newFeedFetcher(cfg *config.Config) feed.Fetcher {
	return feed.NewRetryingFetcher(cfg.FeedTimeout(), uint64(cfg.FeedRetries))
}

// flushLogs はバッファされたログを書き出します。
// clibase.Execute はエラー時に os.Exit するため、defer ではなくコマンドの終了時に呼びます。
func flushLogs() {
	_ = zap.L().Sync()
}

// --- エントリポイント ---

// Execute は、clibase を使ってルートコマンドを組み立てて実行します。
func Execute() {
	// clibase.Execute の中でエラー時の os.Exit(1) が処理される
	clibase.Execute(
		appName,
		addAppPersistentFlags,
		initAppPreRunE,
		titlesCmd,
	)
}
