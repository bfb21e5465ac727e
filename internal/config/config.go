package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shouni/go-link-titles/pkg/feed"
	"github.com/shouni/go-link-titles/pkg/fetch"
	"github.com/shouni/go-link-titles/pkg/format"
	"github.com/shouni/go-link-titles/pkg/scraper"
)

const (
	envPrefix  = "LINKTITLES"
	configName = "linktitles"
)

// Config は実行全体を通して固定の設定値です。
type Config struct {
	Template     string    `mapstructure:"template"`
	SkipNoTitle  bool      `mapstructure:"skip_no_title"`
	Concurrency  int       `mapstructure:"concurrency"`
	Rate         float64   `mapstructure:"rate"`
	TimeoutSecs  int       `mapstructure:"timeout_secs"`
	MaxBodyBytes int64     `mapstructure:"max_body_bytes"`
	UserAgent    string    `mapstructure:"user_agent"`
	FeedRetries  int       `mapstructure:"feed_max_retries"`
	Log          LogConfig `mapstructure:"log"`
}

// LogConfig はログ出力の設定です。出力先は常に標準エラーです。
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// FlagBindings はコマンドラインフラグ名と設定キーの対応です。
var FlagBindings = map[string]string{
	"template":      "template",
	"skip-no-title": "skip_no_title",
	"concurrency":   "concurrency",
	"rate":          "rate",
	"timeout":       "timeout_secs",
	"max-body":      "max_body_bytes",
	"user-agent":    "user_agent",
	"feed-retries":  "feed_max_retries",
	"log-level":     "log.level",
	"log-format":    "log.format",
}

// Load は 既定値 → linktitles.yaml → LINKTITLES_* 環境変数 → フラグ の順に設定を読み込みます。
// flags に含まれないフラグは無視されます。flags は nil でも構いません。
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// 設定ファイル (任意)
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// 環境変数
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 既定値
	v.SetDefault("template", string(format.DefaultTemplate))
	v.SetDefault("skip_no_title", false)
	v.SetDefault("concurrency", scraper.DefaultMaxConcurrency)
	v.SetDefault("rate", 0.0)
	v.SetDefault("timeout_secs", int(fetch.DefaultHTTPTimeout/time.Second))
	v.SetDefault("max_body_bytes", fetch.MaxBodySize)
	v.SetDefault("user_agent", fetch.DefaultUserAgent)
	v.SetDefault("feed_max_retries", feed.DefaultMaxRetries)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")

	if flags != nil {
		for flagName, key := range FlagBindings {
			f := flags.Lookup(flagName)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, eris.Wrapf(err, "config: bind flag %s", flagName)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は設定値の範囲を確認します。
func (c *Config) Validate() error {
	if c.Concurrency < 1 {
		return eris.Errorf("config: concurrency は1以上を指定してください: %d", c.Concurrency)
	}
	if c.Rate < 0 {
		return eris.Errorf("config: rate は0以上を指定してください: %v", c.Rate)
	}
	if c.TimeoutSecs < 0 {
		return eris.Errorf("config: timeout は0以上を指定してください: %d", c.TimeoutSecs)
	}
	if c.FeedRetries < 0 {
		return eris.Errorf("config: feed-retries は0以上を指定してください: %d", c.FeedRetries)
	}
	if c.MaxBodyBytes < 0 {
		return eris.Errorf("config: max-body は0以上を指定してください: %d", c.MaxBodyBytes)
	}
	return nil
}

// Timeout は1リクエストあたりのタイムアウトです。0 の場合は fetch.New が既定値を使います。
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// FeedTimeout はフィード取得のタイムアウトです。ページ取得と同じ値で、0 の場合は fetch.DefaultHTTPTimeout です。
func (c *Config) FeedTimeout() time.Duration {
	if c.TimeoutSecs == 0 {
		return fetch.DefaultHTTPTimeout
	}
	return c.Timeout()
}

// Policy はタイトルが無いエントリの扱いです。
func (c *Config) Policy() format.Policy {
	return format.PolicyFromSkipFlag(c.SkipNoTitle)
}

// OutputTemplate は出力テンプレートです。
func (c *Config) OutputTemplate() format.Template {
	return format.NewTemplate(c.Template)
}

// InitLogger はグローバルな zap ロガーを初期化します。verbose が true の場合は debug レベルにします。
// 標準出力は結果の行だけに使うため、ログは常に標準エラーへ出力します。
func InitLogger(cfg LogConfig, verbose bool) error {
	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.DisableStacktrace = true
	}
	zapCfg.OutputPaths = []string{"stderr"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
