package fetch

import (
	"context"
	"time"

	"go.uber.org/zap"
)

var _ Fetcher = (*LoggingFetcher)(nil)

// LoggingFetcher は Fetcher をラップし、1回ごとのフェッチ結果をログに出力します。
type LoggingFetcher struct {
	next   Fetcher
	logger *zap.Logger
}

// NewLoggingFetcher は LoggingFetcher を生成します。logger が nil の場合は zap.L() を使います。
func NewLoggingFetcher(next Fetcher, logger *zap.Logger) *LoggingFetcher {
	if logger == nil {
		logger = zap.L()
	}
	return &LoggingFetcher{next: next, logger: logger}
}

// Fetch は処理を委譲し、URLとバイト数と所要時間を Debug で記録します。
// 失敗をユーザーに伝えるのは呼び出し側 (Pipeline) の Warn ログです。
func (f *LoggingFetcher) Fetch(ctx context.Context, url string) (html string, err error) {
	defer func(begin time.Time) {
		fields := []zap.Field{
			zap.String("url", url),
			zap.Int("bytes", len(html)),
			zap.Duration("duration", time.Since(begin)),
		}
		if err != nil {
			fields = append(fields, zap.Stringer("kind", KindOf(err)))
			if code, ok := IsHTTPStatus(err); ok {
				fields = append(fields, zap.Int("status", code))
			}
			f.logger.Debug("フェッチ失敗", append(fields, zap.Error(err))...)
			return
		}
		f.logger.Debug("フェッチ完了", fields...)
	}(time.Now())
	return f.next.Fetch(ctx, url)
}
