package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind はフェッチ失敗の分類です。呼び出し側はこれを見てログ出力やスキップを判断します。
type Kind int

const (
	KindInvalidURL Kind = iota + 1
	KindHTTPStatus
	KindTimeout
	KindConnectionFailed
	KindDecodeFailed
)

func (k Kind) String() string {
	switch k {
	case KindInvalidURL:
		return "invalid_url"
	case KindHTTPStatus:
		return "http_status"
	case KindTimeout:
		return "timeout"
	case KindConnectionFailed:
		return "connection_failed"
	case KindDecodeFailed:
		return "decode_failed"
	default:
		return "unknown"
	}
}

// Error は1回のフェッチで発生した分類済みのエラーです。
type Error struct {
	Kind       Kind
	URL        string
	StatusCode int // KindHTTPStatus のときのみ有効
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindHTTPStatus:
		return fmt.Sprintf("フェッチ失敗 [%s] %s: ステータスコード %d", e.Kind, e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("フェッチ失敗 [%s] %s: %v", e.Kind, e.URL, e.Err)
	default:
		return fmt.Sprintf("フェッチ失敗 [%s] %s", e.Kind, e.URL)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf はエラーチェーンから Kind を取り出します。*Error を含まない場合は 0 を返します。
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// IsHTTPStatus は err が HTTP ステータスエラーかどうかを判定し、そのステータスコードを返します。
func IsHTTPStatus(err error) (int, bool) {
	var fe *Error
	if errors.As(err, &fe) && fe.Kind == KindHTTPStatus {
		return fe.StatusCode, true
	}
	return 0, false
}

// classifyTransportError は http.Client.Do が返したエラーを Timeout か ConnectionFailed に振り分けます。
func classifyTransportError(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindConnectionFailed
}
