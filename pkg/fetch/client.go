package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html/charset"
)

const (
	// HTTPクライアント関連の定数
	DefaultHTTPTimeout = 10 * time.Second
	MaxBodySize        = int64(5 * 1024 * 1024) // 5MB: これを超えた分は読み捨てる (タイトルは <head> にある)
	MaxRedirects       = 10

	DefaultUserAgent = "go-link-titles/1.0 (load title tags)"
)

var errTooManyRedirects = eris.New("リダイレクト回数が上限を超えました")

// Doer は、標準の *http.Client.Do() と互換性のあるHTTPクライアントのインターフェースを定義します。
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher は、URLからデコード済みのHTML文字列を取得する機能のインターフェースです。
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Client は1URLにつき1回だけGETを実行します。リトライは行いません。
type Client struct {
	httpClient  Doer
	maxBodySize int64
	userAgent   string
}

// ClientOption はClientの設定を行うための関数型です。
type ClientOption func(*Client)

// WithHTTPClient はカスタムのDoerを設定します。
func WithHTTPClient(doer Doer) ClientOption {
	return func(c *Client) {
		c.httpClient = doer
	}
}

// WithMaxBodySize はレスポンスボディの最大読み込みサイズを設定します。0以下は既定値のままです。
func WithMaxBodySize(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// WithUserAgent はリクエストに付与するUser-Agentを設定します。
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// New は、新しいClientを生成します。timeout が0以下の場合は DefaultHTTPTimeout を使います。
func New(timeout time.Duration, options ...ClientOption) *Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= MaxRedirects {
					return errTooManyRedirects
				}
				return nil
			},
		},
		maxBodySize: MaxBodySize,
		userAgent:   DefaultUserAgent,
	}

	for _, opt := range options {
		opt(c)
	}
	return c
}

// Fetch はURLからHTMLを取得し、UTF-8にデコードした文字列を返します。
// 失敗時のエラーは常に *Error です。
func (c *Client) Fetch(ctx context.Context, rawURL string) (string, error) {
	body, contentType, err := c.doFetch(ctx, rawURL)
	if err != nil {
		return "", err
	}

	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", &Error{Kind: KindDecodeFailed, URL: rawURL, Err: eris.Wrap(err, "文字コードの判定に失敗しました")}
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", &Error{Kind: KindDecodeFailed, URL: rawURL, Err: eris.Wrap(err, "文字コードの変換に失敗しました")}
	}
	return string(decoded), nil
}

// doFetch は実際の一度のHTTP GETリクエストを実行し、ボディとContent-Typeを返します。
func (c *Client) doFetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, "", &Error{Kind: KindInvalidURL, URL: rawURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", &Error{Kind: KindInvalidURL, URL: rawURL, Err: eris.Wrap(err, "GETリクエスト作成に失敗しました")}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &Error{Kind: classifyTransportError(err), URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// 接続を再利用できるよう、少しだけ読み捨てる
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", &Error{Kind: KindHTTPStatus, URL: rawURL, StatusCode: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if err := checkContentType(contentType); err != nil {
		return nil, "", &Error{Kind: KindDecodeFailed, URL: rawURL, Err: err}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
	if err != nil {
		return nil, "", &Error{Kind: classifyTransportError(err), URL: rawURL, Err: eris.Wrap(err, "レスポンスボディの読み込みに失敗しました")}
	}
	return body, contentType, nil
}

// validateURL は絶対URLであり、スキームが http/https であることを確認します。
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return eris.Wrap(err, "URLのパースエラー")
	}
	if !u.IsAbs() || u.Host == "" {
		return eris.Errorf("絶対URLではありません: %s", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return eris.Errorf("無効なURLスキームです。httpまたはhttpsを指定してください: %s", rawURL)
	}
	return nil
}

// checkContentType はテキストとして扱えるメディアタイプかを確認します。ヘッダーが無い場合は許可します。
func checkContentType(contentType string) error {
	if contentType == "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	// パラメータだけが壊れている場合 (例: "text/html; charset") もメディアタイプは得られる
	if err != nil && !(errors.Is(err, mime.ErrInvalidMediaParameter) && mediaType != "") {
		return eris.Wrapf(err, "Content-Typeのパースエラー: %q", contentType)
	}
	switch {
	case strings.HasPrefix(mediaType, "text/"),
		mediaType == "application/xhtml+xml",
		mediaType == "application/xml",
		strings.HasSuffix(mediaType, "+xml"):
		return nil
	}
	return eris.Errorf("テキストではないContent-Typeです: %s", mediaType)
}
