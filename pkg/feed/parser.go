package feed

import (
	"bytes"
	"context"

	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"
)

// Fetcher は Parser が依存する、生のバイト列を取得するインターフェースです。
// *fetch.Client がこれを満たします。
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// Parser は RSS/Atom フィードを取得・解析します。
type Parser struct {
	client Fetcher
}

// NewParser は新しい Parser インスタンスを初期化し、依存関係を注入します。
func NewParser(client Fetcher) *Parser {
	return &Parser{client: client}
}

// FetchAndParse は指定されたURLからフィードを取得し、パースします。
func (p *Parser) FetchAndParse(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	body, err := p.client.FetchBytes(ctx, feedURL)
	if err != nil {
		return nil, eris.Wrapf(err, "フィードの取得失敗 (URL: %s)", feedURL)
	}

	fp := gofeed.NewParser()
	feed, err := fp.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrapf(err, "RSSフィードのパース失敗 (URL: %s)", feedURL)
	}
	return feed, nil
}

// FetchLinks はフィードを取得し、各アイテムのリンクをフィード内の順序で返します。
func (p *Parser) FetchLinks(ctx context.Context, feedURL string) ([]string, error) {
	feed, err := p.FetchAndParse(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	return GetAllLinks(NewFeedAdapter(feed)), nil
}
