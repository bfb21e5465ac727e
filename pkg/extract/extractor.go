package extract

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Extractor は、Fetcher を使ってタイトル抽出プロセスを管理します。
type Extractor struct {
	fetcher Fetcher
}

// NewExtractor は、新しいExtractorのインスタンスを生成します。
func NewExtractor(fetcher Fetcher) (*Extractor, error) {
	if fetcher == nil {
		return nil, eris.New("extract.NewExtractor: Fetcher cannot be nil")
	}
	return &Extractor{
		fetcher: fetcher,
	}, nil
}

// FetchAndExtractTitle は指定されたURLからHTMLを取得し、ページタイトルを抽出します。
// err はフェッチの失敗のみを表します。タイトルが無いことはエラーではなく found == false です。
func (e *Extractor) FetchAndExtractTitle(ctx context.Context, url string) (title string, found bool, err error) {
	// 1. Fetcherからデコード済みHTMLを取得 (通信の責務)
	html, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", false, err
	}

	// 2. タイトルの抽出 (解析の責務)
	title, found = ExtractTitle(html)
	return title, found, nil
}

// ExtractTitle はHTML文書から最初の title 要素のテキストを返します。
// 壊れたマークアップでも失敗せず、見つからない・空白のみの場合は found == false を返します。
func ExtractTitle(document string) (title string, found bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return "", false
	}

	title = normalizeText(doc.Find("title").First().Text())
	if title == "" {
		return "", false
	}
	return title, true
}

// normalizeText は改行・タブを含む連続した空白を1つのスペースにまとめ、前後の空白を除去します。
func normalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
