// Package format は1件のURLとタイトルをテンプレートに当てはめて出力行を生成します。
package format

import (
	"strings"
)

const (
	// DefaultTemplate はテンプレートが指定されなかった場合の既定値です。
	DefaultTemplate Template = "%title <%url>"

	// FallbackTitle はタイトルが取得できなかった場合に %title へ代入される文字列です。
	FallbackTitle = "@@@ NO TITLE @@@"

	PlaceholderTitle = "%title"
	PlaceholderURL   = "%url"
)

// Template は %title と %url を含みうる出力行のひな形です。実行中に変更されることはありません。
type Template string

// NewTemplate は文字列から Template を生成します。空文字列の場合は DefaultTemplate です。
func NewTemplate(s string) Template {
	if s == "" {
		return DefaultTemplate
	}
	return Template(s)
}

// Placeholders はテンプレートに %title / %url が含まれているかを返します。
func (t Template) Placeholders() (hasTitle, hasURL bool) {
	s := string(t)
	return strings.Contains(s, PlaceholderTitle), strings.Contains(s, PlaceholderURL)
}

// Render はテンプレート中の %title と %url を1パスで置換します。
// 置換後の文字列は再走査しないため、タイトル自体に含まれる "%url" は展開されません。
// それ以外の % で始まる並びはそのまま残ります。
func (t Template) Render(url, title string) string {
	r := strings.NewReplacer(PlaceholderTitle, title, PlaceholderURL, url)
	return r.Replace(string(t))
}

// Policy はタイトルが無いエントリの扱いです。1回の実行を通して固定です。
type Policy int

const (
	// EmitFallback は %title に FallbackTitle を代入して出力します。
	EmitFallback Policy = iota
	// SkipWhenNoTitle はその行を出力しません。
	SkipWhenNoTitle
)

// PolicyFromSkipFlag は --skip-no-title フラグから Policy を選択します。
func PolicyFromSkipFlag(skip bool) Policy {
	if skip {
		return SkipWhenNoTitle
	}
	return EmitFallback
}

func (p Policy) String() string {
	if p == SkipWhenNoTitle {
		return "skip"
	}
	return "fallback"
}

// Format は出力行を生成します。ok が false の場合、呼び出し側はその行を出力してはいけません。
func Format(tmpl Template, url, title string, found bool, policy Policy) (line string, ok bool) {
	if !found {
		if policy == SkipWhenNoTitle {
			return "", false
		}
		title = FallbackTitle
	}
	return tmpl.Render(url, title), true
}
