package types

// URLResult は、1件の入力URLに対する処理結果を保持します。
// Scraper の出力であり、Pipeline はこれを入力順に受け取って出力行に変換します。
type URLResult struct {
	Index int    // 入力中の位置 (0始まり)
	URL   string // 処理対象のURL
	Title string // 抽出されたタイトル (Found が false の場合は空)
	Found bool   // タイトルが見つかったかどうか
	Error error  // フェッチ中に発生したエラー。タイトルが無いことはエラーではありません
}
