// Package source は処理対象のURL一覧 (1行1URL) を読み込みます。
package source

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// maxLineSize は1行の最大長です。bufio.Scanner の既定値 (64KB) では長いURLを扱えないため拡張します。
const maxLineSize = 1024 * 1024

// ReadLines は r から1行ずつ読み込み、前後の空白を除去して空行を除いた一覧を返します。
func ReadLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var urls []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			urls = append(urls, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "入力の読み取りエラー")
	}
	return urls, nil
}

// Open は path が空でなければそのファイルを、空なら stdin を返します。
// 返された io.ReadCloser は呼び出し側で閉じてください (stdin の Close は何もしません)。
func Open(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "" {
		return io.NopCloser(stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "入力ファイルを開けません: %s", path)
	}
	return f, nil
}

// Load は Open と ReadLines をまとめて実行します。
func Load(path string, stdin io.Reader) ([]string, error) {
	rc, err := Open(path, stdin)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	urls, err := ReadLines(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "入力の読み込みに失敗しました: %s", describe(path))
	}
	return urls, nil
}

func describe(path string) string {
	if path == "" {
		return "標準入力"
	}
	return path
}
