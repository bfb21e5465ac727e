package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shouni/go-link-titles/pkg/extract"
	"github.com/shouni/go-link-titles/pkg/fetch"
	"github.com/shouni/go-link-titles/pkg/format"
	"github.com/shouni/go-link-titles/pkg/scraper"
	"github.com/shouni/go-link-titles/pkg/types"
)

// newTestServer はパスごとに異なる応答を返すサーバーです。
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/example", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><head><title>Example Domain</title></head><body></body></html>")
	})
	mux.HandleFunc("/google", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<title>Google</title>")
	})
	mux.HandleFunc("/notitle", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><p>no title here</p></body></html>")
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	mux.HandleFunc("/delay/", func(w http.ResponseWriter, r *http.Request) {
		var n int
		_, _ = fmt.Sscanf(r.URL.Path, "/delay/%d", &n)
		time.Sleep(time.Duration(n) * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<title>Page %d</title>", n)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newPipeline(t *testing.T, tmpl format.Template, policy format.Policy, concurrency int, logger *zap.Logger) *Pipeline {
	t.Helper()
	client := fetch.New(200 * time.Millisecond)
	extractor, err := extract.NewExtractor(fetch.NewLoggingFetcher(client, logger))
	require.NoError(t, err)
	p, err := New(scraper.NewOrderedScraper(extractor, concurrency), tmpl, policy, WithLogger(logger))
	require.NoError(t, err)
	return p
}

func TestNew_NilScraper(t *testing.T) {
	_, err := New(nil, format.DefaultTemplate, format.EmitFallback)
	require.Error(t, err)
}

func TestRun_Scenarios(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name     string
		tmpl     format.Template
		policy   format.Policy
		urls     []string
		want     string
		wantStat Stats
	}{
		{
			name:     "title with default template",
			tmpl:     format.DefaultTemplate,
			urls:     []string{srv.URL + "/example"},
			want:     "Example Domain <" + srv.URL + "/example>\n",
			wantStat: Stats{Total: 1, Emitted: 1},
		},
		{
			name:     "no title emits fallback",
			tmpl:     format.DefaultTemplate,
			policy:   format.EmitFallback,
			urls:     []string{srv.URL + "/notitle"},
			want:     "@@@ NO TITLE @@@ <" + srv.URL + "/notitle>\n",
			wantStat: Stats{Total: 1, Emitted: 1},
		},
		{
			name:     "no title is skipped",
			tmpl:     format.DefaultTemplate,
			policy:   format.SkipWhenNoTitle,
			urls:     []string{srv.URL + "/notitle"},
			want:     "",
			wantStat: Stats{Total: 1, Skipped: 1},
		},
		{
			name:     "custom template",
			tmpl:     "[%title](%url)",
			urls:     []string{srv.URL + "/google"},
			want:     "[Google](" + srv.URL + "/google)\n",
			wantStat: Stats{Total: 1, Emitted: 1},
		},
		{
			name: "timeout and 404 are dropped and later urls continue",
			tmpl: format.DefaultTemplate,
			urls: []string{srv.URL + "/slow", srv.URL + "/missing", srv.URL + "/example"},
			want: "Example Domain <" + srv.URL + "/example>\n",
			wantStat: Stats{Total: 3, Emitted: 1, Failed: 2},
		},
		{
			name:     "invalid url is dropped",
			tmpl:     format.DefaultTemplate,
			urls:     []string{"not a url", srv.URL + "/google"},
			want:     "Google <" + srv.URL + "/google>\n",
			wantStat: Stats{Total: 2, Emitted: 1, Failed: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := newPipeline(t, tt.tmpl, tt.policy, 1, zap.NewNop())

			stats, err := p.Run(context.Background(), tt.urls, &out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.String())
			assert.Equal(t, tt.wantStat, stats)
		})
	}
}

func TestRun_PreservesOrderUnderConcurrency(t *testing.T) {
	srv := newTestServer(t)

	// 後ろほど早く返るURL列に失敗とタイトル無しを混ぜる
	urls := []string{
		srv.URL + "/delay/80",
		srv.URL + "/missing",
		srv.URL + "/delay/40",
		srv.URL + "/notitle",
		srv.URL + "/delay/0",
	}
	var out bytes.Buffer
	p := newPipeline(t, "%title", format.SkipWhenNoTitle, 5, zap.NewNop())

	stats, err := p.Run(context.Background(), urls, &out)
	require.NoError(t, err)
	assert.Equal(t, "Page 80\nPage 40\nPage 0\n", out.String())
	assert.Equal(t, Stats{Total: 5, Emitted: 3, Skipped: 1, Failed: 1}, stats)
}

func TestRun_Idempotent(t *testing.T) {
	srv := newTestServer(t)
	urls := []string{srv.URL + "/example", srv.URL + "/notitle"}
	p := newPipeline(t, format.DefaultTemplate, format.EmitFallback, 2, zap.NewNop())

	var first, second bytes.Buffer
	_, err := p.Run(context.Background(), urls, &first)
	require.NoError(t, err)
	_, err = p.Run(context.Background(), urls, &second)
	require.NoError(t, err)
	assert.Equal(t, first.String(), second.String())
}

func TestRun_Logging(t *testing.T) {
	srv := newTestServer(t)
	core, logs := observer.New(zapcore.InfoLevel)
	p := newPipeline(t, format.DefaultTemplate, format.EmitFallback, 1, zap.New(core))

	_, err := p.Run(context.Background(), []string{srv.URL + "/missing", srv.URL + "/notitle"}, &bytes.Buffer{})
	require.NoError(t, err)

	failed := logs.FilterMessage(MsgFetchFailed).All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.WarnLevel, failed[0].Level)
	assert.Equal(t, "http_status", failed[0].ContextMap()["kind"])
	assert.Equal(t, srv.URL+"/missing", failed[0].ContextMap()["url"])

	noTitle := logs.FilterMessage(MsgNoTitle).All()
	require.Len(t, noTitle, 1)
	assert.Equal(t, zapcore.InfoLevel, noTitle[0].Level)
	assert.Equal(t, "fallback", noTitle[0].ContextMap()["policy"])

	// LoggingFetcher の Debug ログは Info レベルでは出ない
	assert.Empty(t, logs.FilterMessage("フェッチ完了").All())
}

type errWriter struct{ err error }

func (w errWriter) Write([]byte) (int, error) { return 0, w.err }

func TestRun_WriteErrorIsFatal(t *testing.T) {
	srv := newTestServer(t)
	p := newPipeline(t, format.DefaultTemplate, format.EmitFallback, 2, zap.NewNop())
	writeErr := errors.New("broken pipe")

	stats, err := p.Run(context.Background(), []string{srv.URL + "/example", srv.URL + "/google"}, errWriter{err: writeErr})
	require.Error(t, err)
	assert.ErrorIs(t, err, writeErr)
	assert.True(t, strings.Contains(err.Error(), "出力の書き込みに失敗しました"))
	assert.Zero(t, stats.Emitted)
}

// stubScraper は決まった結果を入力順にそのまま渡します。
type stubScraper struct {
	results []types.URLResult
}

func (s stubScraper) Scrape(ctx context.Context, urls []string, emit scraper.EmitFunc) error {
	for _, res := range s.results {
		if err := emit(res); err != nil {
			return err
		}
	}
	return nil
}

func TestRun_KindFieldOnlyForFetchErrors(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	s := stubScraper{results: []types.URLResult{
		{Index: 0, URL: "https://a.example", Error: eris.Wrap(context.Canceled, "レートリミッターの待機に失敗しました")},
		{Index: 1, URL: "https://b.example", Error: &fetch.Error{Kind: fetch.KindTimeout, URL: "https://b.example"}},
	}}
	p, err := New(s, format.DefaultTemplate, format.EmitFallback, WithLogger(zap.New(core)))
	require.NoError(t, err)

	stats, err := p.Run(context.Background(), []string{"https://a.example", "https://b.example"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 2, Failed: 2}, stats)

	entries := logs.FilterMessage(MsgFetchFailed).All()
	require.Len(t, entries, 2)
	assert.NotContains(t, entries[0].ContextMap(), "kind")
	assert.Contains(t, entries[0].ContextMap(), "error")
	assert.Equal(t, "timeout", entries[1].ContextMap()["kind"])
}
