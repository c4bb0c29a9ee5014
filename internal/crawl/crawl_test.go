package crawl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/project-registry/internal/model"
	"github.com/sells-group/project-registry/internal/scrape"
)

const listPage = `<html><head><meta charset="utf-8"><title>搜索</title></head><body>
<ul class="news-list">
<li><a href="/news/1.html">浙江省嘉兴市地下式污水处理厂中标公告</a>
<p class="summary">处理规模15万吨/日，总投资12.5亿元</p><span class="time">2024-03-05</span></li>
<li><a href="/news/2.html">某地自来水厂改造</a><p>无关</p></li>
<li><a href="https://other.cn/a.html#top">广州全地下污水厂投产</a></li>
<li><a href="/news/1.html">浙江省嘉兴市地下式污水处理厂中标公告</a></li>
<li><a href="/video/3">地下式污水厂视频</a></li>
<li><a href="javascript:void(0)">地下式 more</a></li>
</ul></body></html>`

const emptyPage = `<html><body><ul class="news-list"></ul></body></html>`

func newCrawler(opts ...Option) *Crawler {
	return New(append([]Option{WithRateLimit(1000)}, opts...)...)
}

func listServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Query().Get("page") == "1" {
			_, _ = w.Write([]byte(listPage))
			return
		}
		_, _ = w.Write([]byte(emptyPage))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestFetchList(t *testing.T) {
	srv, _ := listServer(t)
	src := Source{Name: "test", SearchURL: srv.URL + "/search?keyword=x&page={page}"}

	items, err := newCrawler().FetchList(context.Background(), src, 1)
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "test", first.Source)
	assert.Equal(t, srv.URL+"/news/1.html", first.URL)
	assert.Equal(t, "浙江省嘉兴市地下式污水处理厂中标公告", first.Title)
	assert.Equal(t, "处理规模15万吨/日，总投资12.5亿元", first.Summary)
	assert.Equal(t, "2024-03-05", first.PublishTime)

	obs := first.Observation
	assert.Equal(t, first.URL, obs.SourceURL)
	assert.Equal(t, "浙江·嘉兴", obs.Location)
	require.NotNil(t, obs.NearTermScale)
	assert.InDelta(t, 15.0, *obs.NearTermScale, 1e-9)
	require.NotNil(t, obs.TotalInvestment)
	assert.InDelta(t, 12.5, *obs.TotalInvestment, 1e-9)

	assert.Equal(t, "https://other.cn/a.html", items[1].URL)
	assert.Empty(t, items[1].Summary)
}

func TestFetchList_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/blocked" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newCrawler()
	_, err := c.FetchList(context.Background(), Source{Name: "s", SearchURL: srv.URL + "/boom"}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")

	_, err = c.FetchList(context.Background(), Source{Name: "s", SearchURL: srv.URL + "/blocked"}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limited")
}

func TestCrawlSource_StopsOnEmptyPage(t *testing.T) {
	srv, hits := listServer(t)
	src := Source{Name: "test", SearchURL: srv.URL + "/search?page={page}"}

	items := newCrawler().CrawlSource(context.Background(), src, 5)
	assert.Len(t, items, 2)
	assert.Equal(t, int32(2), hits.Load())
}

func TestCrawl_DedupesAcrossSources(t *testing.T) {
	srv, _ := listServer(t)
	sources := []Source{
		{Name: "a", SearchURL: srv.URL + "/a?page={page}"},
		{Name: "b", SearchURL: srv.URL + "/b?page={page}"},
	}

	items, err := newCrawler(WithConcurrency(2)).Crawl(context.Background(), sources, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Source)
	assert.Equal(t, "a", items[1].Source)
}

func TestCrawl_Cancelled(t *testing.T) {
	srv, _ := listServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newCrawler().Crawl(ctx, []Source{{Name: "a", SearchURL: srv.URL + "?page={page}"}}, 1)
	require.Error(t, err)
}

func TestEnrich(t *testing.T) {
	detail := `<html><head><title>t</title></head><body><article>
<h1>浙江省嘉兴市地下式污水处理厂中标公告</h1>
<p>近期处理规模为20万吨/日。中标单位：中国水务集团有限公司。项目位于秀洲区，采用全地下箱体结构，地面建设公园。</p>
</article></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/news/1.html" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(detail))
	}))
	defer srv.Close()

	list, _ := listServer(t)
	src := Source{Name: "test", BaseURL: srv.URL, SearchURL: list.URL + "/search?page={page}"}
	c := newCrawler()
	items, err := c.FetchList(context.Background(), src, 1)
	require.NoError(t, err)
	require.Len(t, items, 2)

	missing := Item{Source: "test", URL: srv.URL + "/missing", Title: "地下式污水厂"}
	missing.Observation.Name = "地下式污水厂"

	chain := scrape.NewChain(nil, scrape.NewLocalScraper(scrape.WithHTTPClient(srv.Client())))
	enriched := c.Enrich(context.Background(), chain, []Item{items[0], missing}, 2)
	require.Len(t, enriched, 2)

	first := enriched[0]
	assert.True(t, first.Detailed)
	require.NotNil(t, first.Observation.NearTermScale)
	assert.InDelta(t, 20.0, *first.Observation.NearTermScale, 1e-9)
	require.NotNil(t, first.Observation.TotalInvestment)
	assert.InDelta(t, 12.5, *first.Observation.TotalInvestment, 1e-9)
	assert.Equal(t, "中国水务集团有限公司", first.Observation.Contractor)
	require.NotNil(t, items[0].Observation.NearTermScale)
	assert.InDelta(t, 15.0, *items[0].Observation.NearTermScale, 1e-9)

	assert.False(t, enriched[1].Detailed)
	assert.Equal(t, "地下式污水厂", enriched[1].Observation.Name)
}

// canonicalScraper answers every URL with a page whose URL carries a
// trailing slash, the way a reader service reports canonical URLs.
type canonicalScraper struct{}

func (canonicalScraper) Name() string          { return "canonical" }
func (canonicalScraper) Supports(string) bool { return true }
func (canonicalScraper) Scrape(_ context.Context, u string) (*model.Page, error) {
	return &model.Page{
		URL:     u + "/",
		Title:   "江苏省苏州市地下式污水处理厂工程_新闻",
		Content: "项目处理规模为8万吨/日，总投资6.5亿元。",
	}, nil
}

func TestEnrich_PageURLDiffersFromRequest(t *testing.T) {
	item := Item{Source: "test", URL: "https://example.com/a", Title: "headline"}
	item.Observation.Name = "headline"

	chain := scrape.NewChain(nil, canonicalScraper{})
	enriched := newCrawler().Enrich(context.Background(), chain, []Item{item}, 1)
	require.Len(t, enriched, 1)

	got := enriched[0]
	assert.True(t, got.Detailed)
	assert.Equal(t, "https://example.com/a", got.URL)
	assert.Equal(t, "江苏省苏州市地下式污水处理厂工程", got.Observation.Name)
	require.NotNil(t, got.Observation.NearTermScale)
	assert.InDelta(t, 8.0, *got.Observation.NearTermScale, 1e-9)
	require.NotNil(t, got.Observation.TotalInvestment)
	assert.InDelta(t, 6.5, *got.Observation.TotalInvestment, 1e-9)
}

func TestParseList_Containers(t *testing.T) {
	doc, err := scrape.ParseHTML([]byte(`<html><body>
<div class="news-item"><h3><a href="a.html">全地下污水厂开工</a></h3><div class="intro">投资3亿元</div><span>2023年5月6日</span></div>
<dl class="list_detail"><dt><a href="/b.html">地埋式污水站</a></dt><dd>规模2万吨/日</dd></dl>
</body></html>`))
	require.NoError(t, err)
	base, _ := url.Parse("https://e20.com.cn/search/")

	items := ParseList(doc, "e20", base)
	require.Len(t, items, 2)
	assert.Equal(t, "https://e20.com.cn/search/a.html", items[0].URL)
	assert.Equal(t, "投资3亿元", items[0].Summary)
	assert.Equal(t, "2023年5月6日", items[0].PublishTime)
	assert.Equal(t, "https://e20.com.cn/b.html", items[1].URL)
	assert.Equal(t, "规模2万吨/日", items[1].Summary)
}

func TestHasKeyword(t *testing.T) {
	assert.True(t, HasKeyword("某市下沉式再生水厂"))
	assert.True(t, HasKeyword("地下二层设备间"))
	assert.False(t, HasKeyword("污水处理厂提标改造"))
}

func TestSource_PageURL(t *testing.T) {
	tests := []struct {
		search string
		want   string
	}{
		{"https://a.cn/s?k=x&page={page}", "https://a.cn/s?k=x&page=3"},
		{"https://a.cn/s?k=x", "https://a.cn/s?k=x&page=3"},
		{"https://a.cn/s", "https://a.cn/s?page=3"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Source{SearchURL: tt.search}.PageURL(3))
	}
}

func TestLoadSources(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		srcs, err := LoadSources("")
		require.NoError(t, err)
		require.Len(t, srcs, 3)
		assert.Equal(t, "h2o-china", srcs[0].Name)
		for _, s := range srcs {
			assert.NoError(t, s.Validate())
			assert.Contains(t, s.SearchURL, PagePlaceholder)
		}
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sources.yaml")
		yml := "sources:\n  - name: cnwater\n    base_url: https://cn.example\n    search_url: https://cn.example/s?q=地下式&p={page}\n"
		require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))

		srcs, err := LoadSources(path)
		require.NoError(t, err)
		require.Len(t, srcs, 1)
		assert.Equal(t, "https://cn.example/s?q=地下式&p=2", srcs[0].PageURL(2))
	})

	t.Run("invalid", func(t *testing.T) {
		for i, yml := range []string{"sources: []\n", "sources:\n  - search_url: https://a.cn\n", ": bad"} {
			path := filepath.Join(t.TempDir(), fmt.Sprintf("s%d.yaml", i))
			require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
			_, err := LoadSources(path)
			assert.Error(t, err, yml)
		}
	})

	t.Run("missing", func(t *testing.T) {
		_, err := LoadSources(filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "read sources"))
	})
}
