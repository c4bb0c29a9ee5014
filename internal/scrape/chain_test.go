package scrape

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/project-registry/internal/model"
)

// mockScraper implements Scraper for testing.
type mockScraper struct {
	name     string
	supports bool
	page     *model.Page
	err      error
}

func (m *mockScraper) Name() string           { return m.name }
func (m *mockScraper) Supports(_ string) bool { return m.supports }
func (m *mockScraper) Scrape(_ context.Context, u string) (*model.Page, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.page == nil {
		return nil, nil
	}
	p := *m.page
	p.URL = u
	return &p, nil
}

func TestChain_Scrape_FirstSuccess(t *testing.T) {
	s1 := &mockScraper{name: "primary", supports: true, page: &model.Page{Title: "嘉兴", Fetcher: "primary"}}
	s2 := &mockScraper{name: "fallback", supports: true}

	chain := NewChain(NewPathMatcher([]string{"/video/*"}), s1, s2)
	page, err := chain.Scrape(context.Background(), "https://a.cn/news/1")

	require.NoError(t, err)
	assert.Equal(t, "primary", page.Fetcher)
	assert.Equal(t, "https://a.cn/news/1", page.URL)
}

func TestChain_Scrape_FallbackOnError(t *testing.T) {
	s1 := &mockScraper{name: "primary", supports: true, err: errors.New("blocked")}
	s2 := &mockScraper{name: "fallback", supports: true, page: &model.Page{Fetcher: "fallback"}}

	chain := NewChain(NewPathMatcher(nil), s1, s2)
	page, err := chain.Scrape(context.Background(), "https://a.cn/news/1")

	require.NoError(t, err)
	assert.Equal(t, "fallback", page.Fetcher)
}

func TestChain_Scrape_AllFail(t *testing.T) {
	s1 := &mockScraper{name: "s1", supports: true, err: errors.New("s1 error")}
	s2 := &mockScraper{name: "s2", supports: true, err: errors.New("s2 error")}

	chain := NewChain(NewPathMatcher(nil), s1, s2)
	page, err := chain.Scrape(context.Background(), "https://a.cn")

	assert.Error(t, err)
	assert.Nil(t, page)
	assert.Contains(t, err.Error(), "all scrapers failed")
	assert.Contains(t, err.Error(), "s2 error")
}

func TestChain_Scrape_ExcludedURL(t *testing.T) {
	s1 := &mockScraper{name: "s1", supports: true, page: &model.Page{}}

	chain := NewChain(NewPathMatcher([]string{"/video/*"}), s1)
	page, err := chain.Scrape(context.Background(), "https://a.cn/video/1")

	assert.Error(t, err)
	assert.Nil(t, page)
	assert.Contains(t, err.Error(), "excluded")
	assert.False(t, chain.Supports("https://a.cn/video/1"))
}

func TestChain_Scrape_SkipsUnsupported(t *testing.T) {
	s1 := &mockScraper{name: "s1", supports: false}
	s2 := &mockScraper{name: "s2", supports: true, page: &model.Page{Fetcher: "s2"}}

	chain := NewChain(NewPathMatcher(nil), s1, s2)
	page, err := chain.Scrape(context.Background(), "https://a.cn")

	require.NoError(t, err)
	assert.Equal(t, "s2", page.Fetcher)
}

func TestChain_Scrape_NoneSupported(t *testing.T) {
	chain := NewChain(nil, &mockScraper{name: "s1"})
	_, err := chain.Scrape(context.Background(), "ftp://a.cn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no suitable scraper")
	assert.False(t, chain.Supports("ftp://a.cn"))
}

func TestChain_ScrapeAll(t *testing.T) {
	s1 := &mockScraper{name: "s1", supports: true, page: &model.Page{Content: "content"}}

	chain := NewChain(NewPathMatcher([]string{"/video/*"}), s1)
	urls := []string{
		"https://a.cn/news/1",
		"https://a.cn/video/2",
		"https://a.cn/news/3",
	}

	pages := chain.ScrapeAll(context.Background(), urls, 2)

	require.Len(t, pages, 2)
	assert.Equal(t, "https://a.cn/news/1", pages[0].URL)
	assert.Equal(t, "https://a.cn/news/3", pages[1].URL)
}

func TestChain_ScrapeAll_Empty(t *testing.T) {
	s1 := &mockScraper{name: "s1", supports: true, err: errors.New("fail")}

	chain := NewChain(NewPathMatcher(nil), s1)
	pages := chain.ScrapeAll(context.Background(), []string{"https://a.cn"}, 0)

	assert.Empty(t, pages)
}

func TestChain_ScrapeEach_AlignedWithInput(t *testing.T) {
	s1 := &mockScraper{name: "s1", supports: true, page: &model.Page{Content: "content"}}

	chain := NewChain(NewPathMatcher([]string{"/video/*"}), s1)
	pages := chain.ScrapeEach(context.Background(), []string{
		"https://a.cn/news/1",
		"https://a.cn/video/2",
		"https://a.cn/news/3",
	}, 2)

	require.Len(t, pages, 3)
	require.NotNil(t, pages[0])
	assert.Nil(t, pages[1])
	require.NotNil(t, pages[2])
	assert.Equal(t, "https://a.cn/news/3", pages[2].URL)
}
