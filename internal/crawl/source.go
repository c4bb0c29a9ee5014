package crawl

import (
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// PagePlaceholder is replaced by the 1-based page number in a search URL.
const PagePlaceholder = "{page}"

// Source is one news site searched for underground plant reports.
type Source struct {
	Name      string `yaml:"name"`
	BaseURL   string `yaml:"base_url"`
	SearchURL string `yaml:"search_url"`
}

// DefaultSources returns the built-in industry news sites.
func DefaultSources() []Source {
	return []Source{
		{
			Name:      "h2o-china",
			BaseURL:   "https://www.h2o-china.com",
			SearchURL: "https://www.h2o-china.com/news/search?keyword=地下式污水&page={page}",
		},
		{
			Name:      "e20",
			BaseURL:   "https://www.e20.com.cn",
			SearchURL: "https://www.e20.com.cn/search?keyword=地下式污水&page={page}",
		},
		{
			Name:      "bjx",
			BaseURL:   "https://huanbao.bjx.com.cn",
			SearchURL: "https://huanbao.bjx.com.cn/Search?keyword=地下式污水&page={page}",
		},
	}
}

// LoadSources reads source definitions from a YAML file with a top-level
// "sources" list. An empty path yields the defaults.
func LoadSources(path string) ([]Source, error) {
	if path == "" {
		return DefaultSources(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "crawl: read sources %s", path)
	}

	var wrapper struct {
		Sources []Source `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "crawl: parse sources")
	}
	if len(wrapper.Sources) == 0 {
		return nil, eris.Errorf("crawl: no sources in %s", path)
	}
	for i, s := range wrapper.Sources {
		if err := s.Validate(); err != nil {
			return nil, eris.Wrapf(err, "crawl: source %d", i)
		}
	}
	return wrapper.Sources, nil
}

// Validate checks that the source has a name and parseable URLs.
func (s Source) Validate() error {
	if s.Name == "" {
		return eris.New("name is required")
	}
	if _, err := url.ParseRequestURI(s.PageURL(1)); err != nil {
		return eris.Wrapf(err, "%s: invalid search_url", s.Name)
	}
	if s.BaseURL != "" {
		if _, err := url.ParseRequestURI(s.BaseURL); err != nil {
			return eris.Wrapf(err, "%s: invalid base_url", s.Name)
		}
	}
	return nil
}

// PageURL renders the search URL for page. Without a placeholder the page
// is appended as a query parameter.
func (s Source) PageURL(page int) string {
	p := strconv.Itoa(page)
	if strings.Contains(s.SearchURL, PagePlaceholder) {
		return strings.ReplaceAll(s.SearchURL, PagePlaceholder, p)
	}
	sep := "?"
	if strings.Contains(s.SearchURL, "?") {
		sep = "&"
	}
	return s.SearchURL + sep + "page=" + p
}

// base returns the URL relative links resolve against.
func (s Source) base(pageURL string) *url.URL {
	if s.BaseURL != "" {
		if u, err := url.Parse(s.BaseURL); err == nil {
			return u
		}
	}
	u, _ := url.Parse(pageURL)
	return u
}
