package scrape

import (
	"net/url"
	"path"
	"strings"
)

// defaultExcludePatterns skip portal sections that never carry project
// articles. Used when no custom patterns are provided.
var defaultExcludePatterns = []string{
	"/video/*",
	"/tags/*",
	"/user/*",
	"/login*",
	"/*.pdf",
	"/*.zip",
}

// PathMatcher filters URLs based on glob-style path patterns.
// Patterns use path.Match globs, plus a segmented match so "/video/*"
// matches multi-level paths like "/video/2024/clip".
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher from glob patterns (e.g. "/video/*", "/*.pdf").
// Falls back to default patterns if none are provided.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	return &PathMatcher{patterns: patterns}
}

// Patterns returns the configured patterns.
func (m *PathMatcher) Patterns() []string {
	return m.patterns
}

// IsExcluded checks whether a URL matches any exclude pattern.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	return m.isPathExcluded(u.Path)
}

// isPathExcluded checks a URL path against all patterns.
func (m *PathMatcher) isPathExcluded(urlPath string) bool {
	urlPath = strings.ToLower(urlPath)
	for _, pattern := range m.patterns {
		pattern = strings.ToLower(pattern)
		if matchSegmented(pattern, urlPath) {
			return true
		}
	}
	return false
}

// matchSegmented performs glob matching where a pattern like "/video/*"
// matches both "/video/a" and "/video/a/b/c". A "/*.ext" pattern matches
// the extension at any depth.
func matchSegmented(pattern, urlPath string) bool {
	// Try exact stdlib glob match first.
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}

	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}

	if ext, ok := strings.CutPrefix(pattern, "/*."); ok && !strings.ContainsAny(ext, "*?[/") {
		return strings.HasSuffix(urlPath, "."+ext)
	}
	return false
}
