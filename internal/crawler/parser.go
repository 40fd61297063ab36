package crawler

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// NormalizeURL reduces a URL to a canonical form so duplicate pages
// are detected regardless of fragments, trailing slashes or casing.
func NormalizeURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	parsed.Fragment = ""
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)

	path := parsed.Path
	if path == "" {
		path = "/"
	} else if path != "/" {
		path = strings.TrimSuffix(path, "/")
		if path == "" {
			path = "/"
		}
	}
	parsed.Path = path

	if parsed.Port() == "80" && parsed.Scheme == "http" {
		parsed.Host = parsed.Hostname()
	}
	if parsed.Port() == "443" && parsed.Scheme == "https" {
		parsed.Host = parsed.Hostname()
	}

	return parsed.String(), nil
}

var contentSelectors = []string{
	"main",
	"article",
	"[role='main']",
	".main-content",
	".content",
	"#content",
	".post",
	"body",
}

// ExtractMainContent pulls readable text out of a page, dropping
// navigation chrome and preferring semantic content containers.
func ExtractMainContent(selection *goquery.Selection) string {
	doc := selection.Clone()
	doc.Find("script, style, nav, footer, header, aside, .nav, .navbar, .footer, .sidebar, .advertisement, .ads").Remove()

	var content strings.Builder
	found := false

	for _, selector := range contentSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := strings.TrimSpace(s.Text())
			if len(text) > 100 {
				content.WriteString(text)
				content.WriteString("\n\n")
				found = true
			}
		})
		if found {
			break
		}
	}

	if !found {
		content.WriteString(doc.Find("body").Text())
	}

	return collapseWhitespace(content.String())
}

func collapseWhitespace(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

var excludedURLPatterns = []string{
	"/wp-json/", "/api/", "/ajax/", "/feed/", "/rss/", "/atom/",
	"/wp-admin/", "/wp-includes/", "/search?", "/?s=",
	".pdf", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".css", ".js", ".xml",
}

// isURLAllowed filters crawl candidates by scheme, domain, path
// prefixes and common non-content patterns.
func isURLAllowed(urlStr string, allowedDomains, allowedPaths []string) bool {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}

	if len(allowedDomains) > 0 {
		hostname := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
		allowed := false
		for _, domain := range allowedDomains {
			domain = strings.TrimPrefix(strings.ToLower(domain), "www.")
			if hostname == domain || strings.HasSuffix(hostname, "."+domain) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(allowedPaths) > 0 {
		allowed := false
		for _, prefix := range allowedPaths {
			if strings.HasPrefix(parsed.Path, prefix) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	pathLower := strings.ToLower(parsed.Path)
	queryLower := strings.ToLower(parsed.RawQuery)
	for _, pattern := range excludedURLPatterns {
		if strings.Contains(pathLower, pattern) || strings.Contains(queryLower, pattern) {
			return false
		}
	}

	return true
}
