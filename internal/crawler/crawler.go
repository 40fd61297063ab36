// Package crawler fetches web pages for ingestion into the index.
package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"github.com/chromedp/chromedp"
	colly "github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"

	"local-rag-platform/internal/logger"
	"local-rag-platform/models"
)

const crawlerUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Go's transport decompresses gzip; brotli is handled manually below.
var httpTransport = &http.Transport{DisableCompression: false}

// Config controls one crawl run.
type Config struct {
	URL            string
	MaxPages       int
	AllowedDomains []string
	AllowedPaths   []string
	FollowLinks    bool
	Timeout        time.Duration
	RenderJS       bool
	RenderTimeout  time.Duration
}

// Result holds the pages collected by a crawl.
type Result struct {
	URL          string
	Title        string
	Pages        []models.CrawledPage
	PagesFound   int
	PagesCrawled int
	Error        error
}

// ConfigFromJob builds a crawl config from a stored crawl job.
func ConfigFromJob(job *models.CrawlJob, timeout time.Duration) Config {
	return Config{
		URL:            job.URL,
		MaxPages:       job.MaxPages,
		AllowedDomains: job.AllowedDomains,
		AllowedPaths:   job.AllowedPaths,
		FollowLinks:    job.FollowLinks,
		RenderJS:       job.RenderJS,
		Timeout:        timeout,
	}
}

// Crawl fetches the start URL and, when link following is enabled,
// same-domain pages reachable from it, up to MaxPages.
func Crawl(cfg Config) (*Result, error) {
	result := &Result{URL: cfg.URL}

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" {
		parsedURL.Scheme = "https"
		cfg.URL = parsedURL.String()
	}

	startURL, err := NormalizeURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL format: %w", err)
	}

	allowedDomains := cfg.AllowedDomains
	if len(allowedDomains) == 0 {
		hostname := strings.TrimPrefix(strings.ToLower(parsedURL.Hostname()), "www.")
		allowedDomains = []string{hostname, "www." + hostname}
	}

	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 50
	}

	c := colly.NewCollector(
		colly.Async(true),
		colly.MaxDepth(2),
		colly.AllowedDomains(allowedDomains...),
	)
	c.WithTransport(httpTransport)
	c.UserAgent = crawlerUserAgent

	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	} else {
		c.SetRequestTimeout(60 * time.Second)
	}

	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 2,
		Delay:       1 * time.Second,
		RandomDelay: 500 * time.Millisecond,
	})

	var (
		pagesMu   sync.Mutex
		pages     []models.CrawledPage
		processed sync.Map
	)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.Headers.Set("Accept-Encoding", "gzip, deflate, br")
	})

	c.OnResponse(func(r *colly.Response) {
		contentType := r.Headers.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml+xml") {
			return
		}

		var bodyReader io.Reader = bytes.NewReader(r.Body)
		if strings.Contains(r.Headers.Get("Content-Encoding"), "br") {
			if decompressed, err := io.ReadAll(brotli.NewReader(bodyReader)); err == nil {
				r.Body = decompressed
				bodyReader = bytes.NewReader(decompressed)
			}
		}

		// Re-encode non-UTF-8 pages before parsing.
		if len(r.Body) > 0 {
			if utf8Reader, err := charset.NewReader(bodyReader, contentType); err == nil {
				if decoded, err := io.ReadAll(utf8Reader); err == nil && len(decoded) > 0 {
					r.Body = decoded
				}
			}
		}

		result.PagesFound++
	})

	c.OnHTML("html", func(e *colly.HTMLElement) {
		pagesMu.Lock()
		defer pagesMu.Unlock()

		if len(pages) >= maxPages {
			return
		}

		pageURL, err := NormalizeURL(e.Request.URL.String())
		if err != nil {
			return
		}
		if _, seen := processed.LoadOrStore(pageURL, true); seen {
			return
		}

		title := strings.TrimSpace(e.DOM.Find("title").Text())
		content := ExtractMainContent(e.DOM)
		wordCount := len(strings.Fields(content))
		if wordCount < 10 {
			return
		}

		pages = append(pages, models.CrawledPage{
			URL:        pageURL,
			Title:      title,
			Content:    content,
			CrawledAt:  time.Now(),
			StatusCode: e.Response.StatusCode,
			Size:       int64(len(content)),
			WordCount:  wordCount,
		})

		if len(pages) == 1 {
			result.Title = title
		}

		if cfg.FollowLinks && len(pages) < maxPages {
			linkCount := 0
			e.DOM.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
				if linkCount >= 20 || len(pages) >= maxPages {
					return
				}

				href, ok := s.Attr("href")
				if !ok || href == "" || strings.HasPrefix(href, "#") {
					return
				}
				hrefLower := strings.ToLower(href)
				if strings.HasPrefix(hrefLower, "javascript:") ||
					strings.HasPrefix(hrefLower, "mailto:") ||
					strings.HasPrefix(hrefLower, "tel:") {
					return
				}

				absolute := e.Request.AbsoluteURL(href)
				if absolute == "" {
					return
				}
				normalized, err := NormalizeURL(absolute)
				if err != nil {
					return
				}
				if _, seen := processed.Load(normalized); seen {
					return
				}

				if isURLAllowed(normalized, allowedDomains, cfg.AllowedPaths) {
					linkCount++
					c.Visit(normalized)
				}
			})
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		errURL, _ := NormalizeURL(r.Request.URL.String())
		if errURL != startURL {
			logger.Debug("Crawl sub-page failed", "url", r.Request.URL.String(), "error", err)
			return
		}

		switch {
		case r.StatusCode == http.StatusForbidden:
			result.Error = fmt.Errorf("access forbidden (403): the site blocked the crawler")
		case r.StatusCode == http.StatusTooManyRequests:
			result.Error = fmt.Errorf("rate limited (429): too many requests, try again later")
		case r.StatusCode >= 500:
			result.Error = fmt.Errorf("server error (%d) from %s", r.StatusCode, r.Request.URL)
		case strings.Contains(err.Error(), "already visited"):
			// colly duplicate detection, harmless
		default:
			result.Error = fmt.Errorf("failed to crawl %s: %w", startURL, err)
		}
	})

	// JS-heavy sites get the start page via a headless browser; link
	// discovery still runs through colly.
	if cfg.RenderJS {
		if page, err := renderPage(startURL, cfg.RenderTimeout); err != nil {
			logger.Warn("Headless render failed, falling back to plain fetch", "url", startURL, "error", err)
		} else if page != nil {
			processed.Store(startURL, true)
			pagesMu.Lock()
			pages = append(pages, *page)
			pagesMu.Unlock()
			result.Title = page.Title
		}
	}

	logger.Info("Starting crawl", "url", startURL, "max_pages", maxPages)

	if err := c.Visit(startURL); err != nil && !strings.Contains(err.Error(), "already visited") {
		return nil, fmt.Errorf("failed to start crawl: %w", err)
	}
	c.Wait()

	pagesMu.Lock()
	defer pagesMu.Unlock()

	if len(pages) == 0 {
		if result.Error != nil {
			return nil, result.Error
		}
		return nil, fmt.Errorf("no content extracted from %s", startURL)
	}

	result.Pages = pages
	result.PagesCrawled = len(pages)
	result.Error = nil
	return result, nil
}

// renderPage loads a URL in headless Chrome and extracts its content.
func renderPage(urlStr string, timeout time.Duration) (*models.CrawledPage, error) {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(crawlerUserAgent),
	)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(urlStr),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(doc.Find("title").Text())
	content := ExtractMainContent(doc.Selection)
	wordCount := len(strings.Fields(content))
	if wordCount < 10 {
		return nil, fmt.Errorf("rendered page has no usable content")
	}

	return &models.CrawledPage{
		URL:        urlStr,
		Title:      title,
		Content:    content,
		CrawledAt:  time.Now(),
		StatusCode: http.StatusOK,
		Size:       int64(len(content)),
		WordCount:  wordCount,
	}, nil
}
