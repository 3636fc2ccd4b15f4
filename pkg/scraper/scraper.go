// Package scraper crawls a web page for linked PDF documents and downloads
// them for ingestion.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/xhad/pdfchat/internal/logger"
)

const DefaultMaxBytes = 50 << 20

type ScraperConfig struct {
	BaseURL           string
	MaxDepth          int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string // pages worth crawling for links
	Timeout           time.Duration
	MaxBytes          int64            // largest PDF accepted
	OnProgress        func(url string) // called for every fetched URL
}

// RemoteDocument is a downloaded PDF.
type RemoteDocument struct {
	URL      string
	Filename string
	Data     []byte
}

type Scraper struct {
	config   ScraperConfig
	client   *http.Client
	visited  map[string]bool
	found    map[string]bool
	limiter  *rate.Limiter
	baseHost string
}

func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 1
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = DefaultMaxBytes
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, err
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL %q: want http or https", config.BaseURL)
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		visited:  make(map[string]bool),
		found:    make(map[string]bool),
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
	}, nil
}

func New(baseURL string) (*Scraper, error) {
	return NewWithConfig(ScraperConfig{BaseURL: baseURL})
}

func (s *Scraper) ignored(urlStr string) bool {
	for _, pattern := range s.config.IgnorePatterns {
		if pattern != "" && strings.Contains(urlStr, pattern) {
			return true
		}
	}
	return false
}

// shouldProcessURL reports whether a link is a page on the base host that may
// hold further PDF links.
func (s *Scraper) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	// Check if URL is from the same host
	if parsedURL.Host != s.baseHost {
		return false
	}

	p := strings.ToLower(parsedURL.Path)
	validExt := false
	for _, allowedExt := range s.config.AllowedExtensions {
		if strings.HasSuffix(p, allowedExt) {
			validExt = true
			break
		}
	}
	if !validExt || isPDF(parsedURL) {
		return false
	}

	return !s.ignored(urlStr)
}

func isPDF(u *url.URL) bool {
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

// FindPDFs crawls from BaseURL up to MaxDepth links deep and returns every
// distinct PDF link in discovery order. PDFs on other hosts are included; only
// pages on the base host are followed.
func (s *Scraper) FindPDFs(ctx context.Context) ([]string, error) {
	var links []string
	if err := s.crawl(ctx, s.config.BaseURL, 0, &links); err != nil {
		return links, err
	}
	return links, nil
}

func (s *Scraper) crawl(ctx context.Context, urlStr string, depth int, links *[]string) error {
	if depth > s.config.MaxDepth || s.visited[urlStr] {
		return nil
	}
	// The start page is always fetched, even if its path looks unusual.
	if depth > 0 && !s.shouldProcessURL(urlStr) {
		return nil
	}
	s.visited[urlStr] = true

	resp, err := s.get(ctx, urlStr)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return err
	}

	base, err := url.Parse(urlStr)
	if err != nil {
		return err
	}

	var next []string
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			logger.Debug("skipping link %q: %v", href, err)
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}

		link := abs.String()
		if isPDF(abs) {
			if !s.found[link] && !s.ignored(link) {
				s.found[link] = true
				*links = append(*links, link)
			}
			return
		}
		next = append(next, link)
	})

	for _, link := range next {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.crawl(ctx, link, depth+1, links); err != nil {
			logger.Warn("error scraping %s: %v", link, err)
		}
	}
	return nil
}

// Download fetches one PDF.
func (s *Scraper) Download(ctx context.Context, urlStr string) (RemoteDocument, error) {
	resp, err := s.get(ctx, urlStr)
	if err != nil {
		return RemoteDocument{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxBytes+1))
	if err != nil {
		return RemoteDocument{}, fmt.Errorf("failed to read %s: %w", urlStr, err)
	}
	if int64(len(data)) > s.config.MaxBytes {
		return RemoteDocument{}, fmt.Errorf("%s is larger than %d bytes", urlStr, s.config.MaxBytes)
	}

	return RemoteDocument{URL: urlStr, Filename: filenameOf(urlStr), Data: data}, nil
}

// Scrape finds and downloads every linked PDF. Individual download failures
// are returned joined after the successful documents.
func (s *Scraper) Scrape(ctx context.Context) ([]RemoteDocument, error) {
	links, err := s.FindPDFs(ctx)
	if err != nil {
		return nil, err
	}

	var (
		docs []RemoteDocument
		errs []error
	)
	for _, link := range links {
		doc, err := s.Download(ctx, link)
		if err != nil {
			if ctx.Err() != nil {
				return docs, ctx.Err()
			}
			errs = append(errs, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, errors.Join(errs...)
}

func (s *Scraper) get(ctx context.Context, urlStr string) (*http.Response, error) {
	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}
	return resp, nil
}

func filenameOf(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return "document.pdf"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "document.pdf"
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return name
}
