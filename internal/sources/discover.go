package sources

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

const maxDiscoverBody = 4 << 20

// Discover ищет адреса RSS/Atom-лент на странице сайта. Если сама страница - лента,
// возвращается её адрес. Порядок - порядок появления на странице, без повторов.
func Discover(ctx context.Context, client *http.Client, pageURL string) ([]string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDiscoverBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if _, err := gofeed.NewParser().Parse(bytes.NewReader(body)); err == nil {
		return []string{pageURL}, nil
	}

	base := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL.String()
	}
	return extractFeedLinks(body, base)
}

func extractFeedLinks(body []byte, base string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(href string) {
		abs, err := resolveURL(base, href)
		if err != nil {
			return
		}
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	}

	doc.Find(`link[rel="alternate"]`).Each(func(_ int, s *goquery.Selection) {
		typ := strings.ToLower(s.AttrOr("type", ""))
		if !strings.Contains(typ, "rss") && !strings.Contains(typ, "atom") {
			return
		}
		if href, ok := s.Attr("href"); ok {
			add(href)
		}
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		if looksLikeFeedURL(href) {
			add(href)
		}
	})

	return out, nil
}

func looksLikeFeedURL(rawURL string) bool {
	lower := strings.ToLower(strings.TrimSpace(rawURL))
	if lower == "" || strings.HasPrefix(lower, "#") || strings.HasPrefix(lower, "mailto:") {
		return false
	}
	for _, pattern := range []string{"/rss", "/feed", ".rss", "/atom", "rss.xml", "atom.xml", "feed.xml"} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

func resolveURL(base, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", fmt.Errorf("empty href")
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	h, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	resolved := b.ResolveReference(h)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", resolved.Scheme)
	}
	resolved.Fragment = ""
	return resolved.String(), nil
}
