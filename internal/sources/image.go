package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/PuerkitoBio/goquery"
)

const maxImagePageBody = 2 << 20

// ErrNoImage возвращается, если на странице нет og:image / twitter:image.
var ErrNoImage = errors.New("page has no preview image")

// imageSelectors проверяются по порядку, побеждает первый непустой content.
var imageSelectors = []string{
	`meta[property="og:image:secure_url"]`,
	`meta[property="og:image"]`,
	`meta[name="og:image"]`,
	`meta[name="twitter:image"]`,
	`meta[property="twitter:image"]`,
}

// ImageFinder достаёт картинку превью со страницы новости.
type ImageFinder struct {
	client    *http.Client
	userAgent string
}

// NewImageFinder создаёт новый экземпляр. client == nil означает http.DefaultClient.
func NewImageFinder(client *http.Client, userAgent string) *ImageFinder {
	if client == nil {
		client = http.DefaultClient
	}
	return &ImageFinder{client: client, userAgent: userAgent}
}

// FindImage возвращает абсолютный http(s) адрес картинки из og:image страницы pageURL.
func (f *ImageFinder) FindImage(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxImagePageBody))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	base := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL.String()
	}
	for _, sel := range imageSelectors {
		content := doc.Find(sel).First().AttrOr("content", "")
		if content == "" {
			continue
		}
		if abs, err := resolveURL(base, content); err == nil {
			return abs, nil
		}
	}
	return "", ErrNoImage
}
