package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/maine/latam_digest_bot/internal/config"
	"github.com/maine/latam_digest_bot/internal/news"
)

// Limits ограничивает объём данных, который берётся из одной записи и одной ленты.
type Limits struct {
	MaxEntriesPerFeed int
	SummaryMaxRunes   int
	MaxCategories     int
}

// RSSCollector загружает записи из RSS/Atom-лент параллельно.
type RSSCollector struct {
	sources     []config.Source
	client      *http.Client
	userAgent   string
	concurrency int
	limits      Limits
	log         *slog.Logger
}

// NewRSSCollector создаёт новый экземпляр.
func NewRSSCollector(sources []config.Source, fetch config.Fetch, limits Limits, client *http.Client, log *slog.Logger) *RSSCollector {
	if client == nil {
		timeout := time.Duration(fetch.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if log == nil {
		log = slog.Default()
	}
	concurrency := fetch.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	if limits.MaxEntriesPerFeed <= 0 {
		limits.MaxEntriesPerFeed = 20
	}
	return &RSSCollector{
		sources:     sources,
		client:      client,
		userAgent:   fetch.UserAgent,
		concurrency: concurrency,
		limits:      limits,
		log:         log,
	}
}

// Collect реализует app.SourceCollector. Ошибка одной ленты не прерывает остальные;
// она попадает в отчёт. Ошибка возвращается только при отмене контекста.
func (c *RSSCollector) Collect(ctx context.Context) (news.Batch, error) {
	reports := make([]news.SourceReport, len(c.sources))
	entries := make([][]news.RawEntry, len(c.sources))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, src := range c.sources {
		g.Go(func() error {
			items, err := c.fetchFeed(ctx, src)
			reports[i] = news.SourceReport{Source: src.Name, Entries: len(items), Err: err}
			if err != nil {
				c.log.Warn("fetch feed failed", "source", src.Name, "url", src.URL, "error", err)
				return nil
			}
			c.log.Debug("fetched feed", "source", src.Name, "entries", len(items))
			entries[i] = items
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return news.Batch{}, err
	}

	batch := news.Batch{Reports: reports}
	for _, items := range entries {
		batch.Entries = append(batch.Entries, items...)
	}
	return batch, nil
}

func (c *RSSCollector) fetchFeed(ctx context.Context, src config.Source) ([]news.RawEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	return c.toEntries(src, feed.Items), nil
}

// toEntries берёт первые MaxEntriesPerFeed записей (обычно самые свежие).
func (c *RSSCollector) toEntries(src config.Source, items []*gofeed.Item) []news.RawEntry {
	if len(items) > c.limits.MaxEntriesPerFeed {
		items = items[:c.limits.MaxEntriesPerFeed]
	}

	out := make([]news.RawEntry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, news.RawEntry{
			Source:      src.Name,
			Title:       CollapseSpaces(item.Title),
			Link:        strings.TrimSpace(item.Link),
			PublishedAt: publishedAt(item),
			Summary:     TruncateRunes(StripHTML(selectContent(item)), c.limits.SummaryMaxRunes),
			Categories:  capCategories(item.Categories, c.limits.MaxCategories),
			CountryHint: strings.ToUpper(strings.TrimSpace(src.Country)),
			Bucket:      strings.TrimSpace(src.Bucket),
		})
	}
	return out
}

func publishedAt(item *gofeed.Item) *time.Time {
	switch {
	case item.PublishedParsed != nil:
		t := item.PublishedParsed.UTC()
		return &t
	case item.UpdatedParsed != nil:
		t := item.UpdatedParsed.UTC()
		return &t
	default:
		return nil
	}
}

func selectContent(item *gofeed.Item) string {
	if strings.TrimSpace(item.Description) != "" {
		return item.Description
	}
	return item.Content
}

func capCategories(categories []string, limit int) []string {
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		c = CollapseSpaces(c)
		if c == "" {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
