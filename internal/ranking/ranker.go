package ranking

import (
	"slices"
	"strings"

	"github.com/maine/latam_digest_bot/internal/config"
	"github.com/maine/latam_digest_bot/internal/news"
)

// Select возвращает не более limit новостей в порядке (score ↓, published ↓, без даты в конце, id ↑).
// Входной срез не изменяется.
func Select(items []news.Item, limit int) []news.Item {
	if limit <= 0 || len(items) == 0 {
		return nil
	}
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, compare)
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func compare(a, b news.Item) int {
	if a.Score != b.Score {
		if a.Score > b.Score {
			return -1
		}
		return 1
	}
	switch {
	case a.PublishedAt != nil && b.PublishedAt == nil:
		return -1
	case a.PublishedAt == nil && b.PublishedAt != nil:
		return 1
	case a.PublishedAt != nil && b.PublishedAt != nil && !a.PublishedAt.Equal(*b.PublishedAt):
		if a.PublishedAt.After(*b.PublishedAt) {
			return -1
		}
		return 1
	}
	return strings.Compare(a.ID, b.ID)
}

// Selector раскладывает новости по секциям дайджеста.
type Selector struct {
	buckets []config.Bucket
}

// NewSelector создаёт селектор. Порядок секций совпадает с порядком в конфигурации.
func NewSelector(buckets []config.Bucket) *Selector {
	return &Selector{buckets: buckets}
}

// SelectBuckets заполняет секции по очереди. Новость, попавшая в раннюю секцию,
// исключается из последующих. Пустые секции сохраняются в результате.
func (s *Selector) SelectBuckets(items []news.Item) []news.Section {
	used := make(map[string]struct{})
	sections := make([]news.Section, 0, len(s.buckets))

	for _, b := range s.buckets {
		candidates := make([]news.Item, 0, len(items))
		for _, it := range items {
			if _, taken := used[it.ID]; taken {
				continue
			}
			if matches(b, it) {
				candidates = append(candidates, it)
			}
		}

		picked := Select(candidates, b.Limit)
		for _, it := range picked {
			used[it.ID] = struct{}{}
		}
		sections = append(sections, news.Section{Name: b.Name, Title: b.Title, Items: picked})
	}
	return sections
}

func matches(b config.Bucket, it news.Item) bool {
	if len(b.Events) == 0 && len(b.SourceBuckets) == 0 {
		return true
	}
	for _, ev := range b.Events {
		if it.Classification.HasEvent(ev) {
			return true
		}
	}
	for _, sb := range b.SourceBuckets {
		if it.Bucket != "" && strings.EqualFold(it.Bucket, sb) {
			return true
		}
	}
	return false
}
