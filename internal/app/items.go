package app

import (
	"github.com/maine/latam_digest_bot/internal/classify"
	"github.com/maine/latam_digest_bot/internal/news"
)

// Identifier вычисляет стабильный id записи.
type Identifier interface {
	ID(source, rawURL, title string) (string, error)
}

// Classifier размечает текст новости.
type Classifier interface {
	Classify(text, countryHint string) news.Classification
	IsRelevant(text string) bool
	RegionMentioned(text string) bool
	Score(text string) int
}

// ItemBuilder превращает сырые записи лент в идентифицированные и размеченные новости.
type ItemBuilder struct {
	ids        Identifier
	classifier Classifier
}

// NewItemBuilder создаёт новый экземпляр.
func NewItemBuilder(ids Identifier, classifier Classifier) *ItemBuilder {
	return &ItemBuilder{ids: ids, classifier: classifier}
}

// Build сохраняет порядок записей. Запись без URL или заголовка получает пустой id
// и отсеивается фильтром как невалидная. Источник с указанной страной считается
// региональным независимо от текста.
func (b *ItemBuilder) Build(entries []news.RawEntry) []news.Item {
	items := make([]news.Item, 0, len(entries))
	for _, e := range entries {
		id, err := b.ids.ID(e.Source, e.Link, e.Title)
		if err != nil {
			id = ""
		}

		text := classify.Text(e.Title, e.Summary, e.Categories)
		items = append(items, news.Item{
			ID:             id,
			Source:         e.Source,
			CountryHint:    e.CountryHint,
			Bucket:         e.Bucket,
			Title:          e.Title,
			URL:            e.Link,
			PublishedAt:    e.PublishedAt,
			Summary:        e.Summary,
			Categories:     e.Categories,
			Classification: b.classifier.Classify(text, e.CountryHint),
			Score:          b.classifier.Score(text),
			Relevant:       b.classifier.IsRelevant(text),
			RegionMatch:    e.CountryHint != "" || b.classifier.RegionMentioned(text),
		})
	}
	return items
}
