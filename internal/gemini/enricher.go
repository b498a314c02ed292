package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/maine/latam_digest_bot/internal/classify"
	"github.com/maine/latam_digest_bot/internal/news"
)

// NoopEnricher возвращает новости без изменений. Используется без GEMINI_API_KEY.
type NoopEnricher struct{}

// Enrich реализует app.Enricher.
func (NoopEnricher) Enrich(_ context.Context, items []news.Item) []news.Item {
	return items
}

// Enricher дополняет выбранные новости кратким пересказом и инсайтом на русском.
// Метки от модели принимаются только из таблицы классификатора; при любой ошибке
// новости возвращаются с детерминированными метками.
type Enricher struct {
	client  GeminiClient
	model   string
	timeout time.Duration
	sectors map[string]string
	events  map[string]string
	maxSec  int
	maxEv   int
	log     *slog.Logger
}

// NewEnricher создаёт новый экземпляр.
func NewEnricher(client GeminiClient, model string, timeout time.Duration, rules classify.Rules, log *slog.Logger) *Enricher {
	if log == nil {
		log = slog.Default()
	}
	return &Enricher{
		client:  client,
		model:   model,
		timeout: timeout,
		sectors: labelIndex(rules.SectorLabels()),
		events:  labelIndex(rules.EventLabels()),
		maxSec:  rules.MaxSectors,
		maxEv:   rules.MaxEvents,
		log:     log,
	}
}

// Enrich реализует app.Enricher. Все новости отправляются одним запросом.
func (e *Enricher) Enrich(ctx context.Context, items []news.Item) []news.Item {
	if len(items) == 0 {
		return items
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	responses, err := e.request(ctx, items)
	if err != nil {
		e.log.Warn("enrichment skipped", "items", len(items), "error", err)
		return items
	}

	byID := make(map[string]enrichmentResponse, len(responses))
	for _, r := range responses {
		byID[strings.TrimSpace(r.ID)] = r
	}

	out := make([]news.Item, 0, len(items))
	enriched := 0
	for _, it := range items {
		resp, ok := byID[it.ID]
		if !ok {
			out = append(out, it)
			continue
		}
		out = append(out, e.apply(it, resp))
		enriched++
	}
	e.log.Info("enrichment complete", "items", len(items), "enriched", enriched)
	return out
}

func (e *Enricher) request(ctx context.Context, items []news.Item) ([]enrichmentResponse, error) {
	input := make([]enrichmentInput, 0, len(items))
	for _, it := range items {
		input = append(input, enrichmentInput{
			ID:      it.ID,
			Title:   it.Title,
			Summary: it.Summary,
			Source:  it.Source,
			Country: it.Classification.Country,
		})
	}
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input: %w", err)
	}

	text, err := e.client.GenerateText(ctx, e.model, e.buildPrompt(string(inputJSON)))
	if err != nil {
		return nil, fmt.Errorf("generate text: %w", err)
	}

	var out []enrichmentResponse
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		cleaned := extractJSON(text)
		if cleaned == "" {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
		if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
			return nil, fmt.Errorf("unmarshal cleaned response: %w", err)
		}
	}
	return out, nil
}

// apply возвращает копию новости с обогащением. Невалидные метки отбрасываются.
func (e *Enricher) apply(it news.Item, resp enrichmentResponse) news.Item {
	summary := plainText(resp.Summary)
	insight := plainText(resp.Insight)
	if summary != "" || insight != "" {
		it.Enrichment = &news.Enrichment{Summary: summary, Insight: insight}
	}

	cls := it.Classification
	if sectors := validLabels(resp.Sectors, e.sectors, e.maxSec); len(sectors) > 0 {
		cls.Sectors = sectors
	}
	if events := validLabels(resp.Events, e.events, e.maxEv); len(events) > 0 {
		cls.Events = events
	}
	// Страна от модели принимается только если классификатор её не нашёл.
	if cls.Country == classify.RegionSentinel {
		if c := strings.ToUpper(strings.TrimSpace(resp.Country)); classify.Flag(c) != "" {
			cls.Country = c
		}
	}
	it.Classification = cls
	return it
}

// strictPolicy вырезает любую разметку из ответа модели.
var strictPolicy = bluemonday.StrictPolicy()

func plainText(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(strictPolicy.Sanitize(s))), " ")
}

func (e *Enricher) buildPrompt(inputJSON string) string {
	return fmt.Sprintf(`Ты — редактор дайджеста о стартапах Латинской Америки.
Тебе передан список новостей в формате JSON (id, title, summary, source, country). Тексты на испанском, португальском или английском.

Для каждой новости верни:
- "summary": 1–2 предложения на русском, только факты из заголовка и описания;
- "insight": одно короткое предложение на русском — почему это важно для рынка;
- "sectors": до 3 меток ТОЛЬКО из списка: %s;
- "events": до 2 меток ТОЛЬКО из списка: %s;
- "country": ISO2-код страны, если она явно указана, иначе "LATAM".

Не выдумывай цифры и названия. Верни ТОЛЬКО валидный JSON-массив без markdown:
[{"id": "<id>", "summary": "...", "insight": "...", "sectors": ["..."], "events": ["..."], "country": "MX"}, ...]

Входные данные:
%s`, quoteList(e.sectors), quoteList(e.events), inputJSON)
}

func labelIndex(labels []string) map[string]string {
	idx := make(map[string]string, len(labels))
	for _, l := range labels {
		idx[strings.ToLower(l)] = l
	}
	return idx
}

func validLabels(in []string, allowed map[string]string, limit int) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, l := range in {
		canonical, ok := allowed[strings.ToLower(strings.TrimSpace(l))]
		if !ok {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
		if len(out) == limit {
			break
		}
	}
	return out
}

func quoteList(idx map[string]string) string {
	labels := make([]string, 0, len(idx))
	for _, l := range idx {
		labels = append(labels, `"`+l+`"`)
	}
	sort.Strings(labels)
	return strings.Join(labels, ", ")
}

// extractJSON извлекает JSON-массив из ответа модели (markdown-блоки, лишний текст).
func extractJSON(text string) string {
	if start := strings.Index(text, "```"); start != -1 {
		rest := text[start+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end != -1 {
			text = rest[:end]
		}
	}

	start := strings.Index(text, "[")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

type enrichmentInput struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`
	Source  string `json:"source"`
	Country string `json:"country"`
}

type enrichmentResponse struct {
	ID      string   `json:"id"`
	Summary string   `json:"summary"`
	Insight string   `json:"insight"`
	Sectors []string `json:"sectors"`
	Events  []string `json:"events"`
	Country string   `json:"country"`
}
