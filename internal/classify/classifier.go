// Package classify присваивает новостям страну, секторы и события по таблице ключевых слов.
package classify

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/maine/latam_digest_bot/internal/news"
)

// amountPattern ловит суммы вида "$10M", "US$ 5 millones", "R$ 20 milhões", "12 million".
var amountPattern = regexp.MustCompile(`(?i)(?:(?:us|r)?\$|usd|€)\s?\d+(?:[.,]\d+)*\s?(?:k|m|mm|b|bn|million|millones|milhões|billion)?|\d+(?:[.,]\d+)?\s?(?:million|millones|millón|milhões|billion|bn)`)

type compiledRule struct {
	label string
	re    *regexp.Regexp
}

// Classifier - скомпилированная таблица правил. Безопасен для конкурентного использования.
type Classifier struct {
	sectors    []compiledRule
	events     []compiledRule
	countries  []compiledRule
	startup    *regexp.Regexp
	region     *regexp.Regexp
	maxSectors int
	maxEvents  int
}

// New компилирует таблицу правил.
func New(rules Rules) (*Classifier, error) {
	c := &Classifier{
		maxSectors: rules.MaxSectors,
		maxEvents:  rules.MaxEvents,
	}
	if c.maxSectors <= 0 {
		c.maxSectors = 3
	}
	if c.maxEvents <= 0 {
		c.maxEvents = 2
	}

	var err error
	if c.sectors, err = compileRules(rules.Sectors); err != nil {
		return nil, fmt.Errorf("compile sectors: %w", err)
	}
	if c.events, err = compileRules(rules.Events); err != nil {
		return nil, fmt.Errorf("compile events: %w", err)
	}
	if c.countries, err = compileRules(rules.Countries); err != nil {
		return nil, fmt.Errorf("compile countries: %w", err)
	}
	if c.startup, err = compilePatterns(rules.StartupHints); err != nil {
		return nil, fmt.Errorf("compile startup hints: %w", err)
	}
	if c.region, err = compilePatterns(rules.RegionHints); err != nil {
		return nil, fmt.Errorf("compile region hints: %w", err)
	}
	return c, nil
}

var defaultClassifier = sync.OnceValue(func() *Classifier {
	c, err := New(DefaultRules())
	if err != nil {
		panic(err)
	}
	return c
})

// Default возвращает классификатор со встроенными правилами.
func Default() *Classifier {
	return defaultClassifier()
}

// Text собирает текст для классификации из заголовка, описания и категорий ленты.
func Text(title, summary string, categories []string) string {
	parts := make([]string, 0, 2+len(categories))
	parts = append(parts, title, summary)
	parts = append(parts, categories...)
	return strings.Join(parts, " ")
}

// Classify возвращает страну, до maxSectors секторов и до maxEvents событий.
// Результат не бывает пустым: при отсутствии совпадений используются метки по умолчанию.
func (c *Classifier) Classify(text, countryHint string) news.Classification {
	t := prepare(text)
	return news.Classification{
		Sectors: matchLabels(c.sectors, t, c.maxSectors, DefaultSector),
		Events:  matchLabels(c.events, t, c.maxEvents, DefaultEvent),
		Country: c.country(t, countryHint),
	}
}

// IsRelevant сообщает, похожа ли новость на стартап-повестку.
func (c *Classifier) IsRelevant(text string) bool {
	return c.startup != nil && c.startup.MatchString(prepare(text))
}

// RegionMentioned сообщает, упоминается ли регион или одна из его стран.
func (c *Classifier) RegionMentioned(text string) bool {
	return c.region != nil && c.region.MatchString(prepare(text))
}

// Score - сумма фиксированных весов сработавших сигналов.
func (c *Classifier) Score(text string) int {
	t := prepare(text)
	score := 0
	if c.hit(c.events, EventFunding, t) {
		score += weightFunding
	}
	if c.hit(c.events, EventMA, t) {
		score += weightMA
	}
	if c.hit(c.events, EventNewPlant, t) || c.hit(c.sectors, SectorManufacturing, t) {
		score += weightManufacturing
	}
	if c.hit(c.events, EventMarketEntry, t) {
		score += weightMarketEntry
	}
	if c.hit(c.events, EventPartnership, t) {
		score += weightPartnership
	}
	if c.startup != nil && c.startup.MatchString(t) {
		score += weightStartup
	}
	if amountPattern.MatchString(t) {
		score += weightAmount
	}
	return score
}

func (c *Classifier) hit(rules []compiledRule, label, text string) bool {
	for _, r := range rules {
		if r.label == label {
			return r.re.MatchString(text)
		}
	}
	return false
}

func (c *Classifier) country(text, hint string) string {
	for _, r := range c.countries {
		if r.re.MatchString(text) {
			return r.label
		}
	}
	h := strings.ToUpper(strings.TrimSpace(hint))
	if isISO2(h) {
		return h
	}
	return RegionSentinel
}

// Flag возвращает эмодзи флага для ISO2-кода или пустую строку.
func Flag(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !isISO2(code) {
		return ""
	}
	const offset = 127397
	return string([]rune{rune(code[0]) + offset, rune(code[1]) + offset})
}

func isISO2(code string) bool {
	if len(code) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

func matchLabels(rules []compiledRule, text string, limit int, fallback string) []string {
	out := make([]string, 0, limit)
	for _, r := range rules {
		if len(out) == limit {
			break
		}
		if r.re.MatchString(text) {
			out = append(out, r.label)
		}
	}
	if len(out) == 0 {
		return []string{fallback}
	}
	return out
}

func prepare(text string) string {
	return strings.ToLower(norm.NFC.String(text))
}

func compileRules(rules []Rule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := compilePatterns(r.Patterns)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Label, err)
		}
		if re == nil {
			continue
		}
		out = append(out, compiledRule{label: r.Label, re: re})
	}
	return out, nil
}

// compilePatterns собирает шаблоны в одно выражение с границами по буквам и цифрам Unicode.
// \b в RE2 учитывает только ASCII, поэтому границы заданы классами явно.
func compilePatterns(patterns []string) (*regexp.Regexp, error) {
	alts := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(norm.NFC.String(strings.TrimSpace(p)))
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "*") {
			alts = append(alts, regexp.QuoteMeta(strings.TrimSuffix(p, "*"))+`[\p{L}\p{N}]*`)
			continue
		}
		alts = append(alts, regexp.QuoteMeta(p))
	}
	if len(alts) == 0 {
		return nil, nil
	}
	return regexp.Compile(`(?:^|[^\p{L}\p{N}])(?:` + strings.Join(alts, "|") + `)(?:$|[^\p{L}\p{N}])`)
}
