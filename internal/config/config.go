package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Политики для записей без даты публикации.
const (
	UnknownDateFresh = "fresh"
	UnknownDateStale = "stale"
)

// Бэкенды хранилища состояния.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

type (
	// Root объединяет все конфигурационные блоки configs/pipeline.yaml.
	Root struct {
		Pipeline  Pipeline  `yaml:"pipeline"`
		Buckets   []Bucket  `yaml:"buckets"`
		Retention Retention `yaml:"retention"`
		State     State     `yaml:"state"`
		Fetch     Fetch     `yaml:"fetch"`
		Gemini    Gemini    `yaml:"gemini"`
		Telegram  Telegram  `yaml:"telegram"`
	}

	// Pipeline описывает правила отбора новостей.
	Pipeline struct {
		FreshnessHours       int    `yaml:"freshness_hours"`
		UnknownDatePolicy    string `yaml:"unknown_date_policy"`
		RequireRelevance     *bool  `yaml:"require_relevance"`
		RequireRegionMention bool   `yaml:"require_region_mention"`
		TitleInFingerprint   bool   `yaml:"title_in_fingerprint"`
		SummaryMaxRunes      int    `yaml:"summary_max_runes"`
		MaxCategories        int    `yaml:"max_categories"`
	}

	// Bucket - секция дайджеста. Пустые Events и SourceBuckets означают «любая новость».
	Bucket struct {
		Name          string   `yaml:"name"`
		Title         string   `yaml:"title"`
		Limit         int      `yaml:"limit"`
		Events        []string `yaml:"events,omitempty"`
		SourceBuckets []string `yaml:"source_buckets,omitempty"`
	}

	// Retention задаёт сроки хранения идентификаторов.
	Retention struct {
		SentHours      int `yaml:"sent_hours"`
		SeenHours      int `yaml:"seen_hours"`
		SeenMinHours   int `yaml:"seen_min_hours"`
		SeenMaxEntries int `yaml:"seen_max_entries"`
	}

	// State описывает расположение файлов состояния.
	State struct {
		Backend     string `yaml:"backend"`
		Path        string `yaml:"path"`
		DatasetPath string `yaml:"dataset_path"`
	}

	// Fetch управляет загрузкой лент.
	Fetch struct {
		Concurrency       int    `yaml:"concurrency"`
		TimeoutSeconds    int    `yaml:"timeout_seconds"`
		MaxEntriesPerFeed int    `yaml:"max_entries_per_feed"`
		UserAgent         string `yaml:"user_agent"`
	}

	// Gemini содержит настройки обогащения.
	Gemini struct {
		Enabled        bool   `yaml:"enabled"`
		Model          string `yaml:"model"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	}

	// Telegram содержит настройки публикации.
	Telegram struct {
		HeaderPhotoURL string `yaml:"header_photo_url,omitempty"`
		// LeadImage включает фото из og:image главной новости.
		LeadImage   bool   `yaml:"lead_image"`
		MaxRetries  int    `yaml:"max_retries"`
		DigestTitle string `yaml:"digest_title"`
	}

	// SourcesRoot описывает список лент configs/sources.yaml.
	SourcesRoot struct {
		Sources []Source `yaml:"sources"`
	}

	// Source - одна RSS/Atom-лента.
	Source struct {
		Name     string `yaml:"name"`
		URL      string `yaml:"url"`
		Country  string `yaml:"country,omitempty"`
		Bucket   string `yaml:"bucket,omitempty"`
		Disabled bool   `yaml:"disabled,omitempty"`
	}
)

// Default возвращает конфигурацию со значениями по умолчанию.
func Default() Root {
	var cfg Root
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults заполняет незаданные поля.
func (r *Root) ApplyDefaults() {
	p := &r.Pipeline
	if p.FreshnessHours <= 0 {
		p.FreshnessHours = 48
	}
	if p.UnknownDatePolicy == "" {
		p.UnknownDatePolicy = UnknownDateFresh
	}
	if p.RequireRelevance == nil {
		v := true
		p.RequireRelevance = &v
	}
	if p.SummaryMaxRunes <= 0 {
		p.SummaryMaxRunes = 600
	}
	if p.MaxCategories <= 0 {
		p.MaxCategories = 8
	}

	if len(r.Buckets) == 0 {
		r.Buckets = []Bucket{
			{Name: "funding", Title: "💰 Funding", Limit: 2, Events: []string{"Funding"}, SourceBuckets: []string{"funding"}},
			{Name: "startups", Title: "🚀 Startup news", Limit: 2},
		}
	}
	for i := range r.Buckets {
		if r.Buckets[i].Title == "" {
			r.Buckets[i].Title = r.Buckets[i].Name
		}
	}

	ret := &r.Retention
	if ret.SentHours <= 0 {
		ret.SentHours = 48
	}
	if ret.SeenHours <= 0 {
		ret.SeenHours = 720
	}
	if ret.SeenMinHours <= 0 {
		ret.SeenMinHours = 72
	}
	if ret.SeenMaxEntries <= 0 {
		ret.SeenMaxEntries = 5000
	}

	st := &r.State
	if st.Backend == "" {
		st.Backend = BackendFile
	}
	if st.Path == "" {
		if st.Backend == BackendSQLite {
			st.Path = "data/state.db"
		} else {
			st.Path = "data/state.json"
		}
	}
	if st.DatasetPath == "" {
		st.DatasetPath = "data/dataset.json"
	}

	f := &r.Fetch
	if f.Concurrency <= 0 {
		f.Concurrency = 4
	}
	if f.TimeoutSeconds <= 0 {
		f.TimeoutSeconds = 20
	}
	if f.MaxEntriesPerFeed <= 0 {
		f.MaxEntriesPerFeed = 20
	}
	if f.UserAgent == "" {
		f.UserAgent = "latam-startup-bot/1.0"
	}

	if r.Gemini.Model == "" {
		r.Gemini.Model = "gemini-2.0-flash"
	}
	if r.Gemini.TimeoutSeconds <= 0 {
		r.Gemini.TimeoutSeconds = 30
	}

	if r.Telegram.MaxRetries <= 0 {
		r.Telegram.MaxRetries = 3
	}
	if r.Telegram.DigestTitle == "" {
		r.Telegram.DigestTitle = "LATAM Tech Digest"
	}
}

// Validate проверяет согласованность конфигурации после ApplyDefaults.
func (r Root) Validate() error {
	var errs []error

	switch r.Pipeline.UnknownDatePolicy {
	case UnknownDateFresh, UnknownDateStale:
	default:
		errs = append(errs, fmt.Errorf("pipeline.unknown_date_policy: unsupported value %q", r.Pipeline.UnknownDatePolicy))
	}

	// seen хранится не меньше окна свежести.
	if r.Retention.SeenMinHours < r.Pipeline.FreshnessHours {
		errs = append(errs, fmt.Errorf("retention.seen_min_hours (%d) must be >= pipeline.freshness_hours (%d)",
			r.Retention.SeenMinHours, r.Pipeline.FreshnessHours))
	}
	if r.Retention.SeenHours < r.Retention.SeenMinHours {
		errs = append(errs, fmt.Errorf("retention.seen_hours (%d) must be >= retention.seen_min_hours (%d)",
			r.Retention.SeenHours, r.Retention.SeenMinHours))
	}

	names := make(map[string]struct{}, len(r.Buckets))
	for i, b := range r.Buckets {
		if strings.TrimSpace(b.Name) == "" {
			errs = append(errs, fmt.Errorf("buckets[%d]: name is required", i))
		}
		if _, dup := names[b.Name]; dup {
			errs = append(errs, fmt.Errorf("buckets[%d]: duplicate name %q", i, b.Name))
		}
		names[b.Name] = struct{}{}
		if b.Limit <= 0 {
			errs = append(errs, fmt.Errorf("buckets[%d]: limit must be positive", i))
		}
	}

	switch r.State.Backend {
	case BackendFile, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("state.backend: unsupported value %q", r.State.Backend))
	}

	return errors.Join(errs...)
}

// RelevanceRequired сообщает, включён ли фильтр стартап-релевантности.
func (p Pipeline) RelevanceRequired() bool {
	return p.RequireRelevance == nil || *p.RequireRelevance
}

// LoadRoot читает основной файл конфигурации, применяет значения по умолчанию и валидирует.
func LoadRoot(path string) (Root, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Root{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Root
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Root{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Root{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadSources читает конфиг со списком лент. Отключённые ленты отбрасываются;
// если не осталось ни одной, возвращается ErrNotConfigured.
func LoadSources(path string) (SourcesRoot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SourcesRoot{}, fmt.Errorf("read sources config: %w", err)
	}

	var cfg SourcesRoot
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return SourcesRoot{}, fmt.Errorf("unmarshal sources config: %w", err)
	}

	active := cfg.Sources[:0]
	for i, src := range cfg.Sources {
		if src.Disabled {
			continue
		}
		if strings.TrimSpace(src.Name) == "" || strings.TrimSpace(src.URL) == "" {
			return SourcesRoot{}, fmt.Errorf("sources[%d]: name and url are required", i)
		}
		active = append(active, src)
	}
	if len(active) == 0 {
		return SourcesRoot{}, fmt.Errorf("%w: no enabled sources in %s", ErrNotConfigured, path)
	}
	cfg.Sources = active
	return cfg, nil
}
