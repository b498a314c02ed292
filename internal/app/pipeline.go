package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/maine/latam_digest_bot/internal/filter"
	"github.com/maine/latam_digest_bot/internal/news"
	"github.com/maine/latam_digest_bot/internal/state"
)

var (
	// ErrNotConfigured возвращается, когда пайплайн запущен без обязательных зависимостей.
	ErrNotConfigured = errors.New("pipeline dependencies not configured")
)

// Clock определяет источник времени (удобно подменять в тестах).
type Clock func() time.Time

// SourceCollector агрегирует записи из подключённых лент.
type SourceCollector interface {
	Collect(ctx context.Context) (news.Batch, error)
}

// Filter отвечает за отсев старых, уже виденных или нерелевантных новостей.
type Filter interface {
	Apply(items []news.Item, st news.State, now time.Time) ([]news.Item, filter.Stats)
}

// Selector раскладывает подходящие новости по секциям с учётом лимитов.
type Selector interface {
	SelectBuckets(items []news.Item) []news.Section
}

// Enricher дополняет выбранные новости. Ошибки обрабатывает сам, возвращая исходные данные.
type Enricher interface {
	Enrich(ctx context.Context, items []news.Item) []news.Item
}

// Formatter превращает дайджест в текст для публикации.
type Formatter interface {
	Render(d news.Digest) news.Post
}

// Publisher публикует дайджест. Возвращает id новостей, которые вошли в
// доставленное сообщение; nil-ошибка означает подтверждённую доставку.
type Publisher interface {
	Publish(ctx context.Context, post news.Post) ([]string, error)
}

// StateStore хранит множества seen и sent.
type StateStore interface {
	Load(ctx context.Context) (news.State, error)
	Commit(ctx context.Context, seen, sent map[string]time.Time) error
	Prune(ctx context.Context, now time.Time) error
}

// DatasetStore хранит последний собранный пул новостей.
type DatasetStore interface {
	Save(ctx context.Context, ds state.Dataset) (bool, error)
	Load(ctx context.Context) (state.Dataset, error)
}

// PipelineDeps перечисляет зависимости пайплайна.
type PipelineDeps struct {
	Collector  SourceCollector
	Builder    *ItemBuilder
	Filter     Filter
	Selector   Selector
	Enricher   Enricher
	Formatter  Formatter
	Publisher  Publisher
	StateStore StateStore
	Datasets   DatasetStore
	Clock      Clock
	Logger     *slog.Logger
	// DryRun рендерит дайджест без публикации и фиксации состояния.
	DryRun bool
}

// Pipeline инкапсулирует один проход: сбор → разметка → фильтр → выбор → публикация → фиксация.
type Pipeline struct {
	collector SourceCollector
	builder   *ItemBuilder
	filter    Filter
	selector  Selector
	enricher  Enricher
	formatter Formatter
	publisher Publisher
	store     StateStore
	datasets  DatasetStore
	clock     Clock
	log       *slog.Logger
	dryRun    bool
}

// NewPipeline создаёт новый экземпляр пайплайна.
func NewPipeline(deps PipelineDeps) *Pipeline {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Pipeline{
		collector: deps.Collector,
		builder:   deps.Builder,
		filter:    deps.Filter,
		selector:  deps.Selector,
		enricher:  deps.Enricher,
		formatter: deps.Formatter,
		publisher: deps.Publisher,
		store:     deps.StateStore,
		datasets:  deps.Datasets,
		clock:     clock,
		log:       log,
		dryRun:    deps.DryRun,
	}
}

// Outcome - чем закончился запуск.
type Outcome string

const (
	OutcomePublished  Outcome = "published"
	OutcomeNoEntries  Outcome = "no_entries"
	OutcomeNoSources  Outcome = "all_sources_failed"
	OutcomeNoEligible Outcome = "no_eligible"
	OutcomeNoDataset  Outcome = "no_dataset"
	OutcomeDryRun     Outcome = "dry_run"
	OutcomeCollected  Outcome = "collected"
	OutcomePruned     Outcome = "pruned"
)

// Result - счётчики одного запуска.
type Result struct {
	RunID         string
	Outcome       Outcome
	Sources       int
	FailedSources int
	Entries       int
	Eligible      int
	Rejected      map[string]int
	Selected      int
	// Published - сколько выбранных новостей поместилось в отправленное сообщение.
	Published int
	// Committed - состояние записано после подтверждённой публикации.
	Committed bool
	// DatasetWritten - снимок пула перезаписан.
	DatasetWritten bool
	Post           news.Post
}

type mode int

const (
	modeRun mode = iota
	modeCollect
	modeSend
	modePrune
)

// Run исполняет полный цикл: сбор, разметка, отбор, публикация и фиксация.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	res, log := p.begin()
	if err := p.validateDeps(modeRun); err != nil {
		return res, err
	}

	// Повреждённое состояние останавливает запуск до обращения к сети.
	st, err := p.store.Load(ctx)
	if err != nil {
		return res, fmt.Errorf("load state: %w", err)
	}

	items, done, err := p.fetch(ctx, log, &res)
	if err != nil || done {
		return res, err
	}

	return p.deliver(ctx, log, res, st, items)
}

// Collect собирает и размечает новости и сохраняет снимок пула. Состояние не меняется.
func (p *Pipeline) Collect(ctx context.Context) (Result, error) {
	res, log := p.begin()
	if err := p.validateDeps(modeCollect); err != nil {
		return res, err
	}

	items, done, err := p.fetch(ctx, log, &res)
	if err != nil || done {
		return res, err
	}

	valid := make([]news.Item, 0, len(items))
	for _, it := range items {
		if it.ID != "" {
			valid = append(valid, it)
		}
	}

	written, err := p.datasets.Save(ctx, state.Dataset{
		CollectedAt: p.clock().UTC(),
		RunID:       res.RunID,
		Items:       valid,
	})
	if err != nil {
		return res, fmt.Errorf("save dataset: %w", err)
	}
	res.DatasetWritten = written
	res.Outcome = OutcomeCollected
	log.Info("dataset collected", "items", len(valid), "written", written)
	return res, nil
}

// SendFromDataset публикует дайджест из последнего снимка пула.
// Отсутствующий снимок - не ошибка: публиковать нечего.
func (p *Pipeline) SendFromDataset(ctx context.Context) (Result, error) {
	res, log := p.begin()
	if err := p.validateDeps(modeSend); err != nil {
		return res, err
	}

	st, err := p.store.Load(ctx)
	if err != nil {
		return res, fmt.Errorf("load state: %w", err)
	}

	ds, err := p.datasets.Load(ctx)
	if errors.Is(err, state.ErrNoDataset) {
		res.Outcome = OutcomeNoDataset
		log.Info("no dataset to send")
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("load dataset: %w", err)
	}
	res.Entries = len(ds.Items)
	log.Info("dataset loaded", "items", len(ds.Items), "collected_at", ds.CollectedAt, "collect_run_id", ds.RunID)

	return p.deliver(ctx, log, res, st, ds.Items)
}

// Prune применяет политику хранения к состоянию без публикации.
func (p *Pipeline) Prune(ctx context.Context) (Result, error) {
	res, log := p.begin()
	if err := p.validateDeps(modePrune); err != nil {
		return res, err
	}
	if err := p.store.Prune(ctx, p.clock().UTC()); err != nil {
		return res, fmt.Errorf("prune state: %w", err)
	}
	res.Outcome = OutcomePruned
	log.Info("state pruned")
	return res, nil
}

func (p *Pipeline) begin() (Result, *slog.Logger) {
	res := Result{RunID: uuid.NewString(), Rejected: map[string]int{}}
	return res, p.log.With("run_id", res.RunID)
}

// fetch собирает записи и размечает их. done=true означает, что публиковать нечего.
func (p *Pipeline) fetch(ctx context.Context, log *slog.Logger, res *Result) ([]news.Item, bool, error) {
	log.Info("stage", "name", "fetching")
	batch, err := p.collector.Collect(ctx)
	if err != nil {
		return nil, true, fmt.Errorf("collect: %w", err)
	}

	res.Sources = len(batch.Reports)
	res.FailedSources = batch.Failed()
	res.Entries = len(batch.Entries)
	for _, r := range batch.Reports {
		if r.Err != nil {
			log.Warn("source failed", "source", r.Source, "error", r.Err)
		}
	}
	log.Info("fetched", "sources", res.Sources, "failed", res.FailedSources, "entries", res.Entries)

	// Полный отказ сбора не ошибка запуска: состояние сохраняется, следующий запуск повторит.
	if batch.AllFailed() {
		res.Outcome = OutcomeNoSources
		log.Error("all sources failed, nothing to do", "failed", res.FailedSources)
		return nil, true, nil
	}
	if len(batch.Entries) == 0 {
		res.Outcome = OutcomeNoEntries
		log.Info("no entries fetched, nothing to do")
		return nil, true, nil
	}

	log.Info("stage", "name", "classifying")
	return p.builder.Build(batch.Entries), false, nil
}

// deliver выполняет отбор, публикацию и фиксацию для готового пула.
func (p *Pipeline) deliver(ctx context.Context, log *slog.Logger, res Result, st news.State, items []news.Item) (Result, error) {
	now := p.clock().UTC()

	log.Info("stage", "name", "filtering")
	eligible, stats := p.filter.Apply(items, st, now)
	res.Eligible = stats.Eligible
	for v, n := range stats.Rejected {
		res.Rejected[v.String()] = n
	}
	log.Info("filtered", "total", stats.Total, "eligible", stats.Eligible, "rejected", res.Rejected)

	if len(eligible) == 0 {
		res.Outcome = OutcomeNoEligible
		log.Info("no eligible items, nothing to publish")
		return res, nil
	}

	log.Info("stage", "name", "selecting")
	digest := news.Digest{GeneratedAt: now, Sections: p.selector.SelectBuckets(eligible)}
	if digest.Empty() {
		res.Outcome = OutcomeNoEligible
		log.Info("no items matched any section")
		return res, nil
	}
	for _, s := range digest.Sections {
		log.Info("section selected", "section", s.Name, "items", len(s.Items))
	}

	digest = p.enrich(ctx, digest)
	selected := digest.Items()
	res.Selected = len(selected)

	post := p.formatter.Render(digest)
	res.Post = post
	if post.Empty() {
		res.Outcome = OutcomeNoEligible
		log.Warn("no selected item fits into a telegram message", "selected", len(selected))
		return res, nil
	}

	if p.dryRun {
		res.Outcome = OutcomeDryRun
		log.Info("dry run, digest not published", "selected", len(selected))
		return res, nil
	}

	log.Info("stage", "name", "publishing")
	delivered, err := p.publisher.Publish(ctx, post)
	if err != nil {
		return res, fmt.Errorf("publish: %w", err)
	}
	res.Published = len(delivered)
	if deferred := len(selected) - len(delivered); deferred > 0 {
		log.Info("items did not fit into the message, left for the next run", "deferred", deferred)
	}

	// Фиксируются только доставленные новости: не поместившиеся остаются доступными.
	log.Info("stage", "name", "committing")
	marks := make(map[string]time.Time, len(delivered))
	for _, id := range delivered {
		marks[id] = now
	}
	if err := p.store.Commit(ctx, marks, marks); err != nil {
		return res, fmt.Errorf("commit state: %w", err)
	}
	res.Committed = true
	res.Outcome = OutcomePublished
	log.Info("run complete", "published", len(delivered))
	return res, nil
}

// enrich обогащает только выбранные новости и раскладывает их обратно по секциям.
func (p *Pipeline) enrich(ctx context.Context, d news.Digest) news.Digest {
	if p.enricher == nil {
		return d
	}
	enriched := p.enricher.Enrich(ctx, d.Items())
	byID := make(map[string]news.Item, len(enriched))
	for _, it := range enriched {
		byID[it.ID] = it
	}

	sections := make([]news.Section, 0, len(d.Sections))
	for _, s := range d.Sections {
		out := s
		out.Items = make([]news.Item, 0, len(s.Items))
		for _, it := range s.Items {
			if e, ok := byID[it.ID]; ok {
				it = e
			}
			out.Items = append(out.Items, it)
		}
		sections = append(sections, out)
	}
	d.Sections = sections
	return d
}

func (p *Pipeline) validateDeps(m mode) error {
	// enricher опционален: без него новости публикуются с детерминированными метками
	switch m {
	case modePrune:
		if p.store == nil {
			return ErrNotConfigured
		}
		return nil
	case modeCollect:
		if p.collector == nil || p.builder == nil || p.datasets == nil {
			return ErrNotConfigured
		}
		return nil
	}

	switch {
	case p.filter == nil,
		p.selector == nil,
		p.formatter == nil,
		p.store == nil,
		p.publisher == nil && !p.dryRun:
		return ErrNotConfigured
	case m == modeRun && (p.collector == nil || p.builder == nil),
		m == modeSend && p.datasets == nil:
		return ErrNotConfigured
	default:
		return nil
	}
}
