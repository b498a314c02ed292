package filter

import (
	"strings"
	"time"

	"github.com/maine/latam_digest_bot/internal/config"
	"github.com/maine/latam_digest_bot/internal/news"
)

// Verdict - результат проверки новости.
type Verdict int

const (
	Eligible Verdict = iota
	RejectInvalid
	RejectSeen
	RejectSent
	RejectDuplicate
	RejectStale
	RejectIrrelevant
	RejectOffRegion
)

func (v Verdict) String() string {
	switch v {
	case Eligible:
		return "eligible"
	case RejectInvalid:
		return "invalid"
	case RejectSeen:
		return "seen"
	case RejectSent:
		return "sent"
	case RejectDuplicate:
		return "duplicate"
	case RejectStale:
		return "stale"
	case RejectIrrelevant:
		return "irrelevant"
	case RejectOffRegion:
		return "off_region"
	default:
		return "unknown"
	}
}

// Policy - правила отбора, применяемые к одной новости.
type Policy struct {
	// MaxAge - окно свежести; новость возраста ровно MaxAge ещё свежая. 0 отключает проверку.
	MaxAge time.Duration
	// UnknownDateFresh - считать ли новость без даты свежей.
	UnknownDateFresh bool
	RequireRelevance bool
	RequireRegion    bool
}

// PolicyFromConfig собирает Policy из настроек пайплайна.
func PolicyFromConfig(cfg config.Pipeline) Policy {
	return Policy{
		MaxAge:           time.Duration(cfg.FreshnessHours) * time.Hour,
		UnknownDateFresh: cfg.UnknownDatePolicy != config.UnknownDateStale,
		RequireRelevance: cfg.RelevanceRequired(),
		RequireRegion:    cfg.RequireRegionMention,
	}
}

// IsEligible - единственное место, где применяются правила отбора.
func IsEligible(item news.Item, state news.State, now time.Time, p Policy) Verdict {
	if strings.TrimSpace(item.ID) == "" || strings.TrimSpace(item.Title) == "" || strings.TrimSpace(item.URL) == "" {
		return RejectInvalid
	}
	if _, ok := state.Sent[item.ID]; ok {
		return RejectSent
	}
	if _, ok := state.Seen[item.ID]; ok {
		return RejectSeen
	}
	if !isFresh(item.PublishedAt, now, p) {
		return RejectStale
	}
	if p.RequireRelevance && !item.Relevant {
		return RejectIrrelevant
	}
	if p.RequireRegion && !item.RegionMatch {
		return RejectOffRegion
	}
	return Eligible
}

func isFresh(published *time.Time, now time.Time, p Policy) bool {
	if published == nil {
		return p.UnknownDateFresh
	}
	if p.MaxAge <= 0 {
		return true
	}
	// Даты из будущего (кривые часы источника) считаются свежими.
	return now.Sub(*published) <= p.MaxAge
}

// Stats - счётчики результатов фильтрации.
type Stats struct {
	Total    int
	Eligible int
	Rejected map[Verdict]int
}

// Filter реализует app.Filter.
type Filter struct {
	policy Policy
}

// New создаёт экземпляр фильтра.
func New(cfg config.Pipeline) *Filter {
	return &Filter{policy: PolicyFromConfig(cfg)}
}

// NewWithPolicy создаёт фильтр с явно заданной политикой.
func NewWithPolicy(p Policy) *Filter {
	return &Filter{policy: p}
}

// Apply возвращает подходящие новости в исходном порядке. Повтор id в пределах
// одного запуска отбрасывается, первая запись сохраняется.
func (f *Filter) Apply(items []news.Item, state news.State, now time.Time) ([]news.Item, Stats) {
	stats := Stats{Total: len(items), Rejected: make(map[Verdict]int)}
	batch := make(map[string]struct{}, len(items))
	out := make([]news.Item, 0, len(items))

	for _, item := range items {
		verdict := IsEligible(item, state, now, f.policy)
		if verdict == Eligible {
			if _, dup := batch[item.ID]; dup {
				verdict = RejectDuplicate
			}
		}
		if verdict != Eligible {
			stats.Rejected[verdict]++
			continue
		}
		batch[item.ID] = struct{}{}
		out = append(out, item)
	}

	stats.Eligible = len(out)
	return out, stats
}
