package state

import (
	"sort"
	"time"

	"github.com/maine/latam_digest_bot/internal/config"
	"github.com/maine/latam_digest_bot/internal/news"
)

// Retention задаёт, сколько хранятся идентификаторы.
type Retention struct {
	// Sent удаляется при возрасте >= Sent.
	Sent time.Duration
	// Seen удаляется при возрасте >= Seen.
	Seen time.Duration
	// SeenMin - минимальный возраст, раньше которого seen не удаляется ни по какому правилу.
	SeenMin time.Duration
	// SeenMax - мягкий предел числа записей seen.
	SeenMax int
}

// RetentionFromConfig переводит часы из конфигурации в длительности.
func RetentionFromConfig(cfg config.Retention) Retention {
	return Retention{
		Sent:    time.Duration(cfg.SentHours) * time.Hour,
		Seen:    time.Duration(cfg.SeenHours) * time.Hour,
		SeenMin: time.Duration(cfg.SeenMinHours) * time.Hour,
		SeenMax: cfg.SeenMaxEntries,
	}
}

// Apply удаляет устаревшие записи из st на момент now. Возвращает число удалённых.
func (r Retention) Apply(st *news.State, now time.Time) int {
	removed := 0

	if r.Sent > 0 {
		for id, at := range st.Sent {
			if now.Sub(at) >= r.Sent {
				delete(st.Sent, id)
				removed++
			}
		}
	}

	seenTTL := r.Seen
	if seenTTL > 0 && seenTTL < r.SeenMin {
		seenTTL = r.SeenMin
	}
	if seenTTL > 0 {
		for id, at := range st.Seen {
			if now.Sub(at) >= seenTTL {
				delete(st.Seen, id)
				removed++
			}
		}
	}

	if r.SeenMax > 0 && len(st.Seen) > r.SeenMax {
		type entry struct {
			id string
			at time.Time
		}
		entries := make([]entry, 0, len(st.Seen))
		for id, at := range st.Seen {
			entries = append(entries, entry{id: id, at: at})
		}
		sort.Slice(entries, func(i, j int) bool {
			if !entries[i].at.Equal(entries[j].at) {
				return entries[i].at.After(entries[j].at)
			}
			return entries[i].id < entries[j].id
		})
		for _, e := range entries[r.SeenMax:] {
			if now.Sub(e.at) < r.SeenMin {
				continue
			}
			delete(st.Seen, e.id)
			removed++
		}
	}

	return removed
}

// merge добавляет записи в st, сохраняя более раннее время для уже известных id.
func merge(st *news.State, seen, sent map[string]time.Time) {
	if st.Seen == nil {
		st.Seen = make(map[string]time.Time)
	}
	if st.Sent == nil {
		st.Sent = make(map[string]time.Time)
	}
	mergeInto(st.Seen, seen)
	mergeInto(st.Sent, sent)
}

func mergeInto(dst, src map[string]time.Time) {
	for id, at := range src {
		at = at.UTC()
		if prev, ok := dst[id]; ok && !at.Before(prev) {
			continue
		}
		dst[id] = at
	}
}
