package news

import "time"

// RawEntry описывает запись сразу после получения из ленты. Живёт только в рамках одного запуска.
type RawEntry struct {
	Source      string     `json:"source"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Categories  []string   `json:"categories,omitempty"`
	CountryHint string     `json:"country_hint,omitempty"`
	Bucket      string     `json:"bucket,omitempty"`
}

// SourceReport - итог загрузки одной ленты.
type SourceReport struct {
	Source  string
	Entries int
	Err     error
}

// Batch - результат опроса всех лент. Reports идут в порядке конфигурации.
type Batch struct {
	Entries []RawEntry
	Reports []SourceReport
}

// Failed возвращает число лент, загрузка которых завершилась ошибкой.
func (b Batch) Failed() int {
	n := 0
	for _, r := range b.Reports {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// AllFailed сообщает, что опрошена хотя бы одна лента и ни одна не ответила.
func (b Batch) AllFailed() bool {
	return len(b.Reports) > 0 && b.Failed() == len(b.Reports)
}

// Classification - производные метки новости.
type Classification struct {
	Sectors []string `json:"sectors"`
	Events  []string `json:"events"`
	Country string   `json:"country"`
}

// HasEvent сообщает, присвоена ли новости метка события.
func (c Classification) HasEvent(label string) bool {
	for _, e := range c.Events {
		if e == label {
			return true
		}
	}
	return false
}

// Enrichment - необязательный результат генеративного обогащения.
type Enrichment struct {
	Summary string `json:"summary,omitempty"`
	Insight string `json:"insight,omitempty"`
}

// Item - идентифицированная и классифицированная новость.
// После создания в рамках запуска не изменяется (обогащение возвращает копию).
type Item struct {
	ID             string         `json:"id"`
	Source         string         `json:"source"`
	CountryHint    string         `json:"country_hint,omitempty"`
	Bucket         string         `json:"bucket,omitempty"`
	Title          string         `json:"title"`
	URL            string         `json:"url"`
	PublishedAt    *time.Time     `json:"published_at,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	Categories     []string       `json:"categories,omitempty"`
	Classification Classification `json:"classification"`
	Score          int            `json:"score"`
	Relevant       bool           `json:"relevant"`
	RegionMatch    bool           `json:"region_match"`
	Enrichment     *Enrichment    `json:"enrichment,omitempty"`
}

// Section - одна секция дайджеста (например, funding или startups).
type Section struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Items []Item `json:"items"`
}

// Digest - итоговый набор секций перед публикацией.
type Digest struct {
	GeneratedAt time.Time `json:"generated_at"`
	Sections    []Section `json:"sections"`
}

// Items возвращает все новости дайджеста в порядке секций.
func (d Digest) Items() []Item {
	var out []Item
	for _, s := range d.Sections {
		out = append(out, s.Items...)
	}
	return out
}

// Empty сообщает, что в дайджесте нет ни одной новости.
func (d Digest) Empty() bool {
	for _, s := range d.Sections {
		if len(s.Items) > 0 {
			return false
		}
	}
	return true
}

// Post - отрендеренный дайджест: полный текст сообщения и короткая подпись к фото.
// Вариант может вместить не все новости дайджеста, поэтому для каждого
// перечислены id, которые в него попали.
type Post struct {
	Text       string
	TextIDs    []string
	Caption    string
	CaptionIDs []string
	// LeadURL - ссылка на главную новость; по ней ищется картинка для фото.
	LeadURL string
}

// Empty сообщает, что ни одна новость не поместилась ни в один вариант.
func (p Post) Empty() bool {
	return len(p.TextIDs) == 0 && len(p.CaptionIDs) == 0
}

// State хранит идентификаторы просмотренных и отправленных новостей.
// Время - момент первого наблюдения / первой публикации.
type State struct {
	Seen      map[string]time.Time `json:"seen"`
	Sent      map[string]time.Time `json:"sent"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// NewState создаёт пустое состояние с инициализированными картами.
func NewState() State {
	return State{
		Seen: make(map[string]time.Time),
		Sent: make(map[string]time.Time),
	}
}

// Known сообщает, встречался ли id раньше (просмотрен или отправлен).
func (s State) Known(id string) bool {
	if _, ok := s.Seen[id]; ok {
		return true
	}
	_, ok := s.Sent[id]
	return ok
}

// Clone возвращает глубокую копию состояния.
func (s State) Clone() State {
	out := State{
		Seen:      make(map[string]time.Time, len(s.Seen)),
		Sent:      make(map[string]time.Time, len(s.Sent)),
		UpdatedAt: s.UpdatedAt,
	}
	for k, v := range s.Seen {
		out.Seen[k] = v
	}
	for k, v := range s.Sent {
		out.Sent[k] = v
	}
	return out
}
