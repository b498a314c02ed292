package formatter

import (
	"fmt"
	"html"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/maine/latam_digest_bot/internal/classify"
	"github.com/maine/latam_digest_bot/internal/config"
	"github.com/maine/latam_digest_bot/internal/news"
)

const (
	// telegramMaxMessageLength - максимальная длина сообщения в Telegram (4096 символов)
	telegramMaxMessageLength = 4096
	// telegramMaxCaptionLength - максимальная длина подписи к фото
	telegramMaxCaptionLength = 1024
	// ellipsis - добавляется, если часть новостей не поместилась
	ellipsis = "…"
	// summaryMaxRunes - длина описания в полном тексте
	summaryMaxRunes = 280
	// titleMaxRunes - длина заголовка в блоке новости
	titleMaxRunes = 200
)

// buenosAires - время в шапке дайджеста (UTC-3, без перехода на летнее время).
var buenosAires = time.FixedZone("BA", -3*60*60)

// Formatter реализует app.Formatter: рендерит дайджест в HTML для Telegram.
type Formatter struct {
	title string
}

// NewFormatter создаёт новый экземпляр форматтера.
func NewFormatter(cfg config.Telegram) *Formatter {
	title := strings.TrimSpace(cfg.DigestTitle)
	if title == "" {
		title = "LATAM Tech Digest"
	}
	return &Formatter{title: title}
}

// Render реализует app.Formatter.
// Text содержит описания и теги, Caption - компактный вариант для подписи к фото.
// TextIDs и CaptionIDs перечисляют новости, которые поместились в каждый вариант.
func (f *Formatter) Render(d news.Digest) news.Post {
	if d.Empty() {
		return news.Post{}
	}
	post := news.Post{LeadURL: d.Items()[0].URL}
	post.Text, post.TextIDs = f.build(d, true, telegramMaxMessageLength)
	post.Caption, post.CaptionIDs = f.build(d, false, telegramMaxCaptionLength)
	return post
}

// build собирает блоки и добавляет их, пока помещаются в limit.
// Новость никогда не обрезается посередине: HTML-разметка должна оставаться валидной.
// Если не поместилась ни одна новость, вариант пустой.
func (f *Formatter) build(d news.Digest, full bool, limit int) (string, []string) {
	head := f.header(d)
	reserve := utf8.RuneCountInString("\n" + ellipsis)

	var sb strings.Builder
	sb.WriteString(head)
	used := utf8.RuneCountInString(head)
	truncated := false
	var ids []string

sections:
	for _, s := range d.Sections {
		if len(s.Items) == 0 {
			continue
		}
		sectionHead := "\n\n" + sectionTitle(s)
		for i, it := range s.Items {
			block := "\n" + itemBlock(it, full)
			// заголовок секции идёт вместе с первой новостью
			if i == 0 {
				block = sectionHead + block
			}
			n := utf8.RuneCountInString(block)
			if used+n+reserve > limit {
				truncated = true
				break sections
			}
			sb.WriteString(block)
			used += n
			ids = append(ids, it.ID)
		}
	}

	if len(ids) == 0 {
		return "", nil
	}
	if truncated {
		sb.WriteString("\n" + ellipsis)
	}
	return sb.String(), ids
}

func (f *Formatter) header(d news.Digest) string {
	stamp := d.GeneratedAt.In(buenosAires).Format("02 Jan · 15:04 BA")
	head := fmt.Sprintf("<b>%s</b> · %s", html.EscapeString(f.title), stamp)

	items := d.Items()
	if len(items) > 0 {
		head += "\nГлавное: " + html.EscapeString(truncate(items[0].Title, titleMaxRunes))
	}
	return head
}

func sectionTitle(s news.Section) string {
	title := s.Title
	if title == "" {
		title = s.Name
	}
	return "<b>" + html.EscapeString(title) + "</b>"
}

func itemBlock(it news.Item, full bool) string {
	var sb strings.Builder

	country := it.Classification.Country
	if flag := classify.Flag(country); flag != "" {
		sb.WriteString(flag + " ")
	}
	fmt.Fprintf(&sb, "• <a href=\"%s\">%s</a>", html.EscapeString(it.URL), html.EscapeString(truncate(it.Title, titleMaxRunes)))
	fmt.Fprintf(&sb, "\n  <i>%s</i>", html.EscapeString(meta(it)))

	if !full {
		return sb.String()
	}

	if summary := itemSummary(it); summary != "" {
		sb.WriteString("\n  " + html.EscapeString(summary))
	}
	if it.Enrichment != nil && it.Enrichment.Insight != "" {
		sb.WriteString("\n  💡 " + html.EscapeString(it.Enrichment.Insight))
	}
	if tags := Hashtags(it.Classification); tags != "" {
		sb.WriteString("\n  " + tags)
	}
	return sb.String()
}

// meta - строка «источник · страна».
func meta(it news.Item) string {
	parts := []string{it.Source}
	if c := it.Classification.Country; c != "" {
		parts = append(parts, c)
	}
	return strings.Join(parts, " · ")
}

func itemSummary(it news.Item) string {
	if it.Enrichment != nil && it.Enrichment.Summary != "" {
		return it.Enrichment.Summary
	}
	return truncate(it.Summary, summaryMaxRunes)
}

// Hashtags возвращает теги секторов и событий: "#FinTech #Funding".
// Символы, недопустимые в хештегах Telegram, удаляются ("M&A" → "#MA").
func Hashtags(c news.Classification) string {
	var tags []string
	seen := make(map[string]struct{})
	for _, label := range append(append([]string{}, c.Sectors...), c.Events...) {
		tag := hashtag(label)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, "#"+tag)
	}
	return strings.Join(tags, " ")
}

func hashtag(label string) string {
	var sb strings.Builder
	for _, r := range label {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max-1])) + ellipsis
}
