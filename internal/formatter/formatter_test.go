package formatter

import (
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/maine/latam_digest_bot/internal/config"
	"github.com/maine/latam_digest_bot/internal/news"
)

var generatedAt = time.Date(2026, 10, 15, 12, 30, 0, 0, time.UTC)

func fundingItem() news.Item {
	return news.Item{
		ID:      "f1",
		Source:  "Contxto",
		Title:   "Kapital <raises> $20M",
		URL:     "https://example.com/a?x=1&y=2",
		Summary: "Mexican fintech closes a Series B.",
		Classification: news.Classification{
			Sectors: []string{"FinTech"},
			Events:  []string{"Funding", "M&A"},
			Country: "MX",
		},
		Enrichment: &news.Enrichment{Summary: "Мексиканский финтех привлёк раунд B.", Insight: "Рынок кредитования растёт."},
	}
}

func startupItem() news.Item {
	return news.Item{
		ID:      "s1",
		Source:  "LAVCA",
		Title:   "Regional accelerator opens applications",
		URL:     "https://example.com/b",
		Summary: "Program for early-stage founders.",
		Classification: news.Classification{
			Sectors: []string{"Tech"},
			Events:  []string{"News"},
			Country: "LATAM",
		},
	}
}

func TestFormatter_Render(t *testing.T) {
	f := NewFormatter(config.Telegram{})
	d := news.Digest{
		GeneratedAt: generatedAt,
		Sections: []news.Section{
			{Name: "funding", Title: "💰 Funding", Items: []news.Item{fundingItem()}},
			{Name: "startups", Title: "🚀 Startup news", Items: []news.Item{startupItem()}},
		},
	}

	post := f.Render(d)

	wantText := []string{
		"<b>LATAM Tech Digest</b> · 15 Oct · 09:30 BA",
		"Главное: Kapital &lt;raises&gt; $20M",
		"<b>💰 Funding</b>",
		"🇲🇽 • <a href=\"https://example.com/a?x=1&amp;y=2\">Kapital &lt;raises&gt; $20M</a>",
		"<i>Contxto · MX</i>",
		"Мексиканский финтех привлёк раунд B.",
		"💡 Рынок кредитования растёт.",
		"#FinTech #Funding #MA",
		"<b>🚀 Startup news</b>",
		"Program for early-stage founders.",
		"#Tech #News",
	}
	for _, w := range wantText {
		if !strings.Contains(post.Text, w) {
			t.Errorf("Text missing %q\n%s", w, post.Text)
		}
	}
	if strings.Index(post.Text, "Funding</b>") > strings.Index(post.Text, "Startup news") {
		t.Errorf("sections out of order")
	}

	if strings.Contains(post.Caption, "💡") || strings.Contains(post.Caption, "#FinTech") {
		t.Errorf("Caption should be compact:\n%s", post.Caption)
	}
	if !strings.Contains(post.Caption, "<i>LAVCA · LATAM</i>") {
		t.Errorf("Caption missing item meta:\n%s", post.Caption)
	}

	if !slices.Equal(post.TextIDs, []string{"f1", "s1"}) || !slices.Equal(post.CaptionIDs, []string{"f1", "s1"}) {
		t.Errorf("TextIDs = %v, CaptionIDs = %v", post.TextIDs, post.CaptionIDs)
	}
	if post.LeadURL != "https://example.com/a?x=1&y=2" {
		t.Errorf("LeadURL = %q", post.LeadURL)
	}
}

func TestFormatter_EmptyDigest(t *testing.T) {
	f := NewFormatter(config.Telegram{DigestTitle: "Custom"})
	post := f.Render(news.Digest{GeneratedAt: generatedAt, Sections: []news.Section{{Name: "funding"}}})
	if post.Text != "" || post.Caption != "" {
		t.Errorf("Render() on empty digest = %+v", post)
	}
}

func TestFormatter_Limits(t *testing.T) {
	f := NewFormatter(config.Telegram{})

	var items []news.Item
	for i := range 40 {
		it := startupItem()
		it.ID = fmt.Sprintf("s%d", i)
		it.Title = strings.Repeat("Очень длинный заголовок ", 4)
		it.Summary = strings.Repeat("описание ", 60)
		items = append(items, it)
	}
	post := f.Render(news.Digest{
		GeneratedAt: generatedAt,
		Sections:    []news.Section{{Name: "startups", Title: "🚀 Startup news", Items: items}},
	})

	if n := utf8.RuneCountInString(post.Text); n > telegramMaxMessageLength {
		t.Errorf("Text length = %d, want <= %d", n, telegramMaxMessageLength)
	}
	if n := utf8.RuneCountInString(post.Caption); n > telegramMaxCaptionLength {
		t.Errorf("Caption length = %d, want <= %d", n, telegramMaxCaptionLength)
	}
	if !strings.HasSuffix(post.Caption, ellipsis) || !strings.HasSuffix(post.Text, ellipsis) {
		t.Errorf("truncated output should end with ellipsis")
	}
	if strings.Count(post.Caption, "<a ") != strings.Count(post.Caption, "</a>") {
		t.Errorf("caption has unbalanced links")
	}

	// id перечислены ровно для тех новостей, что попали в текст, в порядке дайджеста
	variants := []struct {
		name string
		body string
		ids  []string
	}{
		{name: "text", body: post.Text, ids: post.TextIDs},
		{name: "caption", body: post.Caption, ids: post.CaptionIDs},
	}
	for _, v := range variants {
		if len(v.ids) == 0 || len(v.ids) >= len(items) {
			t.Errorf("%s: %d ids, want a truncated non-empty prefix", v.name, len(v.ids))
		}
		if got := strings.Count(v.body, "<a "); got != len(v.ids) {
			t.Errorf("%s: %d links rendered, %d ids reported", v.name, got, len(v.ids))
		}
		for i, id := range v.ids {
			if id != items[i].ID {
				t.Errorf("%s: ids[%d] = %s, want %s", v.name, i, id, items[i].ID)
			}
		}
	}
	if len(post.CaptionIDs) >= len(post.TextIDs) {
		t.Errorf("caption should hold fewer items than text: %d vs %d", len(post.CaptionIDs), len(post.TextIDs))
	}
}

func TestFormatter_NothingFits(t *testing.T) {
	f := NewFormatter(config.Telegram{})
	it := startupItem()
	it.URL = "https://example.com/" + strings.Repeat("x", 2000)

	post := f.Render(news.Digest{
		GeneratedAt: generatedAt,
		Sections:    []news.Section{{Name: "startups", Items: []news.Item{it}}},
	})

	if post.Caption != "" || post.CaptionIDs != nil {
		t.Errorf("Caption = %q, CaptionIDs = %v, want empty", post.Caption, post.CaptionIDs)
	}
	if !slices.Equal(post.TextIDs, []string{"s1"}) {
		t.Errorf("TextIDs = %v, want [s1]", post.TextIDs)
	}
	if post.Empty() {
		t.Error("Empty() = true, text still carries the item")
	}
}

func TestHashtags(t *testing.T) {
	tests := []struct {
		cls  news.Classification
		want string
	}{
		{cls: news.Classification{Sectors: []string{"E-commerce", "AI"}, Events: []string{"M&A"}}, want: "#Ecommerce #AI #MA"},
		{cls: news.Classification{Sectors: []string{"Tech"}, Events: []string{"Tech"}}, want: "#Tech"},
		{cls: news.Classification{}, want: ""},
	}
	for _, tt := range tests {
		if got := Hashtags(tt.cls); got != tt.want {
			t.Errorf("Hashtags(%+v) = %q, want %q", tt.cls, got, tt.want)
		}
	}
}
