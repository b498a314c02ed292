package ranking

import (
	"reflect"
	"testing"
	"time"

	"github.com/maine/latam_digest_bot/internal/config"
	"github.com/maine/latam_digest_bot/internal/news"
)

var base = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func at(h int) *time.Time {
	t := base.Add(time.Duration(h) * time.Hour)
	return &t
}

func mk(id string, score int, published *time.Time, events ...string) news.Item {
	if len(events) == 0 {
		events = []string{"News"}
	}
	return news.Item{
		ID:             id,
		Score:          score,
		PublishedAt:    published,
		Classification: news.Classification{Events: events},
	}
}

func idsOf(items []news.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestSelect_Order(t *testing.T) {
	items := []news.Item{
		mk("c", 1, at(-1)),
		mk("unknown", 1, nil),
		mk("b", 1, at(-1)),
		mk("top", 5, at(-30)),
		mk("newer", 1, at(0)),
	}

	got := idsOf(Select(items, 10))
	want := []string{"top", "newer", "b", "c", "unknown"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Select() = %v, want %v", got, want)
	}
}

func TestSelect_DoesNotMutateInput(t *testing.T) {
	items := []news.Item{mk("a", 1, nil), mk("b", 9, nil)}
	_ = Select(items, 1)
	if items[0].ID != "a" || items[1].ID != "b" {
		t.Errorf("input slice was reordered: %v", idsOf(items))
	}
}

func TestSelect_Limit(t *testing.T) {
	items := []news.Item{mk("a", 1, nil), mk("b", 2, nil), mk("c", 3, nil)}
	if got := Select(items, 2); len(got) != 2 || got[0].ID != "c" {
		t.Errorf("Select(limit=2) = %v", idsOf(got))
	}
	if got := Select(items, 0); got != nil {
		t.Errorf("Select(limit=0) = %v, want nil", idsOf(got))
	}
}

func TestSelectBuckets_Exclusive(t *testing.T) {
	buckets := []config.Bucket{
		{Name: "funding", Limit: 2, Events: []string{"Funding"}},
		{Name: "startups", Limit: 2},
	}
	items := []news.Item{
		mk("f1", 8, at(0), "Funding"),
		mk("f2", 7, at(0), "Funding"),
		mk("f3", 6, at(0), "Funding"),
		mk("n1", 1, at(0)),
	}

	sections := NewSelector(buckets).SelectBuckets(items)
	if len(sections) != 2 {
		t.Fatalf("len(sections) = %d, want 2", len(sections))
	}
	if got := idsOf(sections[0].Items); !reflect.DeepEqual(got, []string{"f1", "f2"}) {
		t.Errorf("funding = %v", got)
	}
	if got := idsOf(sections[1].Items); !reflect.DeepEqual(got, []string{"f3", "n1"}) {
		t.Errorf("startups = %v", got)
	}

	seen := map[string]bool{}
	for _, s := range sections {
		for _, it := range s.Items {
			if seen[it.ID] {
				t.Errorf("id %s appears in more than one section", it.ID)
			}
			seen[it.ID] = true
		}
	}
}

func TestSelectBuckets_SourceBucket(t *testing.T) {
	buckets := []config.Bucket{{Name: "funding", Limit: 5, SourceBuckets: []string{"funding"}}}
	fromFundingFeed := mk("a", 0, nil)
	fromFundingFeed.Bucket = "Funding"
	other := mk("b", 0, nil)
	other.Bucket = "startups"

	sections := NewSelector(buckets).SelectBuckets([]news.Item{fromFundingFeed, other})
	if got := idsOf(sections[0].Items); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("funding = %v, want [a]", got)
	}
}

func TestSelectBuckets_EmptyInput(t *testing.T) {
	sections := NewSelector([]config.Bucket{{Name: "x", Limit: 1}}).SelectBuckets(nil)
	if len(sections) != 1 || len(sections[0].Items) != 0 {
		t.Errorf("SelectBuckets(nil) = %+v", sections)
	}
}
