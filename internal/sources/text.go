package sources

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StripHTML возвращает текст без разметки с нормализованными пробелами.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return CollapseSpaces(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return CollapseSpaces(s)
	}
	doc.Find("script, style").Remove()
	return CollapseSpaces(doc.Text())
}

// CollapseSpaces схлопывает любые пробельные последовательности в один пробел.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TruncateRunes обрезает строку до max рун, добавляя многоточие. max <= 0 - без ограничения.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}
