// Package identity вычисляет стабильные идентификаторы новостей.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
)

// Length - длина идентификатора в hex-символах (80 бит).
const Length = 20

// ErrInvalidEntry возвращается для записей без URL или заголовка.
var ErrInvalidEntry = errors.New("entry has empty url or title")

// trackingParams удаляются из query перед хешированием.
var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
	"igshid":  {},
	"_ga":     {},
	"yclid":   {},
	"cmpid":   {},
}

// Options управляет составом отпечатка.
type Options struct {
	// IncludeTitle добавляет нормализованный заголовок в отпечаток.
	IncludeTitle bool
}

// Assigner - настроенный вычислитель идентификаторов.
type Assigner struct {
	opts Options
}

// New создаёт Assigner.
func New(opts Options) *Assigner {
	return &Assigner{opts: opts}
}

// ID вычисляет идентификатор записи. Чистая функция входных данных.
func (a *Assigner) ID(source, rawURL, title string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	title = strings.TrimSpace(title)
	if rawURL == "" || title == "" {
		return "", ErrInvalidEntry
	}

	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(source))
	sb.WriteByte(0x1f)
	sb.WriteString(NormalizeURL(rawURL))
	if a.opts.IncludeTitle {
		sb.WriteByte(0x1f)
		sb.WriteString(normalizeTitle(title))
	}

	h := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(h[:])[:Length], nil
}

// ID - вариант по умолчанию: источник + нормализованный URL.
func ID(source, rawURL, title string) (string, error) {
	return New(Options{}).ID(source, rawURL, title)
}

// NormalizeURL приводит URL к канонической форме: без фрагмента, трекинговых
// параметров, www., порта по умолчанию и завершающего слэша.
// Непарсящиеся строки возвращаются обрезанными и в нижнем регистре.
func NormalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.ToLower(rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	q := u.Query()
	for key := range q {
		lk := strings.ToLower(key)
		if strings.HasPrefix(lk, "utm_") {
			q.Del(key)
			continue
		}
		if _, ok := trackingParams[lk]; ok {
			q.Del(key)
		}
	}
	u.RawQuery = encodeSorted(q)

	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}
	if u.Path == "/" {
		u.Path = ""
	}

	return u.String()
}

func encodeSorted(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		vals := append([]string(nil), q[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(k))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(v))
		}
	}
	return sb.String()
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}
