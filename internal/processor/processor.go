package processor

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"
	"time"

	"github.com/LJTian/HeadlineHub/internal/collector"
	"github.com/LJTian/HeadlineHub/internal/source"
	"github.com/PuerkitoBio/goquery"
)

// 摘要最多保留的字符数（按 rune）
const summaryLimit = 300

// Article 是对外返回的统一结构，构造后不再修改
type Article struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Source      string     `json:"source"`
	Summary     string     `json:"summary"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	IdentityKey string     `json:"identityKey"`
}

// Normalize 把某一类数据源的原始记录清洗为 Article。
// 纯函数：缺标题或链接的记录直接丢弃，不会因为单条坏数据影响整批。
func Normalize(kind source.Kind, items []collector.NewsItem, spec source.Spec) []Article {
	out := make([]Article, 0, len(items))
	host := spec.Host()

	for _, it := range items {
		title := cleanText(it.Title)
		if title == "" {
			continue
		}
		link := resolveURL(spec.ResolveBase(it.Origin), cleanText(it.URL))
		if link == "" {
			continue
		}

		summary := cleanText(it.Description)
		if kind != source.KindScrape {
			summary = stripHTML(summary)
		}

		label := cleanText(it.Source)
		if label == "" {
			label = host
		}

		key := IdentityKey(link, title)
		a := Article{
			ID:          hashKey(key),
			Title:       title,
			URL:         link,
			Source:      label,
			Summary:     truncateRunes(summary, summaryLimit),
			IdentityKey: key,
		}
		if !it.PublishedAt.IsZero() {
			ts := it.PublishedAt.UTC()
			a.PublishedAt = &ts
		}
		out = append(out, a)
	}
	return out
}

// IdentityKey 用于去重：优先使用规范化后的 URL，否则使用规范化后的标题
func IdentityKey(link, title string) string {
	if k := collapse(strings.ToLower(link)); k != "" {
		return k
	}
	return collapse(strings.ToLower(title))
}

// resolveURL 按标准规则把相对链接解析为绝对地址；非 http(s) 链接返回空串
func resolveURL(base, link string) string {
	if link == "" {
		return ""
	}
	ref, err := url.Parse(link)
	if err != nil {
		return ""
	}
	if !ref.IsAbs() {
		b, err := url.Parse(base)
		if err != nil || !b.IsAbs() {
			return ""
		}
		ref = b.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	if ref.Host == "" {
		return ""
	}
	return ref.String()
}

// cleanText 合并空白，并把上游偶尔输出的 "undefined"/"null" 当作空值
func cleanText(s string) string {
	s = collapse(s)
	switch strings.ToLower(s) {
	case "undefined", "null":
		return ""
	}
	return s
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// stripHTML 去掉 feed/api 摘要里夹带的标签
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return cleanText(doc.Text())
}

func truncateRunes(s string, limit int) string {
	rs := []rune(s)
	if limit <= 0 || len(rs) <= limit {
		return s
	}
	return string(rs[:limit]) + "…"
}

func hashKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}
