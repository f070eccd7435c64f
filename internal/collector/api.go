package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/LJTian/HeadlineHub/internal/source"
)

// apiFetcher 调用 JSON 搜索接口，Spec.Rule 指向结果数组（点号路径，空表示根节点）
type apiFetcher struct {
	c *Collector
}

func (f *apiFetcher) fetch(ctx context.Context, spec source.Spec, target string) ([]NewsItem, error) {
	body, err := f.c.get(ctx, spec, target, "application/json")
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &ParseError{Source: spec.Name, Format: "json", Err: err}
	}

	raw, found := lookup(doc, spec.Rule)
	// 没有结果数组按 0 条处理，不算失败
	if !found || raw == nil {
		return []NewsItem{}, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, &ParseError{Source: spec.Name, Format: "json", Err: fmt.Errorf("field %q is %T, want array", spec.Rule, raw)}
	}

	fields := spec.Fields
	items := make([]NewsItem, 0, len(list))
	for _, el := range list {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		items = append(items, NewsItem{
			Title:       stringAt(obj, fields.Title, "title", "headline", "name"),
			URL:         stringAt(obj, fields.URL, "url", "link", "webUrl"),
			Source:      stringAt(obj, fields.Source),
			Description: stringAt(obj, fields.Summary, "description", "summary", "abstract", "snippet"),
			PublishedAt: timeAt(obj, fields.PublishedAt, "publishedAt", "published_at", "pubDate", "date"),
		})
	}
	return items, nil
}

// lookup 按点号路径取值
func lookup(doc any, path string) (any, bool) {
	if path == "" {
		return doc, true
	}
	cur := doc
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// stringAt 优先使用配置的路径，未配置时依次尝试常见字段名
func stringAt(obj map[string]any, path string, fallbacks ...string) string {
	candidates := fallbacks
	if path != "" {
		candidates = []string{path}
	}
	for _, p := range candidates {
		v, ok := lookup(obj, p)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func timeAt(obj map[string]any, path string, fallbacks ...string) time.Time {
	candidates := fallbacks
	if path != "" {
		candidates = []string{path}
	}
	for _, p := range candidates {
		v, ok := lookup(obj, p)
		if !ok {
			continue
		}
		if t := parseTime(v); !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

func parseTime(v any) time.Time {
	switch x := v.(type) {
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
	case float64:
		// 毫秒或秒级时间戳
		if x > 1e12 {
			return time.UnixMilli(int64(x)).UTC()
		}
		if x > 0 {
			return time.Unix(int64(x), 0).UTC()
		}
	}
	return time.Time{}
}
