package source

import (
	"net/url"
	"strings"
)

// Kind 决定使用哪一种采集策略
type Kind string

const (
	KindScrape Kind = "scrape"
	KindFeed   Kind = "feed"
	KindAPI    Kind = "api"
)

func (k Kind) Valid() bool {
	switch k {
	case KindScrape, KindFeed, KindAPI:
		return true
	}
	return false
}

const (
	queryPlaceholder      = "{query}"
	credentialPlaceholder = "{credential}"
)

// FieldMap 描述 api 类型数据源的字段路径（点号分隔，例如 source.name）
type FieldMap struct {
	Title       string `yaml:"title" json:"title,omitempty"`
	URL         string `yaml:"url" json:"url,omitempty"`
	Summary     string `yaml:"summary" json:"summary,omitempty"`
	PublishedAt string `yaml:"published_at" json:"publishedAt,omitempty"`
	Source      string `yaml:"source" json:"source,omitempty"`
}

// Spec 描述一个上游数据源。配置加载后只读，可在并发请求间共享。
type Spec struct {
	Name     string `yaml:"name" json:"name"`
	Kind     Kind   `yaml:"kind" json:"kind"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// 有关键词时优先使用的搜索地址模板，可为空
	SearchEndpoint string   `yaml:"search_endpoint" json:"searchEndpoint,omitempty"`
	Rule           string   `yaml:"rule" json:"rule,omitempty"`
	BaseURL        string   `yaml:"base_url" json:"baseUrl,omitempty"`
	Language       string   `yaml:"language" json:"language,omitempty"`
	Categories     []string `yaml:"categories" json:"categories"`
	Fields         FieldMap `yaml:"fields" json:"fields,omitempty"`
	// Credential 是密钥名，真实值由配置层注入，不写在数据源文件里
	Credential string `yaml:"credential" json:"credential,omitempty"`
	Disabled   bool   `yaml:"disabled" json:"disabled,omitempty"`

	secret string
}

// WithCredential 返回注入了密钥值的副本
func (s Spec) WithCredential(value string) Spec {
	s.secret = value
	return s
}

func (s Spec) HasCategory(name string) bool {
	for _, c := range s.Categories {
		if c == name {
			return true
		}
	}
	return false
}

// AskOnly 表示该数据源只能带关键词访问
func (s Spec) AskOnly() bool {
	return strings.Contains(s.Endpoint, queryPlaceholder)
}

// Target 计算本次请求实际访问的地址。
// upstream 为 true 表示关键词已经交给上游过滤；ok 为 false 表示该数据源无法服务本次请求。
func (s Spec) Target(query string) (target string, upstream, ok bool) {
	if query == "" {
		if s.AskOnly() {
			return "", false, false
		}
		return s.expand(s.Endpoint, ""), false, true
	}
	switch {
	case s.SearchEndpoint != "":
		return s.expand(s.SearchEndpoint, query), true, true
	case s.AskOnly():
		return s.expand(s.Endpoint, query), true, true
	default:
		return s.expand(s.Endpoint, ""), false, true
	}
}

func (s Spec) expand(tmpl, query string) string {
	out := strings.ReplaceAll(tmpl, queryPlaceholder, url.QueryEscape(query))
	return strings.ReplaceAll(out, credentialPlaceholder, url.QueryEscape(s.secret))
}

// Redact 把文本中出现的密钥替换掉，用于日志与错误信息
func (s Spec) Redact(text string) string {
	if s.secret == "" {
		return text
	}
	text = strings.ReplaceAll(text, url.QueryEscape(s.secret), "***")
	return strings.ReplaceAll(text, s.secret, "***")
}

// ResolveBase 返回解析相对链接时使用的基准地址：优先 BaseURL，否则为请求地址
func (s Spec) ResolveBase(target string) string {
	if s.BaseURL != "" {
		return s.BaseURL
	}
	if target != "" {
		return target
	}
	return s.Endpoint
}

// Host 返回去掉 www. 前缀的主机名，用作默认来源标签
func (s Spec) Host() string {
	raw := s.Endpoint
	if raw == "" {
		raw = s.BaseURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return s.Name
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
