package source

import (
	_ "embed"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"
	"gopkg.in/yaml.v3"
)

var (
	ErrNoSources          = errors.New("source: no sources configured")
	ErrMissingName        = errors.New("source: name is required")
	ErrBadKind            = errors.New("source: kind must be scrape, feed or api")
	ErrMissingEndpoint    = errors.New("source: endpoint is required")
	ErrMissingRule        = errors.New("source: scrape source needs a selector rule")
	ErrBadRule            = errors.New("source: scrape rule is not a valid CSS selector")
	ErrDuplicateName      = errors.New("source: duplicate source name")
	ErrTemplateInCategory = errors.New("source: query-only endpoint cannot serve a category")
)

//go:embed default_sources.yaml
var defaultSources []byte

type fileFormat struct {
	Sources []Spec `yaml:"sources"`
}

// Catalog 是进程级只读的数据源列表，顺序即合并顺序
type Catalog struct {
	specs []Spec
}

// NewCatalog 校验并规范化数据源，保留传入顺序
func NewCatalog(specs []Spec) (*Catalog, error) {
	out := make([]Spec, 0, len(specs))
	seen := make(map[string]struct{}, len(specs))
	for _, sp := range specs {
		if sp.Disabled {
			continue
		}
		sp = normalize(sp)
		if err := validate(sp); err != nil {
			return nil, fmt.Errorf("%w (%q)", err, sp.Name)
		}
		if _, ok := seen[sp.Name]; ok {
			return nil, fmt.Errorf("%w (%q)", ErrDuplicateName, sp.Name)
		}
		seen[sp.Name] = struct{}{}
		out = append(out, sp)
	}
	if len(out) == 0 {
		return nil, ErrNoSources
	}
	return &Catalog{specs: out}, nil
}

// Load 解析 YAML 数据源列表，并按名称注入密钥。
// 需要密钥但未配置的数据源会被跳过。
func Load(data []byte, creds map[string]string) (*Catalog, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("source: parse yaml: %w", err)
	}
	specs := make([]Spec, 0, len(f.Sources))
	for _, sp := range f.Sources {
		if sp.Credential != "" {
			v := creds[sp.Credential]
			if v == "" {
				log.Printf("warn: source %s skipped, credential %q not configured", sp.Name, sp.Credential)
				continue
			}
			sp = sp.WithCredential(v)
		}
		specs = append(specs, sp)
	}
	return NewCatalog(specs)
}

func LoadFile(path string, creds map[string]string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", path, err)
	}
	return Load(data, creds)
}

// Default 返回内置的数据源列表
func Default(creds map[string]string) (*Catalog, error) {
	return Load(defaultSources, creds)
}

func normalize(sp Spec) Spec {
	sp.Name = strings.TrimSpace(sp.Name)
	sp.Kind = Kind(strings.ToLower(strings.TrimSpace(string(sp.Kind))))
	sp.Endpoint = strings.TrimSpace(sp.Endpoint)
	sp.SearchEndpoint = strings.TrimSpace(sp.SearchEndpoint)
	sp.Rule = strings.TrimSpace(sp.Rule)
	sp.BaseURL = strings.TrimSpace(sp.BaseURL)
	sp.Language = strings.ToLower(strings.TrimSpace(sp.Language))

	cats := make([]string, 0, len(sp.Categories))
	for _, c := range sp.Categories {
		if c = NormalizeCategory(c); c != "" {
			cats = append(cats, c)
		}
	}
	sp.Categories = cats
	return sp
}

func validate(sp Spec) error {
	switch {
	case sp.Name == "":
		return ErrMissingName
	case !sp.Kind.Valid():
		return ErrBadKind
	case sp.Endpoint == "":
		return ErrMissingEndpoint
	case sp.Kind == KindScrape && sp.Rule == "":
		return ErrMissingRule
	case sp.Kind == KindScrape && !validSelector(sp.Rule):
		return ErrBadRule
	case sp.AskOnly() && len(sp.Categories) > 0:
		return ErrTemplateInCategory
	}
	return nil
}

func validSelector(rule string) bool {
	_, err := cascadia.Compile(rule)
	return err == nil
}

// NormalizeCategory 统一分类名大小写与空白
func NormalizeCategory(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// All 返回全部数据源的副本
func (c *Catalog) All() []Spec {
	out := make([]Spec, len(c.specs))
	copy(out, c.specs)
	return out
}

// ByCategory 返回属于该分类的数据源，未知分类返回空列表
func (c *Catalog) ByCategory(name string) []Spec {
	name = NormalizeCategory(name)
	out := make([]Spec, 0)
	for _, sp := range c.specs {
		if sp.HasCategory(name) {
			out = append(out, sp)
		}
	}
	return out
}

func (c *Catalog) HasCategory(name string) bool {
	return len(c.ByCategory(name)) > 0
}

// Categories 返回排序后的分类名
func (c *Catalog) Categories() []string {
	set := make(map[string]struct{})
	for _, sp := range c.specs {
		for _, cat := range sp.Categories {
			set[cat] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for cat := range set {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// Without 去掉指定名称的数据源（例如注册表里被停用的）
func (c *Catalog) Without(names map[string]bool) *Catalog {
	if len(names) == 0 {
		return c
	}
	out := make([]Spec, 0, len(c.specs))
	for _, sp := range c.specs {
		if !names[sp.Name] {
			out = append(out, sp)
		}
	}
	return &Catalog{specs: out}
}

func (c *Catalog) Len() int {
	return len(c.specs)
}
