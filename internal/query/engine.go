package query

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/LJTian/HeadlineHub/internal/aggregator"
	"github.com/LJTian/HeadlineHub/internal/cache"
	"github.com/LJTian/HeadlineHub/internal/processor"
	"github.com/LJTian/HeadlineHub/internal/source"
)

var (
	// ErrEmptyQuery 是唯一会返回给调用方的错误：关键词为空
	ErrEmptyQuery      = errors.New("query: empty search text")
	ErrUnknownCategory = errors.New("query: unknown category")
)

// 关键词最大长度（按 rune）
const maxKeywordRunes = 200

type Options struct {
	Limit         int
	Deadline      time.Duration
	CategoryTTL   time.Duration
	AskTTL        time.Duration
	StrictKeyword bool
}

// Engine 把分类或关键词解析成聚合请求，并通过缓存调用聚合器
type Engine struct {
	catalog *source.Catalog
	agg     *aggregator.Aggregator
	memo    *cache.Memo[[]processor.Article]
	opts    Options
}

func New(catalog *source.Catalog, agg *aggregator.Aggregator, memo *cache.Memo[[]processor.Article], opts Options) *Engine {
	if opts.Limit <= 0 {
		opts.Limit = aggregator.DefaultLimit
	}
	if opts.Deadline <= 0 {
		opts.Deadline = aggregator.DefaultDeadline
	}
	return &Engine{catalog: catalog, agg: agg, memo: memo, opts: opts}
}

// ResolveCategory 选出属于该分类的全部数据源；未知分类得到空集合
func (e *Engine) ResolveCategory(name string) aggregator.Request {
	return aggregator.Request{
		Sources:  e.catalog.ByCategory(name),
		Limit:    e.opts.Limit,
		Deadline: e.opts.Deadline,
	}
}

// ResolveKeywordQuery 选出全部数据源并带上关键词；空关键词在任何网络请求之前就返回 ErrEmptyQuery
func (e *Engine) ResolveKeywordQuery(text string) (aggregator.Request, error) {
	kw := strings.Join(strings.Fields(text), " ")
	if kw == "" {
		return aggregator.Request{}, ErrEmptyQuery
	}
	if utf8.RuneCountInString(kw) > maxKeywordRunes {
		// 截断处可能正好是空格
		kw = strings.TrimSpace(string([]rune(kw)[:maxKeywordRunes]))
	}
	return aggregator.Request{
		Sources:       e.catalog.All(),
		Keyword:       kw,
		StrictKeyword: e.opts.StrictKeyword,
		Limit:         e.opts.Limit,
		Deadline:      e.opts.Deadline,
	}, nil
}

// LookupCategory 用于需要明确报错的调用方（例如命令行）
func (e *Engine) LookupCategory(name string) error {
	if !e.catalog.HasCategory(name) {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, source.NormalizeCategory(name))
	}
	return nil
}

func (e *Engine) Categories() []string {
	return e.catalog.Categories()
}

func (e *Engine) Sources() []source.Spec {
	return e.catalog.All()
}

// Headlines 返回某分类的新闻；limit <= 0 使用默认值
func (e *Engine) Headlines(ctx context.Context, category string, limit int) ([]processor.Article, error) {
	req := e.ResolveCategory(category)
	return e.run(ctx, req, limit, e.opts.CategoryTTL, false)
}

// Ask 在全部数据源中按关键词搜索
func (e *Engine) Ask(ctx context.Context, text string, limit int) ([]processor.Article, error) {
	req, err := e.ResolveKeywordQuery(text)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, req, limit, e.opts.AskTTL, false)
}

// Warm 强制刷新某分类的缓存，供定时任务调用
func (e *Engine) Warm(ctx context.Context, category string) (int, error) {
	arts, err := e.run(ctx, e.ResolveCategory(category), 0, e.opts.CategoryTTL, true)
	return len(arts), err
}

func (e *Engine) run(ctx context.Context, req aggregator.Request, limit int, ttl time.Duration, refresh bool) ([]processor.Article, error) {
	if limit > 0 {
		req.Limit = limit
	}
	if len(req.Sources) == 0 {
		return []processor.Article{}, nil
	}

	compute := func(cctx context.Context) ([]processor.Article, error) {
		return e.agg.Aggregate(cctx, req), nil
	}
	if e.memo == nil {
		return compute(ctx)
	}

	key := cacheKey(req)
	if refresh {
		return e.memo.Refresh(ctx, key, ttl, compute)
	}
	return e.memo.GetOrCompute(ctx, key, ttl, compute)
}

// cacheKey 由数据源集合、关键词与条数决定
func cacheKey(req aggregator.Request) string {
	names := make([]string, 0, len(req.Sources))
	for _, sp := range req.Sources {
		names = append(names, sp.Name)
	}
	h := sha1.New()
	h.Write([]byte(strings.Join(names, ",")))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(req.Keyword)))
	return fmt.Sprintf("news:agg:%d:%s", req.Limit, hex.EncodeToString(h.Sum(nil)))
}
