package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LJTian/HeadlineHub/internal/collector"
	"github.com/LJTian/HeadlineHub/internal/processor"
	"github.com/LJTian/HeadlineHub/internal/source"
)

const (
	DefaultLimit    = 20
	DefaultDeadline = 12 * time.Second
)

// ErrAbandoned 表示数据源在请求截止时间前没有返回
var ErrAbandoned = errors.New("source abandoned at request deadline")

// Request 描述一次聚合请求
type Request struct {
	Sources []source.Spec
	Keyword string
	// 为 true 时，上游已经按关键词过滤过的结果也再做一次本地匹配
	StrictKeyword bool
	Limit         int
	Deadline      time.Duration
}

// Outcome 记录单个数据源在一次请求中的结果，供日志与健康统计使用
type Outcome struct {
	Source   string
	Kind     source.Kind
	Target   string
	Items    int
	Upstream bool
	Elapsed  time.Duration
	Err      error
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

// Observer 在每次聚合完成后收到全部数据源的结果（按 Request.Sources 顺序）
type Observer func(outcomes []Outcome)

type Aggregator struct {
	fetcher  collector.Fetcher
	observer Observer
}

func New(fetcher collector.Fetcher, observer Observer) *Aggregator {
	return &Aggregator{fetcher: fetcher, observer: observer}
}

type fetched struct {
	idx      int
	articles []processor.Article
	outcome  Outcome
}

// Aggregate 并发请求所有数据源，在截止时间内收集结果，按数据源顺序合并、去重、过滤并截断。
// 单个数据源失败只会让它贡献 0 条；全部失败时返回空列表。
func (a *Aggregator) Aggregate(ctx context.Context, req Request) []processor.Article {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	deadline := req.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}

	results, outcomes := a.collect(ctx, req, deadline)
	if a.observer != nil {
		a.observer(outcomes)
	}

	keyword := strings.ToLower(strings.TrimSpace(req.Keyword))
	seen := make(map[string]struct{})
	out := make([]processor.Article, 0, limit)

	for i, arts := range results {
		filter := keyword != "" && (req.StrictKeyword || !outcomes[i].Upstream)
		for _, art := range arts {
			if _, dup := seen[art.IdentityKey]; dup {
				continue
			}
			seen[art.IdentityKey] = struct{}{}
			if filter && !matches(art, keyword) {
				continue
			}
			out = append(out, art)
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}

// collect 返回按 Request.Sources 下标排列的结果；未按时返回的数据源记为失败
func (a *Aggregator) collect(ctx context.Context, req Request, deadline time.Duration) ([][]processor.Article, []Outcome) {
	n := len(req.Sources)
	results := make([][]processor.Article, n)
	outcomes := make([]Outcome, n)
	if n == 0 {
		return results, outcomes
	}

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	start := time.Now()
	for i, sp := range req.Sources {
		outcomes[i] = Outcome{Source: sp.Name, Kind: sp.Kind, Err: ErrAbandoned}
	}

	// 带缓冲，被放弃的 goroutine 写入后即可退出，不会泄漏
	ch := make(chan fetched, n)
	for i, sp := range req.Sources {
		go func(idx int, spec source.Spec) {
			ch <- a.fetchOne(ctx, idx, spec, req.Keyword)
		}(i, sp)
	}

	for pending := n; pending > 0; pending-- {
		select {
		case f := <-ch:
			results[f.idx] = f.articles
			outcomes[f.idx] = f.outcome
		case <-ctx.Done():
			for i := range outcomes {
				if errors.Is(outcomes[i].Err, ErrAbandoned) {
					outcomes[i].Elapsed = time.Since(start)
				}
			}
			return results, outcomes
		}
	}
	return results, outcomes
}

func (a *Aggregator) fetchOne(ctx context.Context, idx int, spec source.Spec, keyword string) (f fetched) {
	start := time.Now()
	f.idx = idx
	f.outcome = Outcome{Source: spec.Name, Kind: spec.Kind}

	defer func() {
		if r := recover(); r != nil {
			f.articles = nil
			f.outcome.Err = fmt.Errorf("%s: fetch panic: %v", spec.Name, r)
		}
		f.outcome.Elapsed = time.Since(start)
	}()

	res := a.fetcher.Fetch(ctx, spec, strings.TrimSpace(keyword))
	f.outcome.Target = res.Target
	f.outcome.Upstream = res.Upstream
	if !res.OK() {
		f.outcome.Err = res.Err
		return f
	}
	f.articles = processor.Normalize(spec.Kind, res.Items, spec)
	f.outcome.Items = len(f.articles)
	return f
}

// matches 大小写不敏感的子串匹配，标题或摘要命中即可
func matches(a processor.Article, keyword string) bool {
	return strings.Contains(strings.ToLower(a.Title), keyword) ||
		strings.Contains(strings.ToLower(a.Summary), keyword)
}
