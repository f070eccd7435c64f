package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/LJTian/HeadlineHub/internal/source"
	"github.com/cenkalti/backoff/v4"
)

// NewsItem 是各类数据源采集后的原始记录，尚未清洗
type NewsItem struct {
	Title string
	URL   string
	// 上游声明的来源名（feed 标题、api 的 source 字段），可为空
	Source      string
	Description string
	PublishedAt time.Time
	// 采集时实际访问的页面地址，用于解析相对链接
	Origin string
}

// Result 是一次数据源采集的结果：要么成功（可能 0 条），要么失败
type Result struct {
	Source   string
	Target   string
	Items    []NewsItem
	Upstream bool
	Err      error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Fetcher 抽象对单个数据源的一次采集。失败通过 Result.Err 返回，不会 panic。
type Fetcher interface {
	Fetch(ctx context.Context, spec source.Spec, query string) Result
}

// strategy 对应一种数据源类型的单次请求
type strategy interface {
	fetch(ctx context.Context, spec source.Spec, target string) ([]NewsItem, error)
}

const (
	defaultTimeout      = 10 * time.Second
	defaultUserAgent    = "HeadlineHubBot/1.0"
	defaultMaxBodyBytes = 4 << 20 // 4MB
)

type Options struct {
	// 单次请求超时
	Timeout time.Duration
	// 超时或网络错误后的立即重试次数
	Retries      int
	UserAgent    string
	MaxBodyBytes int64
	Transport    http.RoundTripper
}

// Collector 按 Spec.Kind 选择采集策略，统一处理超时与重试
type Collector struct {
	opts       Options
	client     *http.Client
	strategies map[source.Kind]strategy
}

func New(opts Options) *Collector {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}

	c := &Collector{
		opts:   opts,
		client: &http.Client{Transport: opts.Transport},
	}
	c.strategies = map[source.Kind]strategy{
		source.KindScrape: &scrapeFetcher{c: c},
		source.KindFeed:   &feedFetcher{c: c},
		source.KindAPI:    &apiFetcher{c: c},
	}
	return c
}

func (c *Collector) Fetch(ctx context.Context, spec source.Spec, query string) Result {
	res := Result{Source: spec.Name}

	target, upstream, ok := spec.Target(query)
	if !ok {
		res.Err = fmt.Errorf("%s: %w", spec.Name, ErrNoTarget)
		return res
	}
	res.Target = spec.Redact(target)
	res.Upstream = upstream

	st, ok := c.strategies[spec.Kind]
	if !ok {
		res.Err = fmt.Errorf("%s: %w %q", spec.Name, ErrUnsupportedKind, spec.Kind)
		return res
	}

	items, err := c.withRetry(ctx, spec, target, func(actx context.Context) ([]NewsItem, error) {
		return st.fetch(actx, spec, target)
	})
	if err != nil {
		res.Err = err
		return res
	}

	if items == nil {
		items = []NewsItem{}
	}
	for i := range items {
		if items[i].Origin == "" {
			items[i].Origin = res.Target
		}
	}
	res.Items = items
	return res
}

// withRetry 每次尝试独立计时；只有超时/网络错误会立即重试，状态码与解析错误直接失败
func (c *Collector) withRetry(ctx context.Context, spec source.Spec, target string, attempt func(context.Context) ([]NewsItem, error)) ([]NewsItem, error) {
	var items []NewsItem

	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(c.networkError(spec, target, err))
		}
		actx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		got, err := attempt(actx)
		if err != nil {
			if IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		items = got
		return nil
	}

	policy := backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(c.opts.Retries))
	err := backoff.RetryNotify(op, policy, func(err error, _ time.Duration) {
		log.Printf("retry %s: %v", spec.Name, err)
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// IsRetryable 判断错误是否值得立即重试一次
func IsRetryable(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
