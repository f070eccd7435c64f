package query

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LJTian/HeadlineHub/internal/aggregator"
	"github.com/LJTian/HeadlineHub/internal/cache"
	"github.com/LJTian/HeadlineHub/internal/collector"
	"github.com/LJTian/HeadlineHub/internal/processor"
	"github.com/LJTian/HeadlineHub/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	calls int32
	delay time.Duration
}

func (f *countingFetcher) Fetch(_ context.Context, spec source.Spec, query string) collector.Result {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	_, upstream, _ := spec.Target(query)
	return collector.Result{
		Source:   spec.Name,
		Upstream: upstream,
		Items: []collector.NewsItem{
			{Title: "Jaipur Weather Update from " + spec.Name, URL: "https://" + spec.Name + ".example.com/jaipur"},
			{Title: "Other news from " + spec.Name, URL: "https://" + spec.Name + ".example.com/other"},
		},
	}
}

func testCatalog(t *testing.T) *source.Catalog {
	t.Helper()
	cat, err := source.NewCatalog([]source.Spec{
		{Name: "bbc", Kind: source.KindScrape, Endpoint: "https://bbc.example.com", Rule: "a", Categories: []string{"international"}},
		{Name: "ndtv", Kind: source.KindScrape, Endpoint: "https://ndtv.example.com", Rule: "h2 a", Categories: []string{"india"}},
		{Name: "today", Kind: source.KindFeed, Endpoint: "https://today.example.com/rss", Categories: []string{"india", "international"}},
		{Name: "search", Kind: source.KindAPI, Endpoint: "https://search.example.com/?q={query}", Rule: "results"},
	})
	require.NoError(t, err)
	return cat
}

func newEngine(t *testing.T, f collector.Fetcher, memo *cache.Memo[[]processor.Article]) *Engine {
	return New(testCatalog(t), aggregator.New(f, nil), memo, Options{Deadline: time.Second, CategoryTTL: time.Minute})
}

func names(specs []source.Spec) []string {
	out := make([]string, 0, len(specs))
	for _, sp := range specs {
		out = append(out, sp.Name)
	}
	return out
}

func TestResolveCategory(t *testing.T) {
	e := newEngine(t, &countingFetcher{}, nil)

	req := e.ResolveCategory("India")
	assert.Equal(t, []string{"ndtv", "today"}, names(req.Sources))
	assert.Equal(t, aggregator.DefaultLimit, req.Limit)
	assert.Empty(t, req.Keyword)

	unknown := e.ResolveCategory("sports")
	assert.Empty(t, unknown.Sources)
	assert.ErrorIs(t, e.LookupCategory("sports"), ErrUnknownCategory)
	assert.NoError(t, e.LookupCategory("international"))
}

func TestResolveKeywordQuerySelectsAllSources(t *testing.T) {
	e := newEngine(t, &countingFetcher{}, nil)

	req, err := e.ResolveKeywordQuery("  jaipur   weather ")
	require.NoError(t, err)
	assert.Equal(t, "jaipur weather", req.Keyword)
	assert.Equal(t, []string{"bbc", "ndtv", "today", "search"}, names(req.Sources))

	long, err := e.ResolveKeywordQuery(strings.Repeat("x", 500))
	require.NoError(t, err)
	assert.Len(t, long.Keyword, maxKeywordRunes)

	// 第 200 个 rune 是空格时不能留在关键词末尾
	cut, err := e.ResolveKeywordQuery(strings.Repeat("x", maxKeywordRunes-1) + " jaipur")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", maxKeywordRunes-1), cut.Keyword)
	assert.False(t, req.StrictKeyword)

	strict := New(testCatalog(t), aggregator.New(&countingFetcher{}, nil), nil, Options{StrictKeyword: true})
	sreq, err := strict.ResolveKeywordQuery("jaipur")
	require.NoError(t, err)
	assert.True(t, sreq.StrictKeyword)
}

func TestEmptyQueryShortCircuitsBeforeFetching(t *testing.T) {
	f := &countingFetcher{}
	e := newEngine(t, f, nil)

	for _, q := range []string{"", "   ", "\t\n"} {
		_, err := e.ResolveKeywordQuery(q)
		assert.ErrorIs(t, err, ErrEmptyQuery)

		arts, err := e.Ask(context.Background(), q, 0)
		assert.ErrorIs(t, err, ErrEmptyQuery)
		assert.Nil(t, arts)
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.calls))
}

func TestAskFiltersClientSideAndTrustsUpstream(t *testing.T) {
	e := newEngine(t, &countingFetcher{}, nil)

	arts, err := e.Ask(context.Background(), "JAIPUR", 0)
	require.NoError(t, err)

	var got []string
	for _, a := range arts {
		got = append(got, a.Title)
	}
	// search 源由上游过滤，其余数据源在本地按关键词过滤
	assert.Equal(t, []string{
		"Jaipur Weather Update from bbc",
		"Jaipur Weather Update from ndtv",
		"Jaipur Weather Update from today",
		"Jaipur Weather Update from search",
		"Other news from search",
	}, got)
}

func TestUnknownCategoryIsEmptyNotError(t *testing.T) {
	f := &countingFetcher{}
	e := newEngine(t, f, nil)

	arts, err := e.Headlines(context.Background(), "sports", 0)
	require.NoError(t, err)
	assert.NotNil(t, arts)
	assert.Empty(t, arts)
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.calls))
}

func TestHeadlinesUsesCacheAndSingleFlight(t *testing.T) {
	f := &countingFetcher{delay: 30 * time.Millisecond}
	e := newEngine(t, f, cache.New[[]processor.Article](nil, func(v []processor.Article) bool { return len(v) == 0 }))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			arts, err := e.Headlines(context.Background(), "india", 3)
			assert.NoError(t, err)
			assert.Len(t, arts, 3)
		}()
	}
	wg.Wait()

	// india 有两个数据源：只应请求一轮
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.calls))

	_, err := e.Headlines(context.Background(), "india", 3)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.calls))

	n, err := e.Warm(context.Background(), "india")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, int32(4), atomic.LoadInt32(&f.calls))
}

func TestCacheKeyDependsOnSourcesKeywordAndLimit(t *testing.T) {
	e := newEngine(t, &countingFetcher{}, nil)
	india := e.ResolveCategory("india")
	intl := e.ResolveCategory("international")

	assert.NotEqual(t, cacheKey(india), cacheKey(intl))

	ask1, _ := e.ResolveKeywordQuery("Jaipur")
	ask2, _ := e.ResolveKeywordQuery("jaipur")
	assert.Equal(t, cacheKey(ask1), cacheKey(ask2))

	limited := india
	limited.Limit = 5
	assert.NotEqual(t, cacheKey(india), cacheKey(limited))
}
