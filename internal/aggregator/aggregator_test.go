package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/LJTian/HeadlineHub/internal/collector"
	"github.com/LJTian/HeadlineHub/internal/processor"
	"github.com/LJTian/HeadlineHub/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource 描述假数据源的行为
type fakeSource struct {
	items    []collector.NewsItem
	delay    time.Duration
	err      error
	block    bool
	upstream bool
}

type fakeFetcher struct {
	mu      sync.Mutex
	sources map[string]fakeSource
	queries map[string]string
}

func newFakeFetcher(sources map[string]fakeSource) *fakeFetcher {
	return &fakeFetcher{sources: sources, queries: make(map[string]string)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, spec source.Spec, query string) collector.Result {
	f.mu.Lock()
	fs := f.sources[spec.Name]
	f.queries[spec.Name] = query
	f.mu.Unlock()

	res := collector.Result{Source: spec.Name, Upstream: fs.upstream}
	if fs.block {
		<-ctx.Done()
		res.Err = &collector.NetworkError{Source: spec.Name, Timeout: true, Err: ctx.Err()}
		return res
	}
	if fs.delay > 0 {
		select {
		case <-time.After(fs.delay):
		case <-ctx.Done():
			res.Err = &collector.NetworkError{Source: spec.Name, Timeout: true, Err: ctx.Err()}
			return res
		}
	}
	if fs.err != nil {
		res.Err = fs.err
		return res
	}
	res.Items = fs.items
	return res
}

func spec(name string) source.Spec {
	return source.Spec{Name: name, Kind: source.KindFeed, Endpoint: "https://" + name + ".example.com/rss"}
}

func item(title, link string) collector.NewsItem {
	return collector.NewsItem{Title: title, URL: link}
}

func titles(arts []processor.Article) []string {
	out := make([]string, 0, len(arts))
	for _, a := range arts {
		out = append(out, a.Title)
	}
	return out
}

func TestMergeOrderFollowsSourceOrderNotCompletion(t *testing.T) {
	f := newFakeFetcher(map[string]fakeSource{
		"a": {delay: 60 * time.Millisecond, items: []collector.NewsItem{item("a1", "https://a.example.com/1"), item("a2", "https://a.example.com/2")}},
		"b": {items: []collector.NewsItem{item("b1", "https://b.example.com/1")}},
	})
	agg := New(f, nil)

	for i := 0; i < 3; i++ {
		got := agg.Aggregate(context.Background(), Request{Sources: []source.Spec{spec("a"), spec("b")}})
		assert.Equal(t, []string{"a1", "a2", "b1"}, titles(got))
	}
}

func TestDedupFirstOccurrenceWins(t *testing.T) {
	f := newFakeFetcher(map[string]fakeSource{
		"a": {items: []collector.NewsItem{item("From A", "https://shared.example.com/story"), item("A only", "https://a.example.com/x")}},
		"b": {items: []collector.NewsItem{item("From B", "HTTPS://SHARED.example.com/story"), item("B only", "https://b.example.com/y")}},
	})
	got := New(f, nil).Aggregate(context.Background(), Request{Sources: []source.Spec{spec("a"), spec("b")}})

	assert.Equal(t, []string{"From A", "A only", "B only"}, titles(got))
	keys := make(map[string]bool)
	for _, a := range got {
		require.False(t, keys[a.IdentityKey], "duplicate identity key %s", a.IdentityKey)
		keys[a.IdentityKey] = true
	}
}

func TestLimitCapsResult(t *testing.T) {
	many := make([]collector.NewsItem, 0, 30)
	for i := 0; i < 30; i++ {
		many = append(many, item(fmt.Sprintf("story %d", i), fmt.Sprintf("https://a.example.com/%d", i)))
	}
	f := newFakeFetcher(map[string]fakeSource{"a": {items: many}, "b": {items: many}})
	agg := New(f, nil)

	for _, limit := range []int{1, 5, 20, 100} {
		got := agg.Aggregate(context.Background(), Request{Sources: []source.Spec{spec("a"), spec("b")}, Limit: limit})
		assert.LessOrEqual(t, len(got), limit)
	}
	// 默认上限 20
	got := agg.Aggregate(context.Background(), Request{Sources: []source.Spec{spec("a")}})
	assert.Len(t, got, DefaultLimit)
}

func TestKeywordFilterIsCaseInsensitiveSubstring(t *testing.T) {
	f := newFakeFetcher(map[string]fakeSource{
		"a": {items: []collector.NewsItem{
			item("Jaipur Weather Update", "https://a.example.com/1"),
			item("Delhi traffic", "https://a.example.com/2"),
			{Title: "Monsoon", URL: "https://a.example.com/3", Description: "Heavy rain in JAIPUR district"},
		}},
	})
	got := New(f, nil).Aggregate(context.Background(), Request{Sources: []source.Spec{spec("a")}, Keyword: "jaipur"})
	assert.Equal(t, []string{"Jaipur Weather Update", "Monsoon"}, titles(got))
	assert.Equal(t, "jaipur", f.queries["a"])
}

func TestUpstreamFilteredSourcesSkipLocalMatch(t *testing.T) {
	f := newFakeFetcher(map[string]fakeSource{
		"search": {upstream: true, items: []collector.NewsItem{item("जयपुर में बारिश", "https://s.example.com/1")}},
		"plain":  {items: []collector.NewsItem{item("Unrelated", "https://p.example.com/1")}},
	})
	agg := New(f, nil)
	sources := []source.Spec{spec("search"), spec("plain")}

	got := agg.Aggregate(context.Background(), Request{Sources: sources, Keyword: "jaipur"})
	assert.Equal(t, []string{"जयपुर में बारिश"}, titles(got))

	strict := agg.Aggregate(context.Background(), Request{Sources: sources, Keyword: "jaipur", StrictKeyword: true})
	assert.Empty(t, strict)
}

func TestAllSourcesFailingYieldsEmptyList(t *testing.T) {
	f := newFakeFetcher(map[string]fakeSource{
		"a": {err: &collector.HTTPStatusError{Source: "a", StatusCode: 500}},
		"b": {err: &collector.ParseError{Source: "b", Format: "feed", Err: errors.New("bad xml")}},
	})
	var outcomes []Outcome
	agg := New(f, func(o []Outcome) { outcomes = o })

	got := agg.Aggregate(context.Background(), Request{Sources: []source.Spec{spec("a"), spec("b")}})
	assert.NotNil(t, got)
	assert.Empty(t, got)

	require.Len(t, outcomes, 2)
	var se *collector.HTTPStatusError
	assert.ErrorAs(t, outcomes[0].Err, &se)
	var pe *collector.ParseError
	assert.ErrorAs(t, outcomes[1].Err, &pe)
}

func TestEmptySourceSetYieldsEmptyList(t *testing.T) {
	got := New(newFakeFetcher(nil), nil).Aggregate(context.Background(), Request{})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSlowSourceDoesNotBlockResponse(t *testing.T) {
	f := newFakeFetcher(map[string]fakeSource{
		"slow": {block: true},
		"fast": {delay: 10 * time.Millisecond, items: []collector.NewsItem{
			item("f1", "https://fast.example.com/1"),
			item("f2", "https://fast.example.com/2"),
			item("f3", "https://fast.example.com/3"),
		}},
	})
	var outcomes []Outcome
	agg := New(f, func(o []Outcome) { outcomes = o })

	start := time.Now()
	got := agg.Aggregate(context.Background(), Request{
		Sources:  []source.Spec{spec("slow"), spec("fast")},
		Deadline: 200 * time.Millisecond,
	})
	elapsed := time.Since(start)

	assert.Equal(t, []string{"f1", "f2", "f3"}, titles(got))
	assert.Less(t, elapsed, time.Second)

	require.Len(t, outcomes, 2)
	assert.False(t, outcomes[0].OK())
	assert.True(t, outcomes[1].OK())
	assert.Equal(t, 3, outcomes[1].Items)
}

func TestAbandonedSourceIsRecordedAtDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	f := &stubbornFetcher{release: release}
	var outcomes []Outcome
	agg := New(f, func(o []Outcome) { outcomes = o })

	start := time.Now()
	got := agg.Aggregate(context.Background(), Request{Sources: []source.Spec{spec("stubborn")}, Deadline: 50 * time.Millisecond})

	assert.Empty(t, got)
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, ErrAbandoned)
}

// stubbornFetcher 忽略 context，模拟不配合取消的上游
type stubbornFetcher struct {
	release chan struct{}
}

func (s *stubbornFetcher) Fetch(_ context.Context, spec source.Spec, _ string) collector.Result {
	<-s.release
	return collector.Result{Source: spec.Name, Items: []collector.NewsItem{item("late", "https://late.example.com/1")}}
}

func TestPanickingFetcherIsAbsorbed(t *testing.T) {
	agg := New(panicFetcher{}, nil)
	got := agg.Aggregate(context.Background(), Request{Sources: []source.Spec{spec("boom")}})
	assert.Empty(t, got)
}

type panicFetcher struct{}

func (panicFetcher) Fetch(context.Context, source.Spec, string) collector.Result {
	panic("selector engine crashed")
}
