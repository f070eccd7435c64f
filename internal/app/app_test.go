package app

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/LJTian/HeadlineHub/internal/aggregator"
	"github.com/LJTian/HeadlineHub/internal/config"
	"github.com/LJTian/HeadlineHub/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWithSourcesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  - name: local_rss
    kind: feed
    endpoint: https://local.example.com/rss
    categories: [local]
`), 0o644))

	a, err := Build(&config.Config{SourcesFile: path, FetchTimeout: time.Second, RequestDeadline: time.Second, StrictKeyword: true})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Store)
	assert.Nil(t, a.Redis)
	assert.Equal(t, []string{"local"}, a.Engine.Categories())

	req, err := a.Engine.ResolveKeywordQuery("jaipur")
	require.NoError(t, err)
	assert.True(t, req.StrictKeyword)
}

func TestBuildWithDefaultCatalog(t *testing.T) {
	a, err := Build(&config.Config{})
	require.NoError(t, err)
	assert.Contains(t, a.Engine.Categories(), "rajasthan")
}

func TestBuildFailsOnMissingSourcesFile(t *testing.T) {
	_, err := Build(&config.Config{SourcesFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

type recorder struct {
	mu   sync.Mutex
	got  []aggregator.Outcome
	done chan struct{}
}

func (r *recorder) RecordOutcomes(outcomes []aggregator.Outcome) error {
	r.mu.Lock()
	r.got = outcomes
	r.mu.Unlock()
	close(r.done)
	return nil
}

func TestObserverRecordsOutcomes(t *testing.T) {
	rec := &recorder{done: make(chan struct{})}
	obs := Observer(rec)

	obs([]aggregator.Outcome{{Source: "a"}, {Source: "b", Err: errors.New("down")}})

	select {
	case <-rec.done:
	case <-time.After(time.Second):
		t.Fatal("outcomes were not recorded")
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.got, 2)
}

func TestObserverToleratesMissingStore(t *testing.T) {
	var store *storage.Store
	assert.NotPanics(t, func() {
		Observer(store)([]aggregator.Outcome{{Source: "a", Err: errors.New("down")}})
		Observer(nil)(nil)
	})
}
