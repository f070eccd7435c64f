package app

import (
	"fmt"
	"log"

	"github.com/LJTian/HeadlineHub/internal/aggregator"
	"github.com/LJTian/HeadlineHub/internal/cache"
	"github.com/LJTian/HeadlineHub/internal/collector"
	"github.com/LJTian/HeadlineHub/internal/config"
	"github.com/LJTian/HeadlineHub/internal/processor"
	"github.com/LJTian/HeadlineHub/internal/query"
	"github.com/LJTian/HeadlineHub/internal/source"
	"github.com/LJTian/HeadlineHub/internal/storage"
)

const redisKeyPrefix = "headlinehub:"

// App 持有 cmd/api 与 cmd/collect 共用的组件
type App struct {
	Config  *config.Config
	Catalog *source.Catalog
	Engine  *query.Engine
	// 未配置 POSTGRES_DSN / REDIS_ADDR 时为 nil
	Store *storage.Store
	Redis *cache.RedisStore
}

func Build(cfg *config.Config) (*App, error) {
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg}

	if cfg.PostgresDSN != "" {
		store, err := storage.NewStore(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		for _, sp := range catalog.All() {
			if _, err := store.EnsureSource(sp); err != nil {
				log.Printf("warn: ensure source %s: %v", sp.Name, err)
			}
		}
		disabled, err := store.DisabledSources()
		if err != nil {
			log.Printf("warn: list disabled sources: %v", err)
		}
		if len(disabled) > 0 {
			log.Printf("sources disabled by registry: %d", len(disabled))
		}
		catalog = catalog.Without(disabled)
		a.Store = store
	}

	if cfg.RedisAddr != "" {
		a.Redis = cache.NewRedisStore(cfg.RedisAddr, redisKeyPrefix)
	}

	col := collector.New(collector.Options{
		Timeout:   cfg.FetchTimeout,
		Retries:   cfg.FetchRetries,
		UserAgent: cfg.UserAgent,
	})
	agg := aggregator.New(col, Observer(a.Store))
	memo := cache.New[[]processor.Article](a.Redis, func(v []processor.Article) bool { return len(v) == 0 })

	a.Catalog = catalog
	a.Engine = query.New(catalog, agg, memo, query.Options{
		Limit:         cfg.ResultLimit,
		Deadline:      cfg.RequestDeadline,
		CategoryTTL:   cfg.CategoryCacheTTL,
		AskTTL:        cfg.AskCacheTTL,
		StrictKeyword: cfg.StrictKeyword,
	})

	log.Printf("sources loaded: %d, categories=%v", catalog.Len(), catalog.Categories())
	return a, nil
}

func loadCatalog(cfg *config.Config) (*source.Catalog, error) {
	if cfg.SourcesFile != "" {
		return source.LoadFile(cfg.SourcesFile, cfg.Credentials)
	}
	return source.Default(cfg.Credentials)
}

// Recorder 保存数据源健康状态，由 storage.Store 实现
type Recorder interface {
	RecordOutcomes(outcomes []aggregator.Outcome) error
}

// Observer 记录失败的数据源；配置了数据库时异步写入健康状态
func Observer(rec Recorder) aggregator.Observer {
	return func(outcomes []aggregator.Outcome) {
		for _, o := range outcomes {
			if !o.OK() {
				log.Printf("fetch %s error: %v", o.Source, o.Err)
			}
		}
		if isNilRecorder(rec) {
			return
		}
		go func() {
			if err := rec.RecordOutcomes(outcomes); err != nil {
				log.Printf("warn: record source health: %v", err)
			}
		}()
	}
}

func isNilRecorder(rec Recorder) bool {
	if rec == nil {
		return true
	}
	s, ok := rec.(*storage.Store)
	return ok && s == nil
}

func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Store != nil {
		if db, err := a.Store.DB.DB(); err == nil {
			_ = db.Close()
		}
	}
}
