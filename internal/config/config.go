package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// 以该前缀开头的环境变量会作为数据源密钥，例如 NEWS_CRED_NEWSAPI -> newsapi
const credentialPrefix = "NEWS_CRED_"

type Config struct {
	AppPort string

	// 为空时使用内置数据源列表
	SourcesFile string

	FetchTimeout    time.Duration
	FetchRetries    int
	RequestDeadline time.Duration
	ResultLimit     int
	UserAgent       string

	// 为 true 时，上游搜索接口返回的结果也做本地关键词匹配
	StrictKeyword bool

	CategoryCacheTTL time.Duration
	AskCacheTTL      time.Duration

	// 为空表示不启用
	RedisAddr    string
	PostgresDSN  string
	WarmCronSpec string

	CORSOrigins string

	Credentials map[string]string
}

func Load() *Config {
	cfg := &Config{
		AppPort:          getEnv("PORT", "10000"),
		SourcesFile:      getEnv("SOURCES_FILE", ""),
		FetchTimeout:     getDuration("FETCH_TIMEOUT", 10*time.Second),
		FetchRetries:     getInt("FETCH_RETRIES", 1),
		RequestDeadline:  getDuration("REQUEST_DEADLINE", 12*time.Second),
		ResultLimit:      getInt("RESULT_LIMIT", 20),
		UserAgent:        getEnv("USER_AGENT", "HeadlineHubBot/1.0"),
		StrictKeyword:    getBool("STRICT_KEYWORD", false),
		CategoryCacheTTL: getDuration("CATEGORY_CACHE_TTL", 45*time.Second),
		AskCacheTTL:      getDuration("ASK_CACHE_TTL", 10*time.Second),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		PostgresDSN:      getEnv("POSTGRES_DSN", ""),
		WarmCronSpec:     getEnv("WARM_CRON_SPEC", "@every 40s"),
		CORSOrigins:      getEnv("CORS_ORIGINS", "*"),
		Credentials:      credentials(os.Environ()),
	}

	log.Printf("config loaded: port=%s timeout=%s deadline=%s redis=%t postgres=%t warm=%q credentials=%d",
		cfg.AppPort, cfg.FetchTimeout, cfg.RequestDeadline,
		cfg.RedisAddr != "", cfg.PostgresDSN != "", cfg.WarmCronSpec, len(cfg.Credentials))
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("warn: invalid %s=%q, using %s", key, v, def)
		return def
	}
	return d
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("warn: invalid %s=%q, using %d", key, v, def)
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("warn: invalid %s=%q, using %t", key, v, def)
		return def
	}
	return b
}

// credentials 从 KEY=VALUE 列表中提取数据源密钥，名称转为小写
func credentials(environ []string) map[string]string {
	out := make(map[string]string)
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, credentialPrefix) || v == "" {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(k, credentialPrefix))
		if name != "" {
			out[name] = v
		}
	}
	return out
}
