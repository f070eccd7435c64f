package main

import (
	"log"
	"net/http"
	"strings"

	"github.com/LJTian/HeadlineHub/internal/api"
	"github.com/LJTian/HeadlineHub/internal/app"
	"github.com/LJTian/HeadlineHub/internal/config"
	"github.com/LJTian/HeadlineHub/internal/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// 本地开发时从 .env 读取配置，文件不存在时忽略
	_ = godotenv.Load()

	cfg := config.Load()

	a, err := app.Build(cfg)
	if err != nil {
		log.Fatalf("init app failed: %v", err)
	}
	defer a.Close()

	// 定时预热所有分类的缓存；WARM_CRON_SPEC 为空时关闭
	if cfg.WarmCronSpec != "" {
		s, err := scheduler.New(cfg.WarmCronSpec, a.Engine, a.Catalog.Categories(), cfg.RequestDeadline)
		if err != nil {
			log.Fatalf("init scheduler failed: %v", err)
		}
		s.Start()
		defer s.Stop()
	}

	r := gin.Default()
	r.Use(api.RequestID())
	if cfg.CORSOrigins != "" {
		r.Use(corsMiddleware(cfg.CORSOrigins))
	}

	// 未配置数据库时不提供健康状态，避免把 nil *Store 包进接口
	var health api.HealthLister
	if a.Store != nil {
		health = a.Store
	}
	apiServer := api.NewServer(a.Engine, health)
	apiServer.RegisterRoutes(r)

	addr := ":" + cfg.AppPort
	log.Printf("starting api server at %s ...", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server exit: %v", err)
	}
}

// corsMiddleware 允许浏览器前端跨域读取接口。
// origins 为逗号分隔的白名单，"*" 表示不限制。
func corsMiddleware(origins string) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool)
	for _, o := range strings.Split(origins, ",") {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		if o != "" {
			allowed[o] = true
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
