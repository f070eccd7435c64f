package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/LJTian/HeadlineHub/internal/processor"
	"github.com/LJTian/HeadlineHub/internal/query"
	"github.com/LJTian/HeadlineHub/internal/source"
	"github.com/LJTian/HeadlineHub/internal/storage"
	"github.com/gin-gonic/gin"
)

const maxLimit = 100

// Querier 是 HTTP 层依赖的查询能力
type Querier interface {
	Headlines(ctx context.Context, category string, limit int) ([]processor.Article, error)
	Ask(ctx context.Context, text string, limit int) ([]processor.Article, error)
	Categories() []string
	Sources() []source.Spec
}

// HealthLister 提供数据源健康状态，未配置数据库时为 nil
type HealthLister interface {
	ListHealth() (map[string]storage.SourceHealth, error)
}

type Server struct {
	q           Querier
	healthStore HealthLister
}

func NewServer(q Querier, healthStore HealthLister) *Server {
	return &Server{q: q, healthStore: healthStore}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)
	r.GET("/headline/:category", s.headline)
	r.GET("/ask", s.ask)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/categories", s.listCategories)
		v1.GET("/sources", s.listSources)
		v1.GET("/news", s.listNews)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// headline 返回 JSON 数组；未知分类或全部数据源失败时返回空数组
func (s *Server) headline(c *gin.Context) {
	category := c.Param("category")
	items, err := s.q.Headlines(c.Request.Context(), category, parseLimit(c))
	if err != nil {
		log.Printf("headline %s error: %v", category, err)
	}
	c.JSON(http.StatusOK, nonNil(items))
}

// ask 返回 {query, count, news}；q 为空时返回 400
func (s *Server) ask(c *gin.Context) {
	q := c.Query("q")
	items, err := s.q.Ask(c.Request.Context(), q, parseLimit(c))
	if errors.Is(err, query.ErrEmptyQuery) {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "empty_query",
			"message": "query parameter q is required",
		})
		return
	}
	if err != nil {
		log.Printf("ask %q error: %v", q, err)
	}
	items = nonNil(items)
	c.JSON(http.StatusOK, gin.H{
		"query": q,
		"count": len(items),
		"news":  items,
	})
}

func (s *Server) listCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    s.q.Categories(),
	})
}

type sourceView struct {
	source.Spec
	Health *storage.SourceHealth `json:"health,omitempty"`
}

func (s *Server) listSources(c *gin.Context) {
	var health map[string]storage.SourceHealth
	if s.healthStore != nil {
		h, err := s.healthStore.ListHealth()
		if err != nil {
			log.Printf("list source health error: %v", err)
		}
		health = h
	}

	specs := s.q.Sources()
	out := make([]sourceView, 0, len(specs))
	for _, sp := range specs {
		v := sourceView{Spec: sp}
		if h, ok := health[sp.Name]; ok {
			v.Health = &h
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    out,
	})
}

// listNews 是带统一信封的查询入口：category 与 q 二选一
func (s *Server) listNews(c *gin.Context) {
	var (
		items []processor.Article
		err   error
	)
	if q := c.Query("q"); q != "" {
		items, err = s.q.Ask(c.Request.Context(), q, parseLimit(c))
	} else {
		category := c.Query("category")
		if category == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "bad_request",
				"message": "category or q is required",
			})
			return
		}
		items, err = s.q.Headlines(c.Request.Context(), category, parseLimit(c))
	}
	if errors.Is(err, query.ErrEmptyQuery) {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "empty_query",
			"message": "query parameter q is required",
		})
		return
	}
	if err != nil {
		log.Printf("list news error: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    nonNil(items),
	})
}

// parseLimit 返回 0 表示使用默认条数
func parseLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return 0
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func nonNil(items []processor.Article) []processor.Article {
	if items == nil {
		return []processor.Article{}
	}
	return items
}
