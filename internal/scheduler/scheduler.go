package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Warmer 刷新某个分类的缓存，返回刷新后的条数
type Warmer interface {
	Warm(ctx context.Context, category string) (int, error)
}

// Scheduler 定时预热各分类的缓存，用户请求大多直接命中缓存
type Scheduler struct {
	cron       *cron.Cron
	warmer     Warmer
	categories []string
	timeout    time.Duration

	// 首轮预热的延迟，避免与进程启动争抢资源
	StartupDelay time.Duration
}

func New(spec string, w Warmer, categories []string, timeout time.Duration) (*Scheduler, error) {
	c := cron.New()

	s := &Scheduler{
		cron:         c,
		warmer:       w,
		categories:   categories,
		timeout:      timeout,
		StartupDelay: 5 * time.Second,
	}

	_, err := c.AddFunc(spec, s.runOnce)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	time.AfterFunc(s.StartupDelay, func() {
		go s.runOnce()
	})
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce 对外暴露的单次执行入口，方便手动触发预热
func (s *Scheduler) RunOnce() {
	s.runOnce()
}

func (s *Scheduler) runOnce() {
	log.Println("start warm job...")

	var wg sync.WaitGroup
	for _, c := range s.categories {
		category := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			defer cancel()

			n, err := s.warmer.Warm(ctx, category)
			if err != nil {
				log.Printf("warm %s error: %v", category, err)
				return
			}
			if n == 0 {
				log.Printf("warm %s got 0 items", category)
				return
			}
			log.Printf("warm %s done, items=%d", category, n)
		}()
	}

	wg.Wait()
	log.Println("warm job done (all categories)")
}
