package storage

import (
	"errors"
	"strings"
	"time"

	"github.com/LJTian/HeadlineHub/internal/aggregator"
	"github.com/LJTian/HeadlineHub/internal/source"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	StatusActive   = "active"
	StatusDisabled = "disabled"

	healthOK     = "ok"
	healthFailed = "failed"
)

// Source 是数据源注册表，运维可以把 status 改为 disabled 临时下线某个数据源
type Source struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	Code       string `gorm:"size:64;uniqueIndex" json:"code"`
	Kind       string `gorm:"size:16" json:"kind"`
	Endpoint   string `gorm:"size:512" json:"endpoint"`
	Categories string `gorm:"size:256" json:"categories"` // 逗号分隔
	Language   string `gorm:"size:16" json:"language"`
	Status     string `gorm:"size:32;index" json:"status"` // active / disabled

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SourceHealth 记录每个数据源最近一次采集结果
type SourceHealth struct {
	Code                string            `gorm:"primaryKey;size:64" json:"code"`
	LastStatus          string            `gorm:"size:16;index" json:"lastStatus"`
	LastError           string            `gorm:"size:512" json:"lastError"`
	ItemCount           int               `json:"itemCount"`
	ElapsedMs           int64             `json:"elapsedMs"`
	ConsecutiveFailures int               `json:"consecutiveFailures"`
	LastSuccessAt       *time.Time        `json:"lastSuccessAt,omitempty"`
	Detail              datatypes.JSONMap `gorm:"type:jsonb" json:"detail"`

	UpdatedAt time.Time `json:"updatedAt"`
}

func (SourceHealth) TableName() string {
	return "source_health"
}

type Store struct {
	DB *gorm.DB
}

func NewStore(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Source{}, &SourceHealth{}); err != nil {
		return nil, err
	}

	return &Store{DB: db}, nil
}

// EnsureSource 确保数据源已登记；已存在时同步配置字段，但保留运维设置的 status
func (s *Store) EnsureSource(spec source.Spec) (*Source, error) {
	row := &Source{}
	err := s.DB.Where("code = ?", spec.Name).First(row).Error
	switch {
	case err == nil:
		updates := map[string]any{
			"kind":       string(spec.Kind),
			"endpoint":   spec.Endpoint,
			"categories": strings.Join(spec.Categories, ","),
			"language":   spec.Language,
		}
		if err := s.DB.Model(row).Updates(updates).Error; err != nil {
			return nil, err
		}
		return row, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	row = &Source{
		Code:       spec.Name,
		Kind:       string(spec.Kind),
		Endpoint:   spec.Endpoint,
		Categories: strings.Join(spec.Categories, ","),
		Language:   spec.Language,
		Status:     StatusActive,
	}
	if err := s.DB.Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

// DisabledSources 返回被停用的数据源名称
func (s *Store) DisabledSources() (map[string]bool, error) {
	var codes []string
	if err := s.DB.Model(&Source{}).Where("status = ?", StatusDisabled).Pluck("code", &codes).Error; err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(codes))
	for _, c := range codes {
		out[c] = true
	}
	return out, nil
}

// RecordOutcomes 根据一次聚合的结果更新各数据源的健康状态。
// 连续失败次数在数据库里原子递增，并发的聚合不会丢失计数。
func (s *Store) RecordOutcomes(outcomes []aggregator.Outcome) error {
	now := time.Now().UTC()
	for _, o := range outcomes {
		h := healthRow(o, now)
		if err := s.DB.Clauses(healthConflict(o.OK())).Create(&h).Error; err != nil {
			return err
		}
	}
	return nil
}

// healthConflict 生成 upsert 的更新列：成功时清零并刷新成功时间，失败时在原值上加一
func healthConflict(ok bool) clause.OnConflict {
	set := clause.AssignmentColumns([]string{"last_status", "last_error", "item_count", "elapsed_ms", "detail", "updated_at"})
	if ok {
		set = append(set, clause.AssignmentColumns([]string{"consecutive_failures", "last_success_at"})...)
	} else {
		set = append(set, clause.Assignment{
			Column: clause.Column{Name: "consecutive_failures"},
			Value:  gorm.Expr("source_health.consecutive_failures + 1"),
		})
	}
	return clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: set,
	}
}

// ListHealth 返回以数据源名称为 key 的健康状态
func (s *Store) ListHealth() (map[string]SourceHealth, error) {
	var rows []SourceHealth
	if err := s.DB.Order("code").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]SourceHealth, len(rows))
	for _, r := range rows {
		out[r.Code] = r
	}
	return out, nil
}

// healthRow 是单次结果对应的新行；首次插入时失败计为 1 次
func healthRow(o aggregator.Outcome, now time.Time) SourceHealth {
	h := SourceHealth{
		Code:      o.Source,
		ElapsedMs: o.Elapsed.Milliseconds(),
		Detail: datatypes.JSONMap{
			"kind":     string(o.Kind),
			"target":   o.Target,
			"upstream": o.Upstream,
		},
		UpdatedAt: now,
	}

	if o.OK() {
		h.LastStatus = healthOK
		h.ItemCount = o.Items
		ts := now
		h.LastSuccessAt = &ts
		return h
	}
	h.LastStatus = healthFailed
	h.LastError = truncateRunesDB(toValidUTF8(o.Err.Error()), 512)
	h.ConsecutiveFailures = 1
	return h
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// truncateRunesDB 按 rune 数截断，确保不会超过数据库字段长度
func truncateRunesDB(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}
