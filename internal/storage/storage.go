package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/LJTian/EnergySentiment/internal/logger"
	"github.com/LJTian/EnergySentiment/internal/processor"
)

// ErrPersist 存储不可用或写入失败
var ErrPersist = errors.New("persistence failed")

// listCacheTTL 列表缓存有效期，写入后不主动失效，依赖自然过期
const listCacheTTL = 5 * time.Minute

// Sentiment 对应 sentiment 表，url 为主键；已存在的 url 不会被覆盖
type Sentiment struct {
	URL       string  `gorm:"column:url;primaryKey" json:"url"`
	Date      string  `gorm:"column:date" json:"date"`
	Time      string  `gorm:"column:time" json:"time"`
	Summary   string  `gorm:"column:summary" json:"summary"`
	Sentiment string  `gorm:"column:sentiment;index" json:"sentiment"`
	Score     float64 `gorm:"column:score" json:"score"`
}

func (Sentiment) TableName() string {
	return "sentiment"
}

type Store struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStore 打开数据库并建表（可重复调用）。dsn 为 postgres:// 或 host= 形式时连接 PostgreSQL，
// 否则视为 sqlite 文件路径。redisAddr 为空时不启用缓存。
func NewStore(dsn, redisAddr string) (*Store, error) {
	db, err := gorm.Open(openDialector(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", ErrPersist, err)
	}

	s := &Store{DB: db}
	if err := s.EnsureSchema(); err != nil {
		return nil, err
	}

	if redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Log.Warnf("redis ping failed: %v", err)
		}
		s.Redis = rdb
	}

	return s, nil
}

func openDialector(dsn string) gorm.Dialector {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.HasPrefix(dsn, "host=") {
		return postgres.Open(dsn)
	}
	return sqlite.Open(dsn)
}

// EnsureSchema 表不存在时创建
func (s *Store) EnsureSchema() error {
	if err := s.DB.AutoMigrate(&Sentiment{}, &CollectRun{}); err != nil {
		return fmt.Errorf("%w: migrate: %w", ErrPersist, err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(strings.ReplaceAll(s, "\x00", ""), "\uFFFD")
}

// SaveBatch 在一个事务中写入整批记录，url 已存在时忽略（先写者为准）。
// 返回实际新增的行数；出错时整批回滚，本次不落任何行。
func (s *Store) SaveBatch(ctx context.Context, records []processor.SentimentRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	inserted := 0
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range records {
			row := &Sentiment{
				URL:       r.URL,
				Date:      r.Date,
				Time:      r.Time,
				Summary:   toValidUTF8(r.Summary),
				Sentiment: r.Sentiment,
				Score:     r.Score,
			}
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "url"}},
				DoNothing: true,
			}).Create(row)
			if res.Error != nil {
				return fmt.Errorf("insert %s: %w", r.URL, res.Error)
			}
			inserted += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return inserted, nil
}

// Get 按 url 查询单条记录，不存在时返回 nil
func (s *Store) Get(ctx context.Context, url string) (*Sentiment, error) {
	var row Sentiment
	silent := s.DB.Session(&gorm.Session{Logger: s.DB.Logger.LogMode(gormlogger.Silent)})
	err := silent.WithContext(ctx).Where("url = ?", url).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return &row, nil
}

// ListRecords 按情感标签与日期（"January 05, 2024"）筛选，结果使用 Redis 做简单缓存
func (s *Store) ListRecords(ctx context.Context, label, date string, limit int) ([]Sentiment, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	cacheKey := fmt.Sprintf("sentiment:list:%s:%s:%d", label, date, limit)

	if s.Redis != nil {
		if bs, err := s.Redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []Sentiment
			if err := json.Unmarshal(bs, &cached); err == nil {
				return cached, nil
			}
		}
	}

	var list []Sentiment
	db := s.DB.WithContext(ctx).Model(&Sentiment{})
	if label != "" {
		db = db.Where("sentiment = ?", label)
	}
	if date != "" {
		db = db.Where("date = ?", date)
	}
	if err := db.Order("url").Limit(limit).Find(&list).Error; err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	if s.Redis != nil && len(list) > 0 {
		if bs, err := json.Marshal(list); err == nil {
			_ = s.Redis.Set(ctx, cacheKey, bs, listCacheTTL).Err()
		}
	}
	return list, nil
}

// CountByLabel 统计每个情感标签的条数
func (s *Store) CountByLabel(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Sentiment string
		N         int64
	}
	err := s.DB.WithContext(ctx).Model(&Sentiment{}).
		Select("sentiment, COUNT(*) AS n").
		Group("sentiment").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Sentiment] = r.N
	}
	return out, nil
}
