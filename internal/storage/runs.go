package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// CollectRun 每次采集任务的执行记录，仅用于展示与排查
type CollectRun struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	StartedAt  time.Time         `gorm:"index" json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
	Pages      int               `json:"pages"`
	Articles   int               `json:"articles"`
	Inserted   int               `json:"inserted"`
	Skipped    int               `json:"skipped"`
	Error      string            `gorm:"size:1024" json:"error,omitempty"`
	Stats      datatypes.JSONMap `json:"stats"`
}

// RecordRun 写入一次运行记录
func (s *Store) RecordRun(ctx context.Context, run *CollectRun) error {
	if len(run.Error) > 1024 {
		run.Error = toValidUTF8(run.Error[:1024])
	}
	if err := s.DB.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("%w: record run: %w", ErrPersist, err)
	}
	return nil
}

// ListRuns 按开始时间倒序返回最近的运行记录
func (s *Store) ListRuns(ctx context.Context, limit int) ([]CollectRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	var runs []CollectRun
	if err := s.DB.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return runs, nil
}
