package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/datatypes"

	"github.com/LJTian/EnergySentiment/internal/logger"
	"github.com/LJTian/EnergySentiment/internal/storage"
)

// ErrBusy 上一次运行尚未结束
var ErrBusy = errors.New("pipeline run already in progress")

// RunRecorder 保存运行记录，可为 nil
type RunRecorder interface {
	RecordRun(ctx context.Context, run *storage.CollectRun) error
}

type Scheduler struct {
	cron     *cron.Cron
	pipeline *Pipeline
	runs     RunRecorder
	mode     string

	running sync.Mutex
}

func New(spec string, p *Pipeline, runs RunRecorder, mode string) (*Scheduler, error) {
	c := cron.New()

	s := &Scheduler{
		cron:     c,
		pipeline: p,
		runs:     runs,
		mode:     mode,
	}

	_, err := c.AddFunc(spec, func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			logger.Log.Errorf("scheduled run failed: %v", err)
		}
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce 对外暴露的单次执行入口；与正在进行的运行重叠时返回 ErrBusy
func (s *Scheduler) RunOnce(ctx context.Context) (RunResult, error) {
	if !s.running.TryLock() {
		return RunResult{}, ErrBusy
	}
	defer s.running.Unlock()

	logger.Log.Info("start collect job...")
	started := time.Now()
	res, err := s.pipeline.Run(ctx)
	s.record(started, res, err)
	return res, err
}

func (s *Scheduler) record(started time.Time, res RunResult, runErr error) {
	if s.runs == nil {
		return
	}
	run := &storage.CollectRun{
		StartedAt:  started,
		FinishedAt: time.Now(),
		Pages:      res.Pages,
		Articles:   res.Articles,
		Inserted:   res.Inserted,
		Stats: datatypes.JSONMap{
			"mode":         s.mode,
			"pageCount":    s.pipeline.PageCount,
			"invalid":      res.Invalid,
			"invalidPages": res.InvalidPages,
			"records":      res.Records,
		},
	}
	if runErr != nil {
		run.Error = runErr.Error()
	} else {
		run.Skipped = res.Records - res.Inserted
	}
	// 运行记录写失败不影响本次结果
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.runs.RecordRun(ctx, run); err != nil {
		logger.Log.Warnf("record run failed: %v", err)
	}
}
