package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/LJTian/EnergySentiment/internal/config"
	"github.com/LJTian/EnergySentiment/internal/logger"
	"github.com/LJTian/EnergySentiment/internal/scheduler"
	"github.com/LJTian/EnergySentiment/internal/storage"
)

// 一个仅执行一次采集任务的命令行入口：抓取、分类后打印或入库
func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		return 1
	}
	if err := logger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store *storage.Store
		runs  scheduler.RunRecorder
	)
	if cfg.Sink == config.SinkStore {
		store, err = storage.NewStore(cfg.DBDSN, cfg.RedisAddr)
		if err != nil {
			logger.Log.Errorf("init store failed: %v", err)
			return 1
		}
		defer store.Close()
		runs = store
	}

	p, err := scheduler.NewPipeline(ctx, cfg, store, os.Stdout)
	if err != nil {
		logger.Log.Errorf("init pipeline failed: %v", err)
		return 1
	}
	s, err := scheduler.New(cfg.CronSpec, p, runs, cfg.FetchMode)
	if err != nil {
		logger.Log.Errorf("init scheduler failed: %v", err)
		return 1
	}

	// 只执行一轮采集任务后退出
	res, err := s.RunOnce(ctx)
	if err != nil {
		logger.Log.Errorf("run failed: %v", err)
		return 1
	}
	fmt.Fprintf(summaryOutput(cfg.Sink, os.Stdout, os.Stderr), "Completed in %.2f seconds\n", res.Elapsed.Seconds())
	return 0
}

// summaryOutput print 模式下 stdout 只输出 NDJSON 记录，耗时信息改写到 stderr
func summaryOutput(sink string, stdout, stderr io.Writer) io.Writer {
	if sink == config.SinkPrint {
		return stderr
	}
	return stdout
}
