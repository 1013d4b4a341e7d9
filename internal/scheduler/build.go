package scheduler

import (
	"context"
	"io"

	"github.com/LJTian/EnergySentiment/internal/classifier"
	"github.com/LJTian/EnergySentiment/internal/collector"
	"github.com/LJTian/EnergySentiment/internal/config"
	"github.com/LJTian/EnergySentiment/internal/processor"
	"github.com/LJTian/EnergySentiment/internal/storage"
)

// NewPipeline 按配置组装流水线；sink 为 print 时输出到 out，store 可为 nil
func NewPipeline(ctx context.Context, cfg *config.Config, store *storage.Store, out io.Writer) (*Pipeline, error) {
	cl, err := classifier.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var sink Sink = &PrintSink{W: out}
	if cfg.Sink == config.SinkStore {
		sink = &StoreSink{Store: store}
	}

	return &Pipeline{
		Fetcher:     collector.NewListingFetcher(cfg.SiteBaseURL, collector.FetchMode(cfg.FetchMode), cfg.FetchTimeout),
		Classifier:  cl,
		Processor:   processor.NewSimpleProcessor(cfg.SkipInvalid),
		Sink:        sink,
		PageCount:   cfg.PageCount,
		SkipInvalid: cfg.SkipInvalid,
	}, nil
}
