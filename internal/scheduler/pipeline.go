package scheduler

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/LJTian/EnergySentiment/internal/classifier"
	"github.com/LJTian/EnergySentiment/internal/collector"
	"github.com/LJTian/EnergySentiment/internal/logger"
	"github.com/LJTian/EnergySentiment/internal/processor"
	"github.com/LJTian/EnergySentiment/internal/storage"
)

// Sink 接收一次运行产出的全部记录，返回实际写入条数
type Sink interface {
	Write(ctx context.Context, records []processor.SentimentRecord) (int, error)
}

// StoreSink 写入 sentiment 表（url 已存在则忽略）
type StoreSink struct {
	Store *storage.Store
}

func (s *StoreSink) Write(ctx context.Context, records []processor.SentimentRecord) (int, error) {
	return s.Store.SaveBatch(ctx, records)
}

// PrintSink 逐行输出 JSON，不落库
type PrintSink struct {
	W io.Writer
}

func (s *PrintSink) Write(ctx context.Context, records []processor.SentimentRecord) (int, error) {
	enc := json.NewEncoder(s.W)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

// RunResult 一次运行各阶段的数量统计
type RunResult struct {
	Pages    int
	Articles int

	// SkipInvalid 模式下被跳过的页面数与文章数
	InvalidPages int
	Invalid      int

	Records  int
	Inserted int
	Elapsed  time.Duration
}

// Pipeline 抓取 -> 解析 -> 分类 -> 组装 -> 写出，各阶段依次执行
type Pipeline struct {
	Fetcher     collector.PageFetcher
	Classifier  classifier.Classifier
	Processor   *processor.SimpleProcessor
	Sink        Sink
	PageCount   int
	SkipInvalid bool
}

// Run 执行一次完整流程。默认任一阶段出错即整体失败且不写出任何记录；
// SkipInvalid 时解析/分类失败的页面或文章会被记录并跳过。
func (p *Pipeline) Run(ctx context.Context) (RunResult, error) {
	start := time.Now()
	var res RunResult

	pages, err := p.Fetcher.FetchPages(ctx, p.PageCount)
	if err != nil {
		return res, err
	}
	res.Pages = len(pages)

	var articles []collector.Article
	for _, page := range pages {
		items, err := collector.ExtractArticles(page)
		if err != nil {
			if p.SkipInvalid {
				logger.Log.Warnf("skip page %s: %v", page.SourceURL, err)
				res.InvalidPages++
				continue
			}
			return res, err
		}
		articles = append(articles, items...)
	}
	res.Articles = len(articles)
	logger.Log.Infof("extracted %d articles from %d pages", len(articles), len(pages))

	kept, results, err := p.classify(ctx, articles, &res)
	if err != nil {
		return res, err
	}

	records, skipped, err := p.Processor.Process(kept, results)
	if err != nil {
		return res, err
	}
	res.Invalid += skipped
	res.Records = len(records)

	inserted, err := p.Sink.Write(ctx, records)
	if err != nil {
		return res, err
	}
	res.Inserted = inserted
	res.Elapsed = time.Since(start)

	logger.Log.Infof("run done: pages=%d articles=%d records=%d inserted=%d skipped=%d elapsed=%.2fs",
		res.Pages, res.Articles, res.Records, res.Inserted, res.Records-res.Inserted, res.Elapsed.Seconds())
	return res, nil
}

// classify 默认整批调用分类器，任一条失败即整体失败；SkipInvalid 时逐条调用并跳过失败的文章
func (p *Pipeline) classify(ctx context.Context, articles []collector.Article, res *RunResult) ([]collector.Article, []classifier.Result, error) {
	if !p.SkipInvalid {
		summaries := make([]string, 0, len(articles))
		for _, a := range articles {
			summaries = append(summaries, a.Summary)
		}
		results, err := classifier.ClassifyBatch(ctx, p.Classifier, summaries)
		if err != nil {
			return nil, nil, err
		}
		return articles, results, nil
	}

	kept := make([]collector.Article, 0, len(articles))
	results := make([]classifier.Result, 0, len(articles))
	for _, a := range articles {
		r, err := p.Classifier.Classify(ctx, a.Summary)
		if err != nil {
			logger.Log.Warnf("skip article %s: %v", a.URL, err)
			res.Invalid++
			continue
		}
		kept = append(kept, a)
		results = append(results, r)
	}
	return kept, results, nil
}
