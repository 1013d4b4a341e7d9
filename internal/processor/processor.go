package processor

import (
	"fmt"
	"time"

	"github.com/LJTian/EnergySentiment/internal/classifier"
	"github.com/LJTian/EnergySentiment/internal/collector"
	"github.com/LJTian/EnergySentiment/internal/logger"
)

// ErrParse 时间文本与固定格式不符
var ErrParse = collector.ErrParse

const (
	// PublishedLayout 列表页元信息中的时间格式，例如 "January 5, 2024 at 14:30"
	PublishedLayout = "January 2, 2006 at 15:04"
	DateLayout      = "January 02, 2006"
	TimeLayout      = "15:04"
)

// SentimentRecord 写入存储层前的最终结构，URL 为自然主键
type SentimentRecord struct {
	Date      string  `json:"date"`
	Time      string  `json:"time"`
	URL       string  `json:"url"`
	Summary   string  `json:"summary"`
	Sentiment string  `json:"sentiment"`
	Score     float64 `json:"score"`
}

// SplitPublished 把 "Month Day, Year at HH:MM" 拆成日期与 24 小时制时间
func SplitPublished(raw string) (date, clock string, err error) {
	t, err := time.Parse(PublishedLayout, raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: published time %q: %v", ErrParse, raw, err)
	}
	return t.Format(DateLayout), t.Format(TimeLayout), nil
}

// Assemble 合并文章信息与分类结果
func Assemble(a collector.Article, res classifier.Result) (SentimentRecord, error) {
	date, clock, err := SplitPublished(a.PublishedRaw)
	if err != nil {
		return SentimentRecord{}, fmt.Errorf("%s: %w", a.URL, err)
	}
	return SentimentRecord{
		Date:      date,
		Time:      clock,
		URL:       a.URL,
		Summary:   a.Summary,
		Sentiment: res.Label,
		Score:     res.Score,
	}, nil
}

// SimpleProcessor 批量组装，并在本批次内按 URL 去重（先到先得，与存储层语义一致）
type SimpleProcessor struct {
	// SkipInvalid 为 true 时跳过时间格式错误的文章并记录其 URL，否则整批失败
	SkipInvalid bool
}

func NewSimpleProcessor(skipInvalid bool) *SimpleProcessor {
	return &SimpleProcessor{SkipInvalid: skipInvalid}
}

// Process articles 与 results 必须一一对应。返回组装好的记录以及 SkipInvalid 模式下被跳过的文章数
func (p *SimpleProcessor) Process(articles []collector.Article, results []classifier.Result) ([]SentimentRecord, int, error) {
	if len(articles) != len(results) {
		return nil, 0, fmt.Errorf("processor: %d articles but %d classification results", len(articles), len(results))
	}

	out := make([]SentimentRecord, 0, len(articles))
	seen := make(map[string]struct{}, len(articles))
	skipped := 0

	for i, a := range articles {
		rec, err := Assemble(a, results[i])
		if err != nil {
			if p.SkipInvalid {
				logger.Log.Warnf("skip article %s: %v", a.URL, err)
				skipped++
				continue
			}
			return nil, 0, err
		}
		if _, ok := seen[rec.URL]; ok {
			continue
		}
		seen[rec.URL] = struct{}{}
		out = append(out, rec)
	}

	return out, skipped, nil
}
