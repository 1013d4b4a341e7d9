package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrClassify 外部情感分类能力调用失败或返回了无法使用的结果
var ErrClassify = errors.New("classification failed")

// Result 单条文本的分类结果，Score 已保留两位小数
type Result struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classifier 抽象情感分类能力，便于在测试中替换为固定返回值的实现
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// RoundScore 保留两位小数
func RoundScore(score float64) float64 {
	return math.Round(score*100) / 100
}

// newResult 统一做标签规范化、取值校验与四舍五入
func newResult(label string, score float64) (Result, error) {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return Result{}, fmt.Errorf("%w: empty label", ErrClassify)
	}
	if math.IsNaN(score) || score < 0 || score > 1 {
		return Result{}, fmt.Errorf("%w: score %v out of range [0,1]", ErrClassify, score)
	}
	return Result{Label: label, Score: RoundScore(score)}, nil
}

// ClassifyBatch 逐条调用分类器，输出与输入一一对应；任一条失败即整体失败
func ClassifyBatch(ctx context.Context, c Classifier, texts []string) ([]Result, error) {
	out := make([]Result, 0, len(texts))
	for i, text := range texts {
		res, err := c.Classify(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("classify item %d: %w", i, err)
		}
		out = append(out, res)
	}
	return out, nil
}
