package classifier

import (
	"context"
	"fmt"

	"github.com/LJTian/EnergySentiment/internal/config"
)

// New 按配置选择分类后端
func New(ctx context.Context, cfg *config.Config) (Classifier, error) {
	switch cfg.Classifier {
	case config.ClassifierHF:
		return NewHFClassifier(cfg.HF.APIURL, cfg.HF.Model, cfg.HF.Token), nil
	case config.ClassifierLLM:
		c, err := NewLLMClassifier(ctx, cfg.LLM)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown classifier %q", cfg.Classifier)
	}
}
