package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/LJTian/EnergySentiment/internal/config"
	"github.com/LJTian/EnergySentiment/internal/logger"
)

const llmPrompt = `You are a financial news sentiment classifier.
Classify the sentiment of the following energy market news summary as exactly one of: positive, neutral, negative.
Reply with JSON only, no markdown, in the form {"label": "positive", "score": 0.87} where score is your confidence in [0,1].

Summary:
%s`

var llmLabels = map[string]struct{}{
	"positive": {},
	"neutral":  {},
	"negative": {},
}

// LLMClassifier 通过 OpenAI 协议兼容的大模型做情感分类，带限流与 429 重试
type LLMClassifier struct {
	chatModel  model.BaseChatModel
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
}

func NewLLMClassifier(ctx context.Context, cfg config.LLMConfig) (*LLMClassifier, error) {
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("init llm: %w", err)
	}
	return newLLMClassifier(chatModel, newLimiter(cfg.RPM, cfg.QPS)), nil
}

func newLLMClassifier(cm model.BaseChatModel, limiter *rate.Limiter) *LLMClassifier {
	return &LLMClassifier{
		chatModel:  cm,
		limiter:    limiter,
		maxRetries: 3,
		baseDelay:  2 * time.Second,
	}
}

func newLimiter(rpm, qps int) *rate.Limiter {
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	if qps <= 0 {
		qps = 1
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), qps)
}

func (l *LLMClassifier) Classify(ctx context.Context, text string) (Result, error) {
	var lastErr error

	for i := 0; i <= l.maxRetries; i++ {
		if err := l.limiter.Wait(ctx); err != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrClassify, err)
		}

		messages := []*schema.Message{
			{Role: schema.System, Content: "You are a JSON generator. Output only JSON."},
			{Role: schema.User, Content: fmt.Sprintf(llmPrompt, text)},
		}

		resp, err := l.chatModel.Generate(ctx, messages)
		if err != nil {
			if isRateLimited(err) && i < l.maxRetries {
				lastErr = err
				delay := l.baseDelay * time.Duration(1<<i)
				logger.Log.Warnf("llm rate limited, retry in %s", delay)
				if err := sleepCtx(ctx, delay); err != nil {
					return Result{}, fmt.Errorf("%w: %w", ErrClassify, err)
				}
				continue
			}
			return Result{}, fmt.Errorf("%w: %w", ErrClassify, err)
		}

		res, err := parseLLMReply(resp.Content)
		if err != nil {
			lastErr = err
			logger.Log.Debugf("llm reply rejected (attempt %d): %v", i+1, err)
			continue
		}
		return res, nil
	}
	return Result{}, fmt.Errorf("%w: failed after retries: %w", ErrClassify, lastErr)
}

func parseLLMReply(content string) (Result, error) {
	clean := strings.TrimSpace(content)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")

	var reply struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(clean)), &reply); err != nil {
		return Result{}, fmt.Errorf("json unmarshal: %w", err)
	}
	res, err := newResult(reply.Label, reply.Score)
	if err != nil {
		return Result{}, err
	}
	if _, ok := llmLabels[res.Label]; !ok {
		return Result{}, fmt.Errorf("%w: unknown label %q", ErrClassify, res.Label)
	}
	return res, nil
}

func isRateLimited(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "too many requests")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
