package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"
)

// scriptedChatModel 依次返回预设的回复或错误
type scriptedChatModel struct {
	replies []string
	errs    []error
	calls   int
}

func (m *scriptedChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	return &schema.Message{Role: schema.Assistant, Content: m.replies[i]}, nil
}

func (m *scriptedChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func newTestLLM(cm model.BaseChatModel) *LLMClassifier {
	l := newLLMClassifier(cm, rate.NewLimiter(rate.Inf, 1))
	l.baseDelay = time.Millisecond
	return l
}

func TestLLMClassifyParsesFencedJSON(t *testing.T) {
	cm := &scriptedChatModel{replies: []string{"```json\n{\"label\": \"Negative\", \"score\": 0.912}\n```"}}
	res, err := newTestLLM(cm).Classify(context.Background(), "Brent fell")
	if err != nil {
		t.Fatalf("Classify error: %v", err)
	}
	if res.Label != "negative" || res.Score != 0.91 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestLLMClassifyRetriesOnRateLimit(t *testing.T) {
	cm := &scriptedChatModel{
		errs:    []error{errors.New("error, status code: 429, Too Many Requests"), nil},
		replies: []string{"", `{"label":"neutral","score":0.5}`},
	}
	res, err := newTestLLM(cm).Classify(context.Background(), "x")
	if err != nil {
		t.Fatalf("Classify error: %v", err)
	}
	if res.Label != "neutral" || cm.calls != 2 {
		t.Fatalf("unexpected result %+v after %d calls", res, cm.calls)
	}
}

func TestLLMClassifyRejectsUnknownLabel(t *testing.T) {
	cm := &scriptedChatModel{replies: []string{
		`{"label":"bullish","score":0.9}`,
		`{"label":"bullish","score":0.9}`,
		`{"label":"bullish","score":0.9}`,
		`{"label":"bullish","score":0.9}`,
	}}
	_, err := newTestLLM(cm).Classify(context.Background(), "x")
	if !errors.Is(err, ErrClassify) {
		t.Fatalf("expected ErrClassify, got %v", err)
	}
	if cm.calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", cm.calls)
	}
}

func TestLLMClassifyHardErrorNotRetried(t *testing.T) {
	cm := &scriptedChatModel{errs: []error{errors.New("unauthorized")}, replies: []string{""}}
	_, err := newTestLLM(cm).Classify(context.Background(), "x")
	if !errors.Is(err, ErrClassify) || cm.calls != 1 {
		t.Fatalf("expected single failed call, got err=%v calls=%d", err, cm.calls)
	}
}
