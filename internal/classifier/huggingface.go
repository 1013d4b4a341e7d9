package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	hfMaxResponseBytes = 256 * 1024
	hfClientTimeout    = 30 * time.Second
)

// HFClassifier 调用 Hugging Face Inference API（或同协议的自建推理服务）做金融新闻情感分类
type HFClassifier struct {
	endpoint string
	token    string
	client   *http.Client
}

func NewHFClassifier(apiURL, model, token string) *HFClassifier {
	endpoint := strings.TrimRight(apiURL, "/")
	if model != "" {
		endpoint += "/" + strings.TrimLeft(model, "/")
	}
	return &HFClassifier{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: hfClientTimeout},
	}
}

type hfLabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (h *HFClassifier) Classify(ctx context.Context, text string) (Result, error) {
	payload, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return Result{}, fmt.Errorf("%w: marshal request: %w", ErrClassify, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("%w: build request: %w", ErrClassify, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrClassify, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, hfMaxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("%w: read response: %w", ErrClassify, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: unexpected status %d: %s", ErrClassify, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	ranked, err := decodeRanked(body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrClassify, err)
	}
	if len(ranked) == 0 {
		return Result{}, fmt.Errorf("%w: empty prediction list", ErrClassify)
	}

	top := ranked[0]
	for _, ls := range ranked[1:] {
		if ls.Score > top.Score {
			top = ls
		}
	}
	return newResult(top.Label, top.Score)
}

// decodeRanked 兼容 [[{label,score}]]（单条输入的批量格式）与 [{label,score}] 两种返回
func decodeRanked(body []byte) ([]hfLabelScore, error) {
	var nested [][]hfLabelScore
	if err := json.Unmarshal(body, &nested); err == nil {
		if len(nested) == 0 {
			return nil, nil
		}
		return nested[0], nil
	}
	var flat []hfLabelScore
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("unmarshal predictions: %w", err)
	}
	return flat, nil
}
