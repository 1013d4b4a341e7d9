package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/LJTian/EnergySentiment/internal/processor"
	"github.com/LJTian/EnergySentiment/internal/storage"
)

type listResponse struct {
	Code string              `json:"code"`
	Data []storage.Sentiment `json:"data"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *storage.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := storage.NewStore(filepath.Join(t.TempDir(), "api.db"), "")
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	_, err = store.SaveBatch(context.Background(), []processor.SentimentRecord{
		{Date: "January 05, 2024", Time: "14:30", URL: "https://a.com/1", Summary: "up", Sentiment: "positive", Score: 0.87},
		{Date: "January 05, 2024", Time: "15:00", URL: "https://a.com/2", Summary: "down", Sentiment: "negative", Score: 0.66},
	})
	if err != nil {
		t.Fatalf("SaveBatch error: %v", err)
	}

	r := gin.New()
	NewServer(store).RegisterRoutes(r)
	return r, store
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestListSentimentFiltersByLabel(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sentiment?label=negative&limit=abc", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}

	var resp listResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != "ok" || len(resp.Data) != 1 || resp.Data[0].URL != "https://a.com/2" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSentimentStats(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sentiment/stats", nil))

	var resp struct {
		Data map[string]int64 `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data["positive"] != 1 || resp.Data["negative"] != 1 {
		t.Fatalf("unexpected stats: %v", resp.Data)
	}
}

func TestListRunsEmpty(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}
