package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/net/html/charset"

	"github.com/LJTian/EnergySentiment/internal/logger"
)

// ErrFetch 任意一个列表页抓取失败（网络错误、非 2xx、取消）都会以此包装
var ErrFetch = errors.New("fetch failed")

// listingPath 列表页路径模板，只由 1 开始的页码决定
const listingPath = "/Latest-Energy-News/World-News/Page-%d.html"

// FetchMode 抓取策略
type FetchMode string

const (
	Concurrent FetchMode = "concurrent"
	Sequential FetchMode = "sequential"
)

// Page 一次抓取得到的原始列表页，解析后即丢弃
type Page struct {
	SourceURL string
	HTML      string
}

// PageFetcher 抽象列表页抓取
type PageFetcher interface {
	FetchPages(ctx context.Context, count int) ([]Page, error)
}

// ListingFetcher 使用 colly 抓取固定模板的新闻列表页
type ListingFetcher struct {
	BaseURL   string
	Mode      FetchMode
	Timeout   time.Duration
	UserAgent string
}

func NewListingFetcher(baseURL string, mode FetchMode, timeout time.Duration) *ListingFetcher {
	return &ListingFetcher{
		BaseURL:   baseURL,
		Mode:      mode,
		Timeout:   timeout,
		UserAgent: "EnergySentimentBot/1.0",
	}
}

// PageURL 返回第 page 页（从 1 开始）的列表页地址
func PageURL(baseURL string, page int) string {
	return strings.TrimRight(baseURL, "/") + fmt.Sprintf(listingPath, page)
}

// PageURLs 返回第 1..count 页的地址
func PageURLs(baseURL string, count int) []string {
	urls := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		urls = append(urls, PageURL(baseURL, i))
	}
	return urls
}

// FetchPages 抓取 count 个列表页。并发模式下一次性发出全部请求并等待全部完成；
// 顺序模式下逐个请求。任一页失败则整批失败，不返回部分结果。
func (f *ListingFetcher) FetchPages(ctx context.Context, count int) ([]Page, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: page count must be positive, got %d", ErrFetch, count)
	}

	c := colly.NewCollector(
		colly.UserAgent(f.UserAgent),
		colly.Async(f.Mode != Sequential),
	)
	if f.Timeout > 0 {
		c.SetRequestTimeout(f.Timeout)
	}
	// 让取消信号传递到正在进行的请求
	c.WithTransport(&ctxTransport{ctx: ctx, base: http.DefaultTransport})

	var (
		mu    sync.Mutex
		pages = make([]Page, 0, count)
		errs  []error
	)

	c.OnRequest(func(r *colly.Request) {
		logger.Log.Debugf("fetch %s", r.URL)
	})

	c.OnResponse(func(r *colly.Response) {
		html, err := decodeBody(r.Body, r.Headers.Get("Content-Type"))
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: decode body: %w", r.Request.URL, err))
			return
		}
		pages = append(pages, Page{SourceURL: r.Request.URL.String(), HTML: html})
	})

	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		defer mu.Unlock()
		if r != nil && r.Request != nil {
			err = fmt.Errorf("%s (status %d): %w", r.Request.URL, r.StatusCode, err)
		}
		errs = append(errs, err)
	})

	for _, u := range PageURLs(f.BaseURL, count) {
		if ctx.Err() != nil {
			break
		}
		if err := c.Visit(u); err != nil {
			c.Wait()
			return nil, fmt.Errorf("%w: visit %s: %w", ErrFetch, u, err)
		}
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrFetch, errors.Join(errs...))
	}
	if len(pages) != count {
		return nil, fmt.Errorf("%w: got %d of %d pages", ErrFetch, len(pages), count)
	}

	logger.Log.Infof("fetched %d pages (%s)", len(pages), f.Mode)
	return pages, nil
}

// decodeBody 把响应体转为 UTF-8。Content-Type 带 charset 时 colly 已完成转码，原样返回；
// 否则按 BOM / <meta> 声明嗅探编码
func decodeBody(body []byte, contentType string) (string, error) {
	if strings.Contains(strings.ToLower(contentType), "charset") {
		return string(body), nil
	}
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

type ctxTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t *ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}
