package collector

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrParse 页面结构缺少预期的子元素或时间格式不符
var ErrParse = errors.New("parse failed")

const (
	articleBlockSelector = "div.categoryArticle__content"
	metaSelector         = "p.categoryArticle__meta"
	excerptSelector      = "p.categoryArticle__excerpt"
)

// Article 列表页中的一条新闻摘要
type Article struct {
	// PublishedRaw 形如 "January 5, 2024 at 14:30"
	PublishedRaw string
	URL          string
	Summary      string
}

// summaryReplacer 去掉省略号（含其常见的乱码形式）与句点，替换不换行空格和换行
var summaryReplacer = strings.NewReplacer(
	"\u00e2\u20ac\u00a6", "",
	"…", "",
	".", "",
	"\u00a0", " ",
	"\r\n", " ",
	"\n", " ",
)

// NormalizeSummary 对摘要做文本规范化，重复调用结果不变。
// 去掉句点后乱码省略号的片段可能重新拼合，因此替换到结果不再变化为止。
func NormalizeSummary(s string) string {
	for {
		out := summaryReplacer.Replace(s)
		if out == s {
			return out
		}
		s = out
	}
}

// ExtractArticles 从列表页中抽取全部新闻块。任一块缺少链接、元信息或摘要段落时整页失败；
// 没有匹配块时返回空结果。
func ExtractArticles(page Page) ([]Article, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, page.SourceURL, err)
	}

	blocks := doc.Find(articleBlockSelector)
	articles := make([]Article, 0, blocks.Length())

	var blockErr error
	blocks.EachWithBreak(func(i int, s *goquery.Selection) bool {
		a, err := extractBlock(s, page.SourceURL)
		if err != nil {
			blockErr = fmt.Errorf("%w: %s block %d: %v", ErrParse, page.SourceURL, i, err)
			return false
		}
		articles = append(articles, a)
		return true
	})
	if blockErr != nil {
		return nil, blockErr
	}
	return articles, nil
}

func extractBlock(s *goquery.Selection, sourceURL string) (Article, error) {
	link := s.Find("a").First()
	if link.Length() == 0 {
		return Article{}, errors.New("missing link")
	}
	// href 原样保留，不做裁剪；带前导空白等无法解析的地址按解析失败处理
	href, ok := link.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return Article{}, errors.New("missing link href")
	}
	articleURL, err := absoluteURL(href, sourceURL)
	if err != nil {
		return Article{}, err
	}

	meta := s.Find(metaSelector).First()
	if meta.Length() == 0 {
		return Article{}, errors.New("missing meta paragraph")
	}
	published, _, _ := strings.Cut(meta.Text(), "|")

	excerpt := s.Find(excerptSelector).First()
	if excerpt.Length() == 0 {
		return Article{}, errors.New("missing excerpt paragraph")
	}

	return Article{
		PublishedRaw: strings.TrimSpace(published),
		URL:          articleURL,
		Summary:      NormalizeSummary(excerpt.Text()),
	}, nil
}

// absoluteURL 站点给出的是绝对地址时原样保留；相对地址按所在页补全
func absoluteURL(href, sourceURL string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid link %q: %w", href, err)
	}
	if u.IsAbs() {
		return href, nil
	}
	base, err := url.Parse(sourceURL)
	if err != nil || !base.IsAbs() {
		return "", fmt.Errorf("relative link %q without absolute page url", href)
	}
	return base.ResolveReference(u).String(), nil
}
