package collector

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/LJTian/HeadlineHub/internal/source"
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/gocolly/colly/v2"
)

// scrapeFetcher 抓取 HTML 页面，按 Spec.Rule 选择节点：可见文本作为标题，href 作为链接
type scrapeFetcher struct {
	c *Collector
}

func (f *scrapeFetcher) fetch(ctx context.Context, spec source.Spec, target string) ([]NewsItem, error) {
	// 选择器写错时按解析错误处理，不当作 0 条结果
	if _, err := cascadia.Compile(spec.Rule); err != nil {
		return nil, &ParseError{Source: spec.Name, Format: "selector", Err: err}
	}

	col := colly.NewCollector(
		colly.UserAgent(f.c.opts.UserAgent),
		colly.AllowURLRevisit(),
		// 状态码由下面自行判断，这样 4xx/5xx 能区分为 HTTPStatusError
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(int(f.c.opts.MaxBodyBytes)),
	)
	col.WithTransport(contextTransport{ctx: ctx, base: f.c.opts.Transport})
	col.SetRequestTimeout(f.c.opts.Timeout)

	var (
		status   int
		parseErr error
		items    = make([]NewsItem, 0, 32)
	)

	// colly 只对 html 类型的响应触发 OnHTML；其它类型（text/plain、缺省）自行用 goquery 解析
	col.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		if status < 200 || status > 299 || isHTML(r.Headers.Get("Content-Type")) {
			return
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
		if err != nil {
			parseErr = err
			return
		}
		doc.Find(spec.Rule).Each(func(_ int, sel *goquery.Selection) {
			items = append(items, extractItem(sel))
		})
	})

	col.OnHTML(spec.Rule, func(e *colly.HTMLElement) {
		items = append(items, extractItem(e.DOM))
	})

	err := col.Visit(target)
	switch {
	case err != nil && status == 0:
		if isTransportError(err) {
			return nil, f.c.networkError(spec, target, err)
		}
		return nil, fmt.Errorf("%s: scrape %s: %w", spec.Name, spec.Redact(target), err)
	case status < 200 || status > 299:
		return nil, &HTTPStatusError{Source: spec.Name, URL: spec.Redact(target), StatusCode: status}
	case err != nil:
		return nil, &ParseError{Source: spec.Name, Format: "html", Err: err}
	case parseErr != nil:
		return nil, &ParseError{Source: spec.Name, Format: "html", Err: parseErr}
	}
	return items, nil
}

func isHTML(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "html")
}

// extractItem 可见文本作为标题，缺省时退回 title 属性
func extractItem(sel *goquery.Selection) NewsItem {
	title := strings.Join(strings.Fields(sel.Text()), " ")
	if title == "" {
		title = strings.TrimSpace(sel.AttrOr("title", ""))
	}
	return NewsItem{
		Title: title,
		URL:   anchorHref(sel),
	}
}

// anchorHref 取节点自身的 href；节点不是链接时，依次尝试子孙链接与外层链接
func anchorHref(sel *goquery.Selection) string {
	if href, ok := sel.Attr("href"); ok {
		return href
	}
	if href, ok := sel.Find("a[href]").First().Attr("href"); ok {
		return href
	}
	if href, ok := sel.Closest("a[href]").Attr("href"); ok {
		return href
	}
	return ""
}
