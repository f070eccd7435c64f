package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/LJTian/HeadlineHub/internal/source"
)

// get 是 feed / api 共用的 GET 请求：非 2xx 返回 HTTPStatusError，连接与读取失败返回 NetworkError
func (c *Collector) get(ctx context.Context, spec source.Spec, target, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", spec.Name, err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.networkError(spec, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &HTTPStatusError{Source: spec.Name, URL: spec.Redact(target), StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBodyBytes))
	if err != nil {
		return nil, c.networkError(spec, target, err)
	}
	return body, nil
}

// contextTransport 让 colly 发出的请求绑定到本次采集的 context 上
type contextTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.WithContext(t.ctx))
}
