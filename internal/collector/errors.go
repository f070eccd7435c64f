package collector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/LJTian/HeadlineHub/internal/source"
)

var (
	ErrNoTarget        = errors.New("source cannot serve a request without a query")
	ErrUnsupportedKind = errors.New("unsupported source kind")
)

// NetworkError 表示超时或连接失败
type NetworkError struct {
	Source  string
	URL     string
	Timeout bool
	Err     error
}

func (e *NetworkError) Error() string {
	what := "network error"
	if e.Timeout {
		what = "timeout"
	}
	return fmt.Sprintf("%s: %s fetching %s: %v", e.Source, what, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPStatusError 表示上游返回了非 2xx 状态码
type HTTPStatusError struct {
	Source     string
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d from %s", e.Source, e.StatusCode, e.URL)
}

// ParseError 表示响应体无法解析（markup / feed / json）
type ParseError struct {
	Source string
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse %s: %v", e.Source, e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (c *Collector) networkError(spec source.Spec, target string, err error) *NetworkError {
	if ue, ok := err.(*url.Error); ok {
		clone := *ue
		clone.URL = spec.Redact(ue.URL)
		err = &clone
	}
	return &NetworkError{
		Source:  spec.Name,
		URL:     spec.Redact(target),
		Timeout: isTimeout(err),
		Err:     err,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// isTransportError 判断是否为请求层面的失败（而不是 URL 本身非法等永久错误）
func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Op != "parse"
	}
	var ne net.Error
	return errors.As(err, &ne)
}
