package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/torosent/pulse/internal/config"
)

// RequestBuilder produces fresh requests for one load target.
type RequestBuilder struct {
	label   string
	method  string
	target  string
	headers http.Header
	body    string
}

// NewRequestBuilder validates target and the shared headers. The target's
// method wins over defaultMethod when set.
func NewRequestBuilder(target config.Target, defaultMethod string, headers map[string]string) (*RequestBuilder, error) {
	url := strings.TrimSpace(target.URL)
	if url == "" {
		return nil, errors.New("target URL is required")
	}

	method := strings.TrimSpace(target.Method)
	if method == "" {
		method = strings.TrimSpace(defaultMethod)
	}
	if method == "" {
		method = http.MethodGet
	}

	hdrs, err := canonicalHeaders(headers)
	if err != nil {
		return nil, err
	}

	return &RequestBuilder{
		label:   target.Label,
		method:  strings.ToUpper(method),
		target:  url,
		headers: hdrs,
		body:    target.Body,
	}, nil
}

func canonicalHeaders(in map[string]string) (http.Header, error) {
	headers := http.Header{}
	for key, value := range in {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		headers.Set(canonicalKey, value)
	}
	return headers, nil
}

// Label is the metrics label of the built requests.
func (b *RequestBuilder) Label() string { return b.label }

// Method is the HTTP method of the built requests.
func (b *RequestBuilder) Method() string { return b.method }

// URL is the request target.
func (b *RequestBuilder) URL() string { return b.target }

// Build returns a new request bound to ctx.
func (b *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var body io.Reader
	if b.body != "" {
		body = strings.NewReader(b.body)
	}
	req, err := http.NewRequestWithContext(ctx, b.method, b.target, body)
	if err != nil {
		return nil, err
	}
	req.Header = b.headers.Clone()
	if b.body != "" {
		payload := b.body
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(payload)), nil
		}
	}
	return req, nil
}

// NewClient returns a pooled client suited to sustained load. A negative
// timeout means none.
func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
