package httpclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/torosent/pulse/internal/config"
)

func TestBuildRequestWithHeaders(t *testing.T) {
	target := config.Target{
		Label:  "create",
		URL:    "http://example.com/api",
		Method: "post",
		Body:   `{"hello":"world"}`,
	}
	headers := map[string]string{
		"content-type": "application/json",
		"X-Trace-Id":   "12345",
	}

	builder, err := NewRequestBuilder(target, "GET", headers)
	if err != nil {
		t.Fatalf("expected builder, got error: %v", err)
	}
	if builder.Label() != "create" {
		t.Fatalf("expected label create, got %q", builder.Label())
	}

	req, err := builder.Build(context.Background())
	if err != nil {
		t.Fatalf("expected request, got error: %v", err)
	}

	if req.Method != http.MethodPost {
		t.Fatalf("expected method POST, got %s", req.Method)
	}
	if req.URL.String() != target.URL {
		t.Fatalf("expected URL %s, got %s", target.URL, req.URL.String())
	}
	if req.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("expected canonical Content-Type header, got %q", req.Header.Get("Content-Type"))
	}
	if req.Header.Get("X-Trace-Id") != "12345" {
		t.Fatalf("expected X-Trace-Id header, got %q", req.Header.Get("X-Trace-Id"))
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("read body failed: %v", err)
	}
	if string(body) != target.Body {
		t.Fatalf("expected body %q, got %q", target.Body, string(body))
	}
	if req.ContentLength != int64(len(target.Body)) {
		t.Fatalf("expected content length %d, got %d", len(target.Body), req.ContentLength)
	}
	if req.GetBody == nil {
		t.Fatalf("expected request to support body replay")
	}
	replay, err := req.GetBody()
	if err != nil {
		t.Fatalf("expected replay body, got error: %v", err)
	}
	replayBytes, _ := io.ReadAll(replay)
	if string(replayBytes) != target.Body {
		t.Fatalf("expected replay body %q, got %q", target.Body, string(replayBytes))
	}
}

func TestBuildReturnsIndependentHeaders(t *testing.T) {
	builder, err := NewRequestBuilder(config.Target{URL: "http://example.com"}, "", map[string]string{"X-A": "1"})
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}
	first, _ := builder.Build(context.Background())
	first.Header.Set("Traceparent", "changed")
	second, _ := builder.Build(context.Background())
	if second.Header.Get("Traceparent") != "" {
		t.Fatalf("headers leaked between requests: %v", second.Header)
	}
	if second.Method != http.MethodGet {
		t.Fatalf("expected GET fallback, got %s", second.Method)
	}
	if second.Body != nil && second.Body != http.NoBody {
		t.Fatalf("expected no body, got %T", second.Body)
	}
}

func TestRequestBuilderMethodFallback(t *testing.T) {
	tests := []struct {
		targetMethod  string
		defaultMethod string
		want          string
	}{
		{"", "", http.MethodGet},
		{"", "delete", http.MethodDelete},
		{"patch", "POST", http.MethodPatch},
	}
	for _, tt := range tests {
		b, err := NewRequestBuilder(config.Target{URL: "http://example.com", Method: tt.targetMethod}, tt.defaultMethod, nil)
		if err != nil {
			t.Fatalf("NewRequestBuilder() error = %v", err)
		}
		if b.Method() != tt.want {
			t.Errorf("Method() = %q, want %q", b.Method(), tt.want)
		}
	}
}

func TestRequestBuilderRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		target  config.Target
		headers map[string]string
	}{
		{"empty url", config.Target{URL: "  "}, nil},
		{"empty header key", config.Target{URL: "http://example.com"}, map[string]string{"": "v"}},
		{"newline in key", config.Target{URL: "http://example.com"}, map[string]string{"Bad\nKey": "v"}},
		{"newline in value", config.Target{URL: "http://example.com"}, map[string]string{"X-Key": "a\r\nb"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRequestBuilder(tt.target, "GET", tt.headers); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestClientTimeoutApplied(t *testing.T) {
	timeout := 50 * time.Millisecond
	client := NewClient(timeout)
	defer client.CloseIdleConnections()

	if client.Timeout != timeout {
		t.Fatalf("expected client timeout %s, got %s", timeout, client.Timeout)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(timeout * 3)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if resp != nil {
		resp.Body.Close()
	}
	if err == nil {
		t.Fatalf("expected timeout error, got nil")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		var netErr net.Error
		if !errors.As(err, &netErr) || !netErr.Timeout() {
			t.Fatalf("expected timeout error, got %v", err)
		}
	}

	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", client.Transport)
	}
	if transport.MaxIdleConns == 0 || transport.IdleConnTimeout == 0 {
		t.Fatalf("expected pooled transport, got %+v", transport)
	}
}

func TestNewClientNegativeTimeout(t *testing.T) {
	if got := NewClient(-time.Second).Timeout; got != 0 {
		t.Fatalf("expected no timeout, got %s", got)
	}
}
