// Package httpjson posts each flush as one JSON document to an HTTP collector.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/torosent/pulse/internal/httpclient"
	"github.com/torosent/pulse/internal/sink"
	"github.com/torosent/pulse/internal/tracing"
)

// Name is the registry key of this sink.
const Name = "httpjson"

const (
	defaultTimeout  = 10 * time.Second
	maxResponseBody = 1 << 20
)

// ErrRejected is returned when the collector answers {"success": false}.
var ErrRejected = errors.New("httpjson: collector rejected batch")

func init() {
	sink.Register(Name, func() sink.Sink { return New(nil) })
}

// Sink buffers snapshots and annotations and posts them on Flush.
type Sink struct {
	sink.Buffer

	client     *http.Client
	endpoint   string
	credential string
}

// New returns an unconfigured sink. A nil client gets a pooled default.
func New(client *http.Client) *Sink {
	if client == nil {
		client = httpclient.NewClient(defaultTimeout)
	}
	return &Sink{client: client}
}

// Setup records the collector URL and optional bearer credential. No request
// is made.
func (s *Sink) Setup(_ context.Context, endpoint, credential string) error {
	endpoint = strings.TrimSpace(endpoint)
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("httpjson: endpoint: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("httpjson: endpoint %q must be an absolute http(s) URL", endpoint)
	}
	s.endpoint = endpoint
	s.credential = strings.TrimSpace(credential)
	return nil
}

// Flush posts everything queued. Error detail is never sent: errorInfos is
// always an empty list to keep the payload bounded.
func (s *Sink) Flush(ctx context.Context) error {
	snaps, annotations := s.Drain()
	if len(snaps) == 0 && len(annotations) == 0 {
		return nil
	}
	payload, err := json.Marshal(sink.NewDocument(snaps, annotations, false))
	if err != nil {
		return fmt.Errorf("httpjson: encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("httpjson: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.credential != "" {
		req.Header.Set("Authorization", "Bearer "+s.credential)
	}
	tracing.InjectHTTPHeaders(ctx, req.Header)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("httpjson: post: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("httpjson: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("httpjson: unexpected status %d", resp.StatusCode)
	}
	return checkResponse(body)
}

// checkResponse accepts empty or non-JSON bodies. A JSON body that carries
// "success": false is a rejection.
func checkResponse(body []byte) error {
	if len(bytes.TrimSpace(body)) == 0 || !gjson.ValidBytes(body) {
		return nil
	}
	success := gjson.GetBytes(body, "success")
	if !success.Exists() || success.Bool() {
		return nil
	}
	msg := gjson.GetBytes(body, "message").String()
	if msg == "" {
		msg = gjson.GetBytes(body, "error").String()
	}
	if msg == "" {
		return ErrRejected
	}
	return fmt.Errorf("%w: %s", ErrRejected, msg)
}

// Teardown releases pooled connections.
func (s *Sink) Teardown(context.Context) error {
	s.client.CloseIdleConnections()
	return nil
}
