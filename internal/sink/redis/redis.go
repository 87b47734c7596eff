// Package redis appends flushes to Redis streams: snapshots go to
// "<prefix>:metrics" and annotations to "<prefix>:events".
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/torosent/pulse/internal/sink"
)

// Name is the registry key of this sink.
const Name = "redis"

const (
	defaultPrefix = "pulse"
	// streamMaxLen caps each stream approximately (XADD MAXLEN ~).
	streamMaxLen = 100_000
	pingTimeout  = 2 * time.Second
)

func init() {
	sink.Register(Name, func() sink.Sink { return New() })
}

type Sink struct {
	sink.Buffer

	client *redis.Client
	prefix string
}

func New() *Sink { return &Sink{prefix: defaultPrefix} }

// Setup connects to a redis:// or rediss:// URL. An optional "prefix" query
// parameter names the streams; credential, when set, is the password.
func (s *Sink) Setup(ctx context.Context, endpoint, credential string) error {
	raw, prefix, err := splitPrefix(strings.TrimSpace(endpoint))
	if err != nil {
		return err
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return fmt.Errorf("redis: endpoint: %w", err)
	}
	if credential != "" {
		opts.Password = credential
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis: ping %s: %w", opts.Addr, err)
	}
	s.client = client
	if prefix != "" {
		s.prefix = prefix
	}
	return nil
}

// splitPrefix removes the "prefix" query parameter, which go-redis would
// reject as an unknown option.
func splitPrefix(endpoint string) (string, string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", "", fmt.Errorf("redis: endpoint: %w", err)
	}
	q := u.Query()
	prefix := strings.TrimSpace(q.Get("prefix"))
	q.Del("prefix")
	u.RawQuery = q.Encode()
	return u.String(), prefix, nil
}

// Flush writes everything queued in one pipeline.
func (s *Sink) Flush(ctx context.Context) error {
	snaps, annotations := s.Drain()
	if len(snaps) == 0 && len(annotations) == 0 {
		return nil
	}
	if s.client == nil {
		return fmt.Errorf("redis: sink is not set up")
	}
	entries, err := streamEntries(s.prefix, sink.NewDocument(snaps, annotations, true))
	if err != nil {
		return err
	}
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, args := range entries {
			pipe.XAdd(ctx, args)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: xadd: %w", err)
	}
	return nil
}

// streamEntries encodes each record as a stream entry with the transaction or
// event name as a plain field, so consumers can filter without decoding.
func streamEntries(prefix string, doc sink.Document) ([]*redis.XAddArgs, error) {
	out := make([]*redis.XAddArgs, 0, len(doc.Metrics)+len(doc.Events))
	for _, ev := range doc.Events {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("redis: encode event: %w", err)
		}
		out = append(out, &redis.XAddArgs{
			Stream: prefix + ":events",
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"event": ev.EventName, "data": string(data)},
		})
	}
	for _, m := range doc.Metrics {
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("redis: encode metric: %w", err)
		}
		out = append(out, &redis.XAddArgs{
			Stream: prefix + ":metrics",
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"transaction": m.Transaction, "data": string(data)},
		})
	}
	return out, nil
}

func (s *Sink) Teardown(context.Context) error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	if err != nil {
		return fmt.Errorf("redis: close: %w", err)
	}
	return nil
}
