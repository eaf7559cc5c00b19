package authsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const maxResponseBytes = 4 << 20

func (m *Manager) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.config.HTTP.Timeout)
}

// Do issues an authenticated API request. GETs are memoized in the
// response cache so independent consumers asking the same question within
// the TTL share one network call. A 401 triggers exactly one silent
// refresh, and the request is retried exactly once only when that refresh
// succeeded; otherwise the original 401 is surfaced. Mutations invalidate
// the cached views of the resource they touched.
func (m *Manager) Do(ctx context.Context, req Request) (*Response, error) {
	if m.closed.Load() {
		return nil, ErrManagerClosed
	}
	if req.Method == "" || req.Path == "" || !strings.HasPrefix(req.Path, "/") {
		return nil, fmt.Errorf("%w: method=%q path=%q", ErrInvalidRequest, req.Method, req.Path)
	}

	key := req.Method + " " + req.Path
	cacheable := req.Method == http.MethodGet && !req.NoCache && !m.config.Cache.Disabled
	if cacheable {
		if resp, ok := m.cache.Get(key); ok {
			m.metrics.Inc(MetricCacheHit)
			return resp, nil
		}
		m.metrics.Inc(MetricCacheMiss)
	}

	resp, err := m.send(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if m.Refresh(ctx) {
			m.metrics.Inc(MetricRetryAfterRefresh)
			retry, err := m.send(ctx, req)
			if err != nil {
				return nil, err
			}
			resp = retry
		}
	}

	if req.Method == http.MethodGet {
		if cacheable && resp.OK() {
			m.cache.Set(key, resp)
		}
	} else {
		m.cache.Invalidate(invalidationPattern(req.Path))
	}
	return resp, nil
}

// Refresh extends the server-side session using the refresh credential in
// the session cookie. Concurrent callers share a single network call and
// its outcome; the call runs on the manager's own timeout, so one caller
// cancelling cannot fail the rest. Refresh never installs or clears the
// session; that remains the job of the next identity fetch.
func (m *Manager) Refresh(ctx context.Context) bool {
	if m.closed.Load() {
		return false
	}
	v, _, shared := m.refreshGroup.Do("refresh", func() (any, error) {
		m.metrics.Inc(MetricRefreshIssued)
		rctx, cancel := m.requestContext()
		defer cancel()
		resp, err := m.send(rctx, Request{Method: http.MethodPost, Path: "/auth/refresh"})
		if err != nil {
			m.metrics.Inc(MetricRefreshFailure)
			m.log.Warn("refresh transport failure", zap.Error(err))
			return false, nil
		}
		if !resp.OK() {
			m.metrics.Inc(MetricRefreshFailure)
			return false, nil
		}
		return true, nil
	})
	if shared {
		m.metrics.Inc(MetricRefreshShared)
	}
	ok, _ := v.(bool)
	return ok
}

// send performs one HTTP round trip and buffers the response. Credentials
// travel in the client's cookie jar; no token is attached here.
func (m *Manager) send(ctx context.Context, req Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", req.Method, req.Path, err)
		}
		body = bytes.NewReader(data)
	}

	url := strings.TrimRight(m.config.HTTP.BaseURL, "/") + req.Path
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if m.config.HTTP.UserAgent != "" {
		httpReq.Header.Set("User-Agent", m.config.HTTP.UserAgent)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpResp, err := m.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", req.Method, req.Path, err)
	}
	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
		Body:       data,
	}, nil
}

// invalidationPattern widens a mutation path to the resource it likely
// changed: "/users/me/preferences" evicts everything under "/users/me".
func invalidationPattern(path string) string {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 3)
	if len(parts) >= 2 {
		return "/" + parts[0] + "/" + parts[1]
	}
	return path
}
