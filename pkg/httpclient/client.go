// Copyright 2026 The Chatbroker Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package httpclient provides an HTTP client with retry and exponential
// backoff for the outbound calls the translation cascade makes against
// third-party translation and model endpoints.
package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// RetryStrategy describes how a failed response should be retried.
type RetryStrategy int

const (
	NoRetry RetryStrategy = iota
	ConservativeRetry
)

// StrategyFunc maps a status code to a retry strategy.
type StrategyFunc func(int) RetryStrategy

// Client wraps http.Client with bounded retries and backoff.
type Client struct {
	client       *http.Client
	maxRetries   int
	baseDelay    time.Duration
	maxDelay     time.Duration
	strategyFunc StrategyFunc
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option      { return func(cl *Client) { cl.client = c } }
func WithMaxRetries(n int) Option               { return func(cl *Client) { cl.maxRetries = n } }
func WithBaseDelay(d time.Duration) Option      { return func(cl *Client) { cl.baseDelay = d } }
func WithMaxDelay(d time.Duration) Option       { return func(cl *Client) { cl.maxDelay = d } }
func WithStrategy(f StrategyFunc) Option        { return func(cl *Client) { cl.strategyFunc = f } }

// New builds a Client with sane defaults: 2 retries, 500ms base delay.
func New(opts ...Option) *Client {
	c := &Client{
		client:       &http.Client{Timeout: 10 * time.Second},
		maxRetries:   2,
		baseDelay:    500 * time.Millisecond,
		maxDelay:     5 * time.Second,
		strategyFunc: DefaultStrategy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultStrategy retries server-side/transient statuses conservatively
// and never retries on everything else, including the 4xx client errors
// the translation cascade treats as "try a different body encoding"
// signals rather than retry signals.
func DefaultStrategy(status int) RetryStrategy {
	switch status {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable,
		http.StatusBadGateway, http.StatusGatewayTimeout, http.StatusInternalServerError:
		return ConservativeRetry
	default:
		return NoRetry
	}
}

// Do executes req with retry-on-transient-failure semantics. The
// request body, if any, is buffered so it can be replayed across
// attempts.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("httpclient: read request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries {
				c.sleep(attempt, 0)
				continue
			}
			return nil, err
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		strategy := c.strategyFunc(resp.StatusCode)
		if strategy == NoRetry || attempt >= c.maxRetries {
			return resp, nil
		}

		delay := retryAfter(resp.Header)
		resp.Body.Close()
		c.sleep(attempt, delay)
	}
	return nil, lastErr
}

func (c *Client) sleep(attempt int, hint time.Duration) {
	delay := hint
	if delay <= 0 {
		backoff := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
		jitter := time.Duration(rand.Float64() * float64(backoff) * 0.1)
		delay = backoff + jitter
	}
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	slog.Debug("httpclient: retrying after delay", "attempt", attempt+1, "delay", delay)
	time.Sleep(delay)
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}
