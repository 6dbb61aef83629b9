// Copyright 2023-25 the original author or authors.
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

// Package overpass queries an Overpass API instance for element history:
// the versions a changeset replaced and produced, and the current parents
// of elements about to change.
package overpass

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultEndpoints are the public Overpass instances, rotated per attempt.
var DefaultEndpoints = []string{
	"https://overpass-api.de/api/interpreter",
	"https://overpass.kumi.systems/api/interpreter",
}

const (
	// DefaultMaxIDsPerQuery bounds how many element ids one partition may
	// carry.
	DefaultMaxIDsPerQuery = 1000

	// DefaultMaxQueryLength bounds the rendered query size of one
	// partition.
	DefaultMaxQueryLength = 24 * 1024

	// DefaultWorkers bounds the partition queries in flight.
	DefaultWorkers = 2
)

// ProgressFunc is invoked once per completed partition, in deterministic
// partition order.
type ProgressFunc func(done, total int)

// Option configures how we set up the client.
type Option func(*Client)

// WithEndpoints lets you supply the Overpass instances to rotate across.
func WithEndpoints(endpoints ...string) Option {
	return func(c *Client) {
		c.endpoints = endpoints
	}
}

// WithHTTPClient lets you supply the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.hc = hc
	}
}

// WithWorkers lets you bound the number of partition queries in flight.
func WithWorkers(n int) Option {
	return func(c *Client) {
		c.workers = max(n, 1)
	}
}

// WithMaxIDsPerQuery lets you bound the element ids per partition.
func WithMaxIDsPerQuery(n int) Option {
	return func(c *Client) {
		c.maxIDs = max(n, 1)
	}
}

// WithMaxQueryLength lets you bound the rendered query size per partition.
func WithMaxQueryLength(n int) Option {
	return func(c *Client) {
		c.maxQueryLen = n
	}
}

// WithMaxRetries lets you bound the retry attempts per partition query.
func WithMaxRetries(n uint64) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithProgress lets you observe partition completion.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Client) {
		c.progress = fn
	}
}

// WithLogger lets you supply a logger for request diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// Client talks to Overpass.
type Client struct {
	endpoints   []string
	hc          *http.Client
	workers     int
	maxIDs      int
	maxQueryLen int
	maxRetries  uint64
	progress    ProgressFunc
	log         *slog.Logger

	attempts atomic.Uint64
}

// NewClient returns a client configured with options.
func NewClient(opts ...Option) *Client {
	c := &Client{
		endpoints:   DefaultEndpoints,
		hc:          &http.Client{Timeout: 185 * time.Second},
		workers:     DefaultWorkers,
		maxIDs:      DefaultMaxIDsPerQuery,
		maxQueryLen: DefaultMaxQueryLength,
		maxRetries:  3,
		log:         slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// endpoint picks the next instance in rotation.
func (c *Client) endpoint() string {
	n := c.attempts.Add(1) - 1

	return c.endpoints[int(n)%len(c.endpoints)]
}

// run posts one query with capped backoff, rotating endpoints between
// attempts. Exhausting retries fails the whole fetch, never yielding a
// partial result.
func (c *Client) run(ctx context.Context, query string) ([]byte, error) {
	var out []byte

	op := func() error {
		endpoint := c.endpoint()

		form := url.Values{"data": {query}}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
			strings.NewReader(form.Encode()))
		if err != nil {
			return backoff.Permanent(err)
		}

		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("overpass: %s returned status %d", endpoint, resp.StatusCode)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
				resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}

			return err
		}

		out = payload

		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		c.log.Warn("retrying Overpass query", "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		return nil, err
	}

	if len(out) == 0 {
		return nil, errors.New("overpass: empty response")
	}

	return out, nil
}
