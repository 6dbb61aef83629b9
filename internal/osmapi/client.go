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

// Package osmapi is a minimal OpenStreetMap API 0.6 client covering the
// calls a changeset revert needs.
package osmapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultEndpoint is the production OSM API base URL.
const DefaultEndpoint = "https://api.openstreetmap.org/api/0.6"

// ErrNotFound reports a 404 from the API.
var ErrNotFound = errors.New("osmapi: not found")

// Credentials authenticate requests. Token takes precedence over the
// basic-auth pair when both are set.
type Credentials struct {
	Username string
	Password string
	Token    string
}

// Option configures how we set up the client.
type Option func(*Client)

// WithEndpoint lets you point the client at a different API base URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient lets you supply the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.hc = hc
	}
}

// WithUserAgent lets you set the User-Agent header on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithMaxRetries lets you bound the retry attempts per request.
func WithMaxRetries(n uint64) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithLogger lets you supply a logger for request diagnostics.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// Client talks to the OSM API.
type Client struct {
	endpoint   string
	hc         *http.Client
	creds      Credentials
	userAgent  string
	maxRetries uint64
	log        *slog.Logger
}

// NewClient returns a client authenticated with creds, configured with
// options.
func NewClient(creds Credentials, opts ...Option) *Client {
	c := &Client{
		endpoint:   DefaultEndpoint,
		hc:         &http.Client{Timeout: 30 * time.Second},
		creds:      creds,
		userAgent:  "osm-revert",
		maxRetries: 3,
		log:        slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// apiError is a non-2xx response; 4xx instances are never retried.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("osmapi: status %d: %s", e.status, e.body)
}

// do issues one request with capped exponential backoff. Transient
// failures (network errors, 429, 5xx) are retried; everything else is
// permanent.
func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) ([]byte, error) {
	var out []byte

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}

		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		c.authorize(req)

		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			out = payload

			return nil
		}

		apiErr := &apiError{status: resp.StatusCode, body: truncate(payload)}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return apiErr
		}

		return backoff.Permanent(apiErr)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		c.log.Warn("retrying OSM API request", "method", method, "path", path, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.status == http.StatusNotFound {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	return out, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)

	switch {
	case c.creds.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.creds.Token)
	case c.creds.Username != "":
		req.SetBasicAuth(c.creds.Username, c.creds.Password)
	}
}

func truncate(body []byte) string {
	const limit = 256

	if len(body) > limit {
		body = body[:limit]
	}

	return string(bytes.TrimSpace(body))
}
