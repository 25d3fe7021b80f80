// Copyright 2025 Tom Barlow
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

// Package cli holds shared helpers for the tissuesched command-line client:
// an HTTP client over the daemon's API, status rendering, interactive
// submission prompts, and jq-based result querying.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Client is a thin HTTP client over internal/api's surface, following
// internal/client.Client's option-constructor/addAuth shape.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userID     string
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer JWT sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithUserID sets the X-User-ID header sent when no token is configured.
func WithUserID(userID string) Option {
	return func(c *Client) { c.userID = userID }
}

// New builds a Client against baseURL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{httpClient: &http.Client{}, baseURL: baseURL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) addAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}
}

// do decodes the response body as `any` rather than a fixed map, since
// tissuesched's endpoints return both JSON objects (workflow/job views,
// status) and top-level JSON arrays (workflow/job listings).
func (c *Client) do(req *http.Request) (any, error) {
	c.addAuth(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	if len(body) == 0 {
		return nil, nil
	}

	var result any
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result, nil
}

// Get issues a GET request against path and decodes the JSON body.
func (c *Client) Get(ctx context.Context, path string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req)
}

// Post issues a POST request with a JSON body against path.
func (c *Client) Post(ctx context.Context, path string, body any) (any, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}
