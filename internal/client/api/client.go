// Package api is the client for the remote artifact service. Resources are
// addressed by name (artifacts, users, tokens) and expose the
// find/get/create/update/patch/remove verbs; the wire format is JSON over
// HTTP and is otherwise opaque to the rest of the client.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/portphilio/portkeeper/internal/common"
)

// TokenSource supplies the current access token for outbound requests.
// An empty string means the request goes out unauthenticated.
type TokenSource func() string

// Client talks to the remote service.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	token   TokenSource
	timeout time.Duration
}

// New builds a Client for the given base URL. The timeout bounds every
// request issued through the client.
func New(baseURL string, token TokenSource, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid api base url %q: %w", baseURL, err)
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		baseURL: u,
		http:    &http.Client{},
		token:   token,
		timeout: timeout,
	}, nil
}

// Service returns a handle on a named remote resource.
func (c *Client) Service(name string) *Service {
	return &Service{client: c, name: name}
}

// Health probes service reachability.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", nil, nil, nil)
}

// Service is one named remote resource.
type Service struct {
	client *Client
	name   string
}

// Find lists resources matching the query. The result is decoded into out.
func (s *Service) Find(ctx context.Context, query url.Values, out any) error {
	return s.client.do(ctx, http.MethodGet, s.name, query, nil, out)
}

// Get fetches one resource by id.
func (s *Service) Get(ctx context.Context, id string, out any) error {
	return s.client.do(ctx, http.MethodGet, s.path(id), nil, nil, out)
}

// Create creates a resource from data and decodes the stored document
// (including server-assigned fields) into out.
func (s *Service) Create(ctx context.Context, data, out any) error {
	return s.client.do(ctx, http.MethodPost, s.name, nil, data, out)
}

// Update fully replaces the resource with the given id.
func (s *Service) Update(ctx context.Context, id string, data, out any) error {
	return s.client.do(ctx, http.MethodPut, s.path(id), nil, data, out)
}

// Patch partially updates the resource with the given id.
func (s *Service) Patch(ctx context.Context, id string, data, out any) error {
	return s.client.do(ctx, http.MethodPatch, s.path(id), nil, data, out)
}

// Remove deletes the resource with the given id.
func (s *Service) Remove(ctx context.Context, id string) error {
	return s.client.do(ctx, http.MethodDelete, s.path(id), nil, nil, nil)
}

func (s *Service) path(id string) string {
	return s.name + "/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode %s %s body: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("failed to build %s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.token(); tok != "" {
		req.Header.Set(common.AuthorizationHeaderName, "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// keep the error structured and serializable; bodies are capped
		// so a misbehaving server cannot blow up the snapshot
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RequestError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   string(data),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{Method: method, Path: path, Status: resp.StatusCode, Err: err}
	}
	return nil
}
