// Package client provides a Go client library for the rstore API server.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// apiPrefix mirrors the server's resource path prefix.
const apiPrefix = "/api/v1"

// Resource is a schemaless record as returned by the server.
type Resource map[string]any

// UUID returns the generated identifier of the resource.
func (r Resource) UUID() string {
	id, _ := r["uuid"].(string)
	return id
}

// TypeInfo describes a resource type configured on the server.
type TypeInfo struct {
	Name     string   `json:"name"`
	Required []string `json:"required,omitempty"`
	Indexes  []string `json:"indexes,omitempty"`
	Sets     []string `json:"sets,omitempty"`
	Primary  string   `json:"primary"`
}

// Event is one line of a watch stream.
type Event struct {
	Type         string   `json:"type"`
	ResourceType string   `json:"resourceType"`
	ID           string   `json:"id"`
	Object       Resource `json:"object"`
}

// APIError is returned for every non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	// Class is the server's error classification, e.g. "not_found".
	Class string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is a 409 from the server.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// Client communicates with the rstore API server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new rstore API client pointing at the given base URL
// (e.g. "http://localhost:7117").
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ---------------------------------------------------------------------------
// Internal helpers
// ---------------------------------------------------------------------------

// doRequest builds and executes an HTTP request.
// If body is non-nil it is JSON-encoded and sent as the request body.
func (c *Client) doRequest(ctx context.Context, httpClient *http.Client, method, path string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	return resp, nil
}

// doJSON executes a request, checks for a 2xx status, and JSON-decodes
// the response body into target (when target is non-nil). It returns the
// status code of successful responses.
func (c *Client) doJSON(method, path string, body interface{}, target interface{}) (int, error) {
	resp, err := c.doRequest(context.Background(), c.httpClient, method, path, body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, apiError(resp.StatusCode, respBody)
	}

	if target != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, target); err != nil {
			return 0, fmt.Errorf("decode response body: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func apiError(status int, body []byte) *APIError {
	var envelope struct {
		Error string `json:"error"`
		Class string `json:"class"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == "" {
		return &APIError{StatusCode: status, Message: string(bytes.TrimSpace(body))}
	}
	return &APIError{StatusCode: status, Message: envelope.Error, Class: envelope.Class}
}

func resourcePath(resourceType string, parts ...string) string {
	p := apiPrefix + "/" + url.PathEscape(resourceType)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

// Healthz checks whether the API server and its backend are healthy.
func (c *Client) Healthz() error {
	_, err := c.doJSON(http.MethodGet, "/healthz", nil, nil)
	return err
}

// ListTypes returns the resource types configured on the server.
func (c *Client) ListTypes() ([]TypeInfo, error) {
	var out []TypeInfo
	if _, err := c.doJSON(http.MethodGet, apiPrefix+"/types", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Resources
// ---------------------------------------------------------------------------

// Create stores a new resource and returns it with its generated ids.
func (c *Client) Create(resourceType string, r Resource) (Resource, error) {
	var out Resource
	if _, err := c.doJSON(http.MethodPost, resourcePath(resourceType), r, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get retrieves a resource by uuid.
func (c *Client) Get(resourceType, id string) (Resource, error) {
	var out Resource
	if _, err := c.doJSON(http.MethodGet, resourcePath(resourceType, id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// List returns every resource of the given type.
func (c *Client) List(resourceType string) ([]Resource, error) {
	var out []Resource
	if _, err := c.doJSON(http.MethodGet, resourcePath(resourceType), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update overwrites the resource with the given uuid.
func (c *Client) Update(resourceType, id string, r Resource) (Resource, error) {
	var out Resource
	if _, err := c.doJSON(http.MethodPut, resourcePath(resourceType, id), r, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a resource and returns it as it was stored.
func (c *Client) Delete(resourceType, id string) (Resource, error) {
	var out Resource
	if _, err := c.doJSON(http.MethodDelete, resourcePath(resourceType, id), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Lookup resolves a unique index value to its resource.
func (c *Client) Lookup(resourceType, field, value string) (Resource, error) {
	var out Resource
	if _, err := c.doJSON(http.MethodGet, resourcePath(resourceType, "by", field, value), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveComposite resolves the values of a composite key to its resource.
func (c *Client) ResolveComposite(resourceType, name string, values ...string) (Resource, error) {
	q := url.Values{"v": values}
	var out Resource
	path := resourcePath(resourceType, "composite", name) + "?" + q.Encode()
	if _, err := c.doJSON(http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListSet returns the members of a named set.
func (c *Client) ListSet(set string) ([]Resource, error) {
	var out []Resource
	if _, err := c.doJSON(http.MethodGet, apiPrefix+"/sets/"+url.PathEscape(set), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Apply creates the resource or updates the one it matches by uuid or
// index value. created reports which happened.
func (c *Client) Apply(resourceType string, r Resource) (out Resource, created bool, err error) {
	body := struct {
		Type     string   `json:"type"`
		Resource Resource `json:"resource"`
	}{resourceType, r}

	status, err := c.doJSON(http.MethodPost, apiPrefix+"/apply", body, &out)
	if err != nil {
		return nil, false, err
	}
	return out, status == http.StatusCreated, nil
}

// ---------------------------------------------------------------------------
// Watch
// ---------------------------------------------------------------------------

// Watch streams events for resourceType (all types if empty) until ctx is
// cancelled or the server closes the stream. The returned channel is closed
// when the stream ends.
func (c *Client) Watch(ctx context.Context, resourceType string) (<-chan Event, error) {
	path := apiPrefix + "/watch"
	if resourceType != "" {
		path += "?type=" + url.QueryEscape(resourceType)
	}

	// The stream has no deadline of its own.
	streaming := &http.Client{Transport: c.httpClient.Transport}
	resp, err := c.doRequest(ctx, streaming, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, apiError(resp.StatusCode, body)
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			var evt Event
			if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
				continue
			}
			select {
			case events <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
