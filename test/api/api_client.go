/*
Copyright 2024-2025 the Unikorn Authors.
Copyright 2026 Nscale.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

//nolint:err113,revive // dynamic errors and naming conventions acceptable in test code
package api

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

// Response is a completed HTTP exchange with its body already read.
type Response struct {
	Method     string
	Path       string
	StatusCode int
	Header     http.Header
	Body       []byte
	TraceID    string
}

// JSON decodes the response body into v.
func (r *Response) JSON(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("decoding %s %s response: empty body (status: %d)", r.Method, r.Path, r.StatusCode)
	}

	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", r.Method, r.Path, err)
	}

	return nil
}

// CallReport decodes the response body as a call report.
func (r *Response) CallReport() (*CallReport, error) {
	report := &CallReport{}
	if err := r.JSON(report); err != nil {
		return nil, err
	}

	return report, nil
}

// Decode converts the result of a client call into a typed document, so that
// calls read as Decode[Repository](client.Post(ctx, path, body)).
func Decode[T any](resp *Response, err error) (T, error) {
	var out T

	if err != nil {
		return out, err
	}

	if err := resp.JSON(&out); err != nil {
		return out, err
	}

	return out, nil
}

type APIClient struct {
	baseURL   string
	client    *http.Client
	config    *TestConfig
	endpoints *Endpoints
	handler   ResponseHandler
	logger    logr.Logger
}

// Option customises a client at construction time.
type Option func(*APIClient)

// WithLogger sets the logger used for request and error logging.
func WithLogger(logger logr.Logger) Option {
	return func(c *APIClient) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *APIClient) {
		c.client = client
	}
}

// WithHandler sets the default response handler, JSONHandler otherwise.
func WithHandler(handler ResponseHandler) Option {
	return func(c *APIClient) {
		c.handler = handler
	}
}

func NewAPIClientWithConfig(config *TestConfig, options ...Option) *APIClient {
	transport := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // safe: standard library default

	if !config.VerifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // test servers commonly use self-signed certificates
	}

	client := &APIClient{
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		client: &http.Client{
			Timeout:   config.RequestTimeout,
			Transport: transport,
		},
		config:    config,
		endpoints: NewEndpoints(),
		handler:   JSONHandler,
		logger:    logr.Discard(),
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// WithResponseHandler returns a copy of the client that processes responses
// with handler. The receiver is left untouched.
func (c *APIClient) WithResponseHandler(handler ResponseHandler) *APIClient {
	clone := *c
	clone.handler = handler

	return &clone
}

func (c *APIClient) Config() *TestConfig {
	return c.config
}

func (c *APIClient) Endpoints() *Endpoints {
	return c.endpoints
}

func (c *APIClient) Logger() logr.Logger {
	return c.logger
}

// logError logs a generic error with trace context.
func (c *APIClient) logError(method, path string, duration time.Duration, traceParent string, err error, context string) {
	c.logger.Error(err, context, "method", method, "path", path, "duration", duration.String(), "traceID", extractTraceID(traceParent))
}

// logUnexpectedStatus logs an HTTP error status along with the response body.
func (c *APIClient) logUnexpectedStatus(resp *Response) {
	c.logger.Info("unexpected status", "method", resp.Method, "path", resp.Path, "status", resp.StatusCode, "body", string(resp.Body), "traceID", resp.TraceID)
}

// generateTraceID creates a new W3C trace ID.
// we are using this to create a new trace ID for each request so if an error occurs we can find the request in the logs.
func generateTraceID() string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)

	return hex.EncodeToString(bytes)
}

// generateSpanID creates a new W3C span ID.
func generateSpanID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)

	return hex.EncodeToString(bytes)
}

// createTraceParent creates a W3C traceparent header value.
func createTraceParent() string {
	return fmt.Sprintf("00-%s-%s-01", generateTraceID(), generateSpanID())
}

// extractTraceID extracts the trace ID from a traceparent header value.
func extractTraceID(traceParent string) string {
	parts := strings.Split(traceParent, "-")
	if len(parts) >= 2 {
		return parts[1]
	}

	return traceParent
}

func (c *APIClient) doRequest(ctx context.Context, method, path string, body any) (*Response, error) {
	var reader io.Reader

	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}

		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	// Add W3C Trace Context headers
	traceParent := createTraceParent()
	req.Header.Set("Traceparent", traceParent)
	req.Header.Set("Tracestate", "test-automation=ginkgo")
	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	} else if c.config.Username != "" {
		req.SetBasicAuth(c.config.Username, c.config.Password)
	}

	start := time.Now()
	httpResp, err := c.client.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logError(method, path, duration, traceParent, err, "http request failed")
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.logError(method, path, duration, traceParent, err, "reading response body")
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if c.config.LogRequests {
		c.logger.Info("request", "method", method, "path", path, "status", httpResp.StatusCode, "duration", duration.String(), "traceID", extractTraceID(traceParent))
	}

	if c.config.LogResponses && len(respBody) > 0 {
		c.logger.Info("response body", "method", method, "path", path, "body", string(respBody))
	}

	return &Response{
		Method:     method,
		Path:       path,
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       respBody,
		TraceID:    extractTraceID(traceParent),
	}, nil
}

// Request issues a request and passes the response through the client's handler.
func (c *APIClient) Request(ctx context.Context, method, path string, body any) (*Response, error) {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	return c.handler(ctx, c, resp)
}

func (c *APIClient) Get(ctx context.Context, path string) (*Response, error) {
	return c.Request(ctx, http.MethodGet, path, nil)
}

func (c *APIClient) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Request(ctx, http.MethodPost, path, body)
}

func (c *APIClient) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Request(ctx, http.MethodPut, path, body)
}

func (c *APIClient) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Request(ctx, http.MethodDelete, path, nil)
}

// jsonClient returns a client that raises on error statuses, waits for spawned
// tasks and checks the body is JSON.
func (c *APIClient) jsonClient() *APIClient {
	return c.WithResponseHandler(JSONHandler)
}

// CreateRepository creates a new repository.
func (c *APIClient) CreateRepository(ctx context.Context, body *RepositoryBody) (*Repository, error) {
	repo, err := Decode[Repository](c.jsonClient().Post(ctx, c.endpoints.Repositories(), body))
	if err != nil {
		return nil, fmt.Errorf("creating repository: %w", err)
	}

	return &repo, nil
}

// GetRepository reads a repository by href.
func (c *APIClient) GetRepository(ctx context.Context, href string) (*Repository, error) {
	repo, err := Decode[Repository](c.jsonClient().Get(ctx, href))
	if err != nil {
		return nil, fmt.Errorf("getting repository: %w", err)
	}

	return &repo, nil
}

// DeleteRepository deletes a repository and waits for the deletion task.
func (c *APIClient) DeleteRepository(ctx context.Context, href string) error {
	if _, err := c.WithResponseHandler(SafeHandler).Delete(ctx, href); err != nil {
		return fmt.Errorf("deleting repository: %w", err)
	}

	return nil
}

// ListImporters lists the importers of the repository at repoHref.
func (c *APIClient) ListImporters(ctx context.Context, repoHref string) ([]Importer, error) {
	importers, err := Decode[[]Importer](c.jsonClient().Get(ctx, c.endpoints.Importers(repoHref)))
	if err != nil {
		return nil, fmt.Errorf("listing importers: %w", err)
	}

	return importers, nil
}

// CreateDistributor adds a distributor to the repository at repoHref.
func (c *APIClient) CreateDistributor(ctx context.Context, repoHref string, body *DistributorBody) (*Distributor, error) {
	distributor, err := Decode[Distributor](c.jsonClient().Post(ctx, c.endpoints.Distributors(repoHref), body))
	if err != nil {
		return nil, fmt.Errorf("creating distributor: %w", err)
	}

	return &distributor, nil
}

// GetDistributor reads a distributor by href.
func (c *APIClient) GetDistributor(ctx context.Context, href string) (*Distributor, error) {
	distributor, err := Decode[Distributor](c.jsonClient().Get(ctx, href))
	if err != nil {
		return nil, fmt.Errorf("getting distributor: %w", err)
	}

	return &distributor, nil
}

// GetTask reads a task by href.
func (c *APIClient) GetTask(ctx context.Context, href string) (*Task, error) {
	task, err := Decode[Task](c.jsonClient().Get(ctx, href))
	if err != nil {
		return nil, fmt.Errorf("getting task: %w", err)
	}

	return &task, nil
}

// ListPluginTypes lists the content types the server's plugins provide.
func (c *APIClient) ListPluginTypes(ctx context.Context) ([]PluginType, error) {
	types, err := Decode[[]PluginType](c.jsonClient().Get(ctx, c.endpoints.PluginTypes()))
	if err != nil {
		return nil, fmt.Errorf("listing plugin types: %w", err)
	}

	return types, nil
}

// GetStatus reads the server status.
func (c *APIClient) GetStatus(ctx context.Context) (*ServerStatus, error) {
	status, err := Decode[ServerStatus](c.jsonClient().Get(ctx, c.endpoints.Status()))
	if err != nil {
		return nil, fmt.Errorf("getting server status: %w", err)
	}

	return &status, nil
}

// DeleteOrphans removes content units no longer referenced by any repository.
func (c *APIClient) DeleteOrphans(ctx context.Context) error {
	if _, err := c.WithResponseHandler(SafeHandler).Delete(ctx, c.endpoints.Orphans()); err != nil {
		return fmt.Errorf("deleting orphans: %w", err)
	}

	return nil
}
