/*
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

package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unikorn-cloud/pulp-smash/test/api"
	"github.com/unikorn-cloud/pulp-smash/test/api/fake"

	"k8s.io/utils/ptr"
)

var traceParentRegexp = regexp.MustCompile(`^00-([0-9a-f]{32})-[0-9a-f]{16}-01$`)

// TestRequestHeaders ensures every request is traced and authenticated.
func TestRequestHeaders(t *testing.T) {
	t.Parallel()

	server := newServer(t, fake.NewBuilder())
	client := newClient(server)

	resp, err := client.Get(t.Context(), client.Endpoints().Status())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	requests := server.Requests()
	require.Len(t, requests, 1)

	header := requests[0].Header

	match := traceParentRegexp.FindStringSubmatch(header.Get("Traceparent"))
	require.NotNil(t, match, header.Get("Traceparent"))
	require.Equal(t, match[1], resp.TraceID)
	require.Equal(t, "test-automation=ginkgo", header.Get("Tracestate"))
	require.Equal(t, "application/json", header.Get("Accept"))
	require.Empty(t, header.Get("Content-Type"))

	username, password, ok := (&http.Request{Header: header}).BasicAuth()
	require.True(t, ok)
	require.Equal(t, "admin", username)
	require.Equal(t, "secret", password)
}

// TestRequestBearerToken ensures a token takes precedence over basic auth.
func TestRequestBearerToken(t *testing.T) {
	t.Parallel()

	server := newServer(t, fake.NewBuilder())
	client := newClient(server)
	client.Config().AuthToken = "token"

	_, err := client.Post(t.Context(), client.Endpoints().Repositories(), api.GenRepo())
	require.NoError(t, err)

	requests := server.Requests()
	require.Len(t, requests, 1)
	require.Equal(t, "Bearer token", requests[0].Header.Get("Authorization"))
	require.Equal(t, "application/json", requests[0].Header.Get("Content-Type"))
}

// TestTraceIDsAreUnique ensures each request starts a new trace.
func TestTraceIDsAreUnique(t *testing.T) {
	t.Parallel()

	server := newServer(t, fake.NewBuilder())
	client := newClient(server)

	first, err := client.Get(t.Context(), client.Endpoints().Status())
	require.NoError(t, err)

	second, err := client.Get(t.Context(), client.Endpoints().Status())
	require.NoError(t, err)

	require.NotEqual(t, first.TraceID, second.TraceID)
}

// TestCreateRepository ensures the typed helper round trips a repository.
func TestCreateRepository(t *testing.T) {
	t.Parallel()

	server := newServer(t, fake.NewBuilder())
	client := newClient(server)

	body := api.GenRepo()
	body.DisplayName = ptr.To("OSTree")
	body.ImporterConfig = map[string]any{"feed": "https://example.com/repo"}

	repo, err := client.CreateRepository(t.Context(), body)
	require.NoError(t, err)
	require.Equal(t, body.ID, repo.ID)
	require.Equal(t, body.Notes, repo.Notes)
	require.Equal(t, client.Endpoints().Repository(body.ID), repo.Href)

	var sent map[string]any

	requests := server.Requests()
	require.Len(t, requests, 1)
	require.NoError(t, json.Unmarshal(requests[0].Body, &sent))
	require.Equal(t, "OSTree", sent["display_name"])
	require.NotContains(t, sent, "description")

	importers, err := client.ListImporters(t.Context(), repo.Href)
	require.NoError(t, err)
	require.Len(t, importers, 1)
	require.Equal(t, api.OSTreeImporterTypeID, importers[0].ImporterTypeID)
	require.Equal(t, body.ImporterConfig, importers[0].Config)

	read, err := client.GetRepository(t.Context(), repo.Href)
	require.NoError(t, err)
	require.Equal(t, repo.ID, read.ID)
}

// TestSafeHandlerError ensures error statuses become an HTTPError.
func TestSafeHandlerError(t *testing.T) {
	t.Parallel()

	server := newServer(t, fake.NewBuilder())
	client := newClient(server)

	body := api.GenRepo()

	_, err := client.CreateRepository(t.Context(), body)
	require.NoError(t, err)

	_, err = client.CreateRepository(t.Context(), body)
	require.Error(t, err)

	var httpErr *api.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusConflict, httpErr.StatusCode)
	require.Equal(t, http.MethodPost, httpErr.Method)
	require.Equal(t, client.Endpoints().Repositories(), httpErr.Path)
	require.NotEmpty(t, httpErr.TraceID)
	require.Contains(t, err.Error(), httpErr.TraceID)
}

// TestEchoHandler ensures error statuses are returned as is.
func TestEchoHandler(t *testing.T) {
	t.Parallel()

	relativePath := api.GenRelPath(2)

	server := newServer(t, fake.NewBuilder().WithRejectedPath(relativePath))
	client := newClient(server)

	repo, err := client.CreateRepository(t.Context(), api.GenRepo())
	require.NoError(t, err)

	echo := client.WithResponseHandler(api.EchoHandler)

	resp, err := echo.Post(t.Context(), client.Endpoints().Distributors(repo.Href), api.GenDistributor(relativePath))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotEmpty(t, resp.Body)

	// The original client is not affected.
	_, err = client.Post(t.Context(), client.Endpoints().Distributors(repo.Href), api.GenDistributor(relativePath))
	require.Error(t, err)
}

// TestEchoHandlerDoesNotPoll ensures a call report is returned without
// waiting for its tasks.
func TestEchoHandlerDoesNotPoll(t *testing.T) {
	t.Parallel()

	server := newServer(t, fake.NewBuilder())
	client := newClient(server)

	resp, err := client.WithResponseHandler(api.EchoHandler).Delete(t.Context(), client.Endpoints().Orphans())
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	report, err := resp.CallReport()
	require.NoError(t, err)
	require.Len(t, report.SpawnedTasks, 1)

	for _, request := range server.Requests() {
		require.NotEqual(t, client.Endpoints().Task(report.SpawnedTasks[0].TaskID), request.Path)
	}
}

// TestSafeHandlerPollsTasks ensures an accepted request waits for its tasks.
func TestSafeHandlerPollsTasks(t *testing.T) {
	t.Parallel()

	server := newServer(t, fake.NewBuilder())
	client := newClient(server)

	repo, err := client.CreateRepository(t.Context(), api.GenRepo())
	require.NoError(t, err)

	require.NoError(t, client.DeleteRepository(t.Context(), repo.Href))
	require.Empty(t, server.RepositoryIDs())

	var polls int

	for _, request := range server.Requests() {
		if regexp.MustCompile(`/tasks/[^/]+/$`).MatchString(request.Path) {
			polls++
		}
	}

	// The deletion task is running on the first read.
	require.Equal(t, 2, polls)
}

// TestSafeHandlerFailedTask ensures a task ending in error fails the call.
func TestSafeHandlerFailedTask(t *testing.T) {
	t.Parallel()

	relativePath := api.GenRelPath(2)

	server := newServer(t, fake.NewBuilder().WithRejectedPath(relativePath))
	client := newClient(server)

	repo, err := client.CreateRepository(t.Context(), api.GenRepo())
	require.NoError(t, err)

	distributor, err := client.CreateDistributor(t.Context(), repo.Href, api.GenDistributor(api.GenRelPath(2)))
	require.NoError(t, err)

	_, err = client.Put(t.Context(), distributor.Href, api.GenDistributorUpdate(relativePath))
	require.Error(t, err)

	var taskErr *api.TaskReportError
	require.ErrorAs(t, err, &taskErr)
	require.Len(t, taskErr.Tasks, 1)
	require.Equal(t, api.TaskStateError, taskErr.Tasks[0].State)
	require.Contains(t, err.Error(), "scripted failure")
}

// TestJSONHandler ensures successful responses must carry JSON.
func TestJSONHandler(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	}))
	t.Cleanup(server.Close)

	client := api.NewAPIClientWithConfig(&api.TestConfig{
		BaseURL:        server.URL,
		RequestTimeout: time.Second,
	})

	_, err := client.Get(t.Context(), "/")
	require.ErrorContains(t, err, "not JSON")

	resp, err := client.WithResponseHandler(api.SafeHandler).Get(t.Context(), "/")
	require.NoError(t, err)
	require.Equal(t, "<html></html>", string(resp.Body))
}

// TestDecode ensures errors pass through and bodies are decoded.
func TestDecode(t *testing.T) {
	t.Parallel()

	expected := errors.New("boom")

	_, err := api.Decode[api.Repository](nil, expected)
	require.ErrorIs(t, err, expected)

	_, err = api.Decode[api.Repository](&api.Response{Method: http.MethodGet, Path: "/"}, nil)
	require.ErrorContains(t, err, "empty body")

	repo, err := api.Decode[api.Repository](&api.Response{Body: []byte(`{"_href":"/r/","id":"r"}`)}, nil)
	require.NoError(t, err)
	require.Equal(t, "/r/", repo.Href)
	require.Equal(t, "r", repo.ID)
}

// TestRequestTimeout ensures the configured timeout bounds each request.
func TestRequestTimeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	client := api.NewAPIClientWithConfig(&api.TestConfig{
		BaseURL:        server.URL,
		RequestTimeout: 50 * time.Millisecond,
	})

	_, err := client.Get(context.Background(), "/")
	require.ErrorContains(t, err, "http request failed")
}
