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

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// ResponseHandler post-processes every response a client receives. It may
// return the response unchanged, reject it, or perform follow up requests
// such as waiting for spawned tasks.
type ResponseHandler func(ctx context.Context, client *APIClient, resp *Response) (*Response, error)

// HTTPError is returned when the server answers with an error status.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	TraceID    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status code %d, body: %s (trace ID: %s)", e.Method, e.Path, e.StatusCode, e.Body, e.TraceID)
}

// TaskReportError is returned when a spawned task finished in the error state.
type TaskReportError struct {
	Tasks []Task
}

func (e *TaskReportError) Error() string {
	reports := make([]string, 0, len(e.Tasks))

	for _, task := range e.Tasks {
		report := task.Href
		if task.Error != nil {
			report = fmt.Sprintf("%s (%s: %s)", task.Href, task.Error.Code, task.Error.Description)
		}

		reports = append(reports, report)
	}

	return fmt.Sprintf("%d task(s) failed: %s", len(e.Tasks), strings.Join(reports, ", "))
}

// EchoHandler returns every response as is, whatever its status code.
func EchoHandler(_ context.Context, _ *APIClient, resp *Response) (*Response, error) {
	return resp, nil
}

// SafeHandler rejects error statuses and, for an HTTP 202 carrying a call
// report, waits for every spawned task to reach a terminal state.
func SafeHandler(ctx context.Context, client *APIClient, resp *Response) (*Response, error) {
	if resp.StatusCode >= http.StatusBadRequest {
		client.logUnexpectedStatus(resp)

		return nil, &HTTPError{
			Method:     resp.Method,
			Path:       resp.Path,
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
			TraceID:    resp.TraceID,
		}
	}

	if resp.StatusCode != http.StatusAccepted || len(resp.Body) == 0 {
		return resp, nil
	}

	report, err := resp.CallReport()
	if err != nil {
		return nil, err
	}

	if len(report.SpawnedTasks) == 0 {
		return resp, nil
	}

	tasks, err := PollSpawnedTasks(ctx, client, report)
	if err != nil {
		return nil, err
	}

	if failed := FailedTasks(tasks); len(failed) > 0 {
		return nil, &TaskReportError{Tasks: failed}
	}

	return resp, nil
}

// JSONHandler behaves as SafeHandler and additionally requires the body to
// be a JSON document.
func JSONHandler(ctx context.Context, client *APIClient, resp *Response) (*Response, error) {
	resp, err := SafeHandler(ctx, client, resp)
	if err != nil {
		return nil, err
	}

	if !json.Valid(resp.Body) {
		return nil, fmt.Errorf("%s %s: response body is not JSON (status: %d, trace ID: %s)", resp.Method, resp.Path, resp.StatusCode, resp.TraceID)
	}

	return resp, nil
}
