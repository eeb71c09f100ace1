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
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-logr/logr"
	"github.com/tidwall/gjson"

	"k8s.io/apimachinery/pkg/util/sets"
)

//go:generate mockgen -source=selectors.go -destination=mock/selectors.go -package=mock

const platformReleaseField = "Platform Release"

var (
	ErrIssueNotFound           = errors.New("issue not found")
	ErrIssueTrackerOffline     = errors.New("issue tracker disabled")
	ErrIssueTrackerUnreachable = errors.New("issue tracker unreachable")
)

//nolint:gochecknoglobals
var (
	untestableBugStatuses = sets.New(
		"NEW",
		"ASSIGNED",
		"POST",
	)
	testableBugStatuses = sets.New(
		"MODIFIED",
		"ON_QA",
		"VERIFIED",
		"CLOSED - COMPLETE",
		"CLOSED - CURRENTRELEASE",
		"CLOSED - DUPLICATE",
		"CLOSED - NOTABUG",
		"CLOSED - WONTFIX",
		"CLOSED - WORKSFORME",
	)
)

// Issue is the subset of a tracker issue needed to decide testability.
type Issue struct {
	ID     int
	Status string
	// PlatformRelease is the first server release carrying the fix, nil
	// when the tracker does not record one.
	PlatformRelease *semver.Version
}

// IssueTracker looks up issues by number.
type IssueTracker interface {
	Issue(ctx context.Context, id int) (*Issue, error)
}

// BugStatusUnknownError is returned for a status that is neither testable nor untestable.
type BugStatusUnknownError struct {
	ID     int
	Status string
}

func (e *BugStatusUnknownError) Error() string {
	return fmt.Sprintf("issue %d has unknown status %q", e.ID, e.Status)
}

// RedmineTracker reads issues from a Redmine instance's JSON API.
type RedmineTracker struct {
	baseURL string
	client  *http.Client
	retries uint64
}

// NewRedmineTracker returns a tracker for the Redmine instance at baseURL.
func NewRedmineTracker(baseURL string, client *http.Client) *RedmineTracker {
	return &RedmineTracker{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		retries: 3,
	}
}

// IssueURL returns the human readable address of an issue.
func (r *RedmineTracker) IssueURL(id int) string {
	return fmt.Sprintf("%s/issues/%d", r.baseURL, id)
}

func (r *RedmineTracker) Issue(ctx context.Context, id int) (*Issue, error) {
	if r.baseURL == "" {
		return nil, ErrIssueTrackerOffline
	}

	var body []byte

	fetch := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.IssueURL(id)+".json", nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}

		req.Header.Set("Accept", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(fmt.Errorf("fetching issue %d: %w", id, ctx.Err()))
			}

			return fmt.Errorf("%w: fetching issue %d: %w", ErrIssueTrackerUnreachable, id, err)
		}

		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(fmt.Errorf("%w: %d", ErrIssueNotFound, id))
		case resp.StatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("fetching issue %d: status %d", id, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("fetching issue %d: status %d", id, resp.StatusCode))
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading issue %d: %w", id, err)
		}

		body = data

		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.retries), ctx)

	if err := backoff.Retry(fetch, policy); err != nil {
		return nil, err
	}

	return parseIssue(id, body)
}

func parseIssue(id int, body []byte) (*Issue, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("issue %d: malformed JSON", id)
	}

	status := gjson.GetBytes(body, "issue.status.name")
	if !status.Exists() {
		return nil, fmt.Errorf("issue %d: no status", id)
	}

	issue := &Issue{
		ID:     id,
		Status: status.String(),
	}

	release := gjson.GetBytes(body, fmt.Sprintf(`issue.custom_fields.#(name==%q).value`, platformReleaseField)).String()
	if release != "" {
		version, err := ParseVersion(release)
		if err != nil {
			return nil, fmt.Errorf("issue %d: platform release: %w", id, err)
		}

		issue.PlatformRelease = version
	}

	return issue, nil
}

// BugSelector decides whether behaviour affected by a known bug can be
// asserted against a given server version.
type BugSelector struct {
	tracker IssueTracker
	version *semver.Version
	logger  logr.Logger

	lock  sync.Mutex
	cache map[int]bool
}

// NewBugSelector returns a selector for the server at version.
func NewBugSelector(tracker IssueTracker, version *semver.Version, logger logr.Logger) *BugSelector {
	return &BugSelector{
		tracker: tracker,
		version: version,
		logger:  logger,
		cache:   map[int]bool{},
	}
}

// BugIsTestable reports whether the bug is fixed in the server under test.
// A tracker that is disabled or cannot be reached yields true so tests
// still run; any other tracker failure is returned.
func (s *BugSelector) BugIsTestable(ctx context.Context, id int) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if testable, ok := s.cache[id]; ok {
		return testable, nil
	}

	testable, err := s.bugIsTestable(ctx, id)
	if err != nil {
		return false, err
	}

	s.cache[id] = testable

	return testable, nil
}

// BugIsUntestable is the negation of BugIsTestable.
func (s *BugSelector) BugIsUntestable(ctx context.Context, id int) (bool, error) {
	testable, err := s.BugIsTestable(ctx, id)
	if err != nil {
		return false, err
	}

	return !testable, nil
}

func (s *BugSelector) bugIsTestable(ctx context.Context, id int) (bool, error) {
	issue, err := s.tracker.Issue(ctx, id)
	if err != nil {
		if errors.Is(err, ErrIssueTrackerOffline) || errors.Is(err, ErrIssueTrackerUnreachable) {
			s.logger.Info("cannot read issue, assuming it is testable", "issue", id, "error", err.Error())

			return true, nil
		}

		return false, err
	}

	if untestableBugStatuses.Has(issue.Status) {
		return false, nil
	}

	if !testableBugStatuses.Has(issue.Status) {
		return false, &BugStatusUnknownError{ID: id, Status: issue.Status}
	}

	if issue.PlatformRelease == nil || s.version == nil {
		return true, nil
	}

	return !s.version.LessThan(issue.PlatformRelease), nil
}
