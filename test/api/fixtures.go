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

//nolint:revive,staticcheck // dot imports are standard for Ginkgo/Gomega test code
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/Masterminds/semver/v3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"k8s.io/apimachinery/pkg/util/sets"
)

// ResourceTracker remembers server resources created by a test so they can
// be deleted once the test container is done with them.
type ResourceTracker struct {
	client *APIClient

	lock  sync.Mutex
	hrefs sets.Set[string]
	order []string
}

// NewResourceTracker returns an empty tracker deleting through client.
func NewResourceTracker(client *APIClient) *ResourceTracker {
	return &ResourceTracker{
		client: client,
		hrefs:  sets.New[string](),
	}
}

// Add marks href for deletion. Adding the same href twice is a no-op.
func (r *ResourceTracker) Add(href string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.hrefs.Has(href) {
		return
	}

	r.hrefs.Insert(href)
	r.order = append(r.order, href)
}

// Len returns the number of tracked resources.
func (r *ResourceTracker) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return r.hrefs.Len()
}

// Cleanup deletes every tracked resource, most recent first, then deletes
// orphaned content. Resources already gone are ignored. All failures are
// collected and returned together.
func (r *ResourceTracker) Cleanup(ctx context.Context) error {
	r.lock.Lock()
	order := r.order
	r.order = nil
	r.hrefs = sets.New[string]()
	r.lock.Unlock()

	var errs []error

	for i := len(order) - 1; i >= 0; i-- {
		href := order[i]

		if _, err := r.client.WithResponseHandler(SafeHandler).Delete(ctx, href); err != nil {
			var httpErr *HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
				continue
			}

			errs = append(errs, fmt.Errorf("deleting %s: %w", href, err))
		}
	}

	if err := r.client.DeleteOrphans(ctx); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// TrackResources returns a tracker whose resources are deleted when the
// current container finishes, whether its specs pass or fail.
func TrackResources(ctx context.Context, client *APIClient) *ResourceTracker {
	tracker := NewResourceTracker(client)

	DeferCleanup(func() {
		GinkgoWriter.Printf("Cleaning up %d resource(s)\n", tracker.Len())

		if err := tracker.Cleanup(ctx); err != nil {
			GinkgoWriter.Printf("Warning: cleanup failed: %v\n", err)
		}
	})

	return tracker
}

// TypeIsSupported reports whether the server's plugins provide typeID.
func TypeIsSupported(ctx context.Context, client *APIClient, typeID string) (bool, error) {
	types, err := client.ListPluginTypes(ctx)
	if err != nil {
		return false, err
	}

	for _, pluginType := range types {
		if pluginType.ID == typeID {
			return true, nil
		}
	}

	return false, nil
}

// SkipIfTypeIsUnsupported skips the current spec or container when the
// server does not support typeID.
func SkipIfTypeIsUnsupported(ctx context.Context, client *APIClient, typeID string) {
	supported, err := TypeIsSupported(ctx, client, typeID)
	Expect(err).NotTo(HaveOccurred())

	if !supported {
		Skip(fmt.Sprintf("These tests require support for the %q content type.", typeID))
	}
}

// ServerVersion returns the configured server version, or asks the server
// when none is configured. PEP 440 versions are accepted, see ParseVersion.
func ServerVersion(ctx context.Context, client *APIClient) (*semver.Version, error) {
	version := client.Config().ServerVersion

	if version == "" {
		status, err := client.GetStatus(ctx)
		if err != nil {
			return nil, err
		}

		version = status.Versions.PlatformVersion
	}

	parsed, err := ParseVersion(version)
	if err != nil {
		return nil, fmt.Errorf("server version: %w", err)
	}

	return parsed, nil
}

// NewServerBugSelector returns a bug selector for the server client talks to,
// consulting the configured issue tracker.
func NewServerBugSelector(ctx context.Context, client *APIClient) (*BugSelector, *RedmineTracker, error) {
	version, err := ServerVersion(ctx, client)
	if err != nil {
		return nil, nil, err
	}

	config := client.Config()
	tracker := NewRedmineTracker(config.BugTrackerURL, &http.Client{Timeout: config.RequestTimeout})

	return NewBugSelector(tracker, version, client.Logger().WithName("selectors")), tracker, nil
}

// SkipIfBugIsUntestable skips the current spec when the issue is not fixed
// in the server under test.
func SkipIfBugIsUntestable(ctx context.Context, selector *BugSelector, tracker *RedmineTracker, id int) {
	untestable, err := selector.BugIsUntestable(ctx, id)
	Expect(err).NotTo(HaveOccurred())

	if untestable {
		Skip(tracker.IssueURL(id))
	}
}

// SkipIfIntegrationDisabled skips the current container when integration
// tests are turned off.
func SkipIfIntegrationDisabled(config *TestConfig) {
	if config.SkipIntegration {
		Skip("integration tests disabled by SKIP_INTEGRATION")
	}
}

// CreateRepositoryWithCleanup creates a repository and marks it for deletion.
func CreateRepositoryWithCleanup(ctx context.Context, client *APIClient, tracker *ResourceTracker, body *RepositoryBody) *Repository {
	repo, err := client.CreateRepository(ctx, body)
	Expect(err).NotTo(HaveOccurred())
	Expect(repo.Href).NotTo(BeEmpty())

	tracker.Add(repo.Href)

	GinkgoWriter.Printf("Created repository %s\n", repo.Href)

	return repo
}

// UpdateDistributorAndRead updates the relative path of the distributor at
// href, waits for the spawned tasks and reads the distributor back. The raw
// update response is returned so callers can assert on its status.
func UpdateDistributorAndRead(ctx context.Context, client *APIClient, href, relativePath string) (*Response, *Distributor) {
	resp, err := client.WithResponseHandler(EchoHandler).Put(ctx, href, GenDistributorUpdate(relativePath))
	Expect(err).NotTo(HaveOccurred())

	// Only an accepted update carries a call report.
	if resp.StatusCode == http.StatusAccepted {
		report, err := resp.CallReport()
		Expect(err).NotTo(HaveOccurred())

		tasks, err := PollSpawnedTasks(ctx, client, report)
		Expect(err).NotTo(HaveOccurred())

		for _, task := range FailedTasks(tasks) {
			GinkgoWriter.Printf("Update of %s to %q failed in task %s\n", href, relativePath, task.Href)
		}
	}

	distributor, err := client.GetDistributor(ctx, href)
	Expect(err).NotTo(HaveOccurred())

	return resp, distributor
}
