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

//nolint:testpackage,revive // test package in suites is standard for these tests, dot imports standard for Ginkgo
package suites

import (
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/unikorn-cloud/pulp-smash/test/api"
)

// Conflicting distributor paths are accepted by servers affected by this issue.
const relativePathConflictBug = 1106

//nolint:gochecknoglobals
var (
	bugSelector *api.BugSelector
	bugTracker  *api.RedmineTracker
)

// skipUnlessOSTreeIsTestable skips the current container when integration
// tests are off or the server lacks OSTree support.
func skipUnlessOSTreeIsTestable() {
	api.SkipIfIntegrationDisabled(config)
	api.SkipIfTypeIsUnsupported(ctx, client, api.OSTreeTypeID)
}

// skipIfBugIsUntestable skips the current spec when the issue is not fixed
// in the server under test. The server version and issue tracker are only
// consulted the first time.
func skipIfBugIsUntestable(id int) {
	if bugSelector == nil {
		var err error

		bugSelector, bugTracker, err = api.NewServerBugSelector(ctx, client)
		Expect(err).NotTo(HaveOccurred())
	}

	api.SkipIfBugIsUntestable(ctx, bugSelector, bugTracker, id)
}

// Each context stands alone, relying on the platform's generic repository
// CRUD behaving:
//
//	It is possible to create an OSTree repository with or without a feed.
//	It is not possible to create distributors with conflicting paths.
//	It is not possible to update distributors to have conflicting paths.
//
// Specs within a context share its setup and keep running when one fails.
var _ = Describe("OSTree Repository CRUD", Label("ostree"), func() {
	Context("When creating repositories with and without a feed", Ordered, ContinueOnFailure, func() {
		var (
			bodies    []*api.RepositoryBody
			repos     []*api.Repository
			importers [][]api.Importer
		)

		BeforeAll(func() {
			skipUnlessOSTreeIsTestable()

			resources := api.TrackResources(ctx, client)

			bodies = []*api.RepositoryBody{api.GenRepo(), api.GenRepo()}
			bodies[1].ImporterConfig = map[string]any{"feed": api.UUID4()}

			for _, body := range bodies {
				repo := api.CreateRepositoryWithCleanup(ctx, client, resources, body)
				repos = append(repos, repo)

				repoImporters, err := client.ListImporters(ctx, repo.Href)
				Expect(err).NotTo(HaveOccurred())

				importers = append(importers, repoImporters)
			}
		})

		It("should echo the id and notes of each repository", func() {
			for i, body := range bodies {
				Expect(repos[i].ID).To(Equal(body.ID), "repository %d", i)
				Expect(repos[i].Notes).To(Equal(body.Notes), "repository %d", i)
			}
		})

		It("should make each repository readable at its href", func() {
			for _, repo := range repos {
				Eventually(func() error {
					_, getErr := client.GetRepository(ctx, repo.Href)
					return getErr
				}).WithTimeout(config.RequestTimeout).WithPolling(config.TaskPollInterval).Should(Succeed())
			}
		})

		It("should give each repository exactly one importer", func() {
			for i := range bodies {
				Expect(importers[i]).To(HaveLen(1), "repository %d importers: %v", i, importers[i])
			}
		})

		It("should set the importer type of each importer", func() {
			for i, body := range bodies {
				Expect(importers[i]).NotTo(BeEmpty())
				Expect(importers[i][0].ImporterTypeID).To(Equal(body.ImporterTypeID), "repository %d", i)
			}
		})

		It("should set the importer config of each importer", func() {
			for i, body := range bodies {
				Expect(importers[i]).NotTo(BeEmpty())
				Expect(importers[i][0].Config).To(Equal(body.ImporterConfig), "repository %d", i)
			}
		})
	})

	// It is valid for distributors to publish at "foo/bar", "foo/biz" and
	// "foo/baz/abc" at once. Given those, "foo/bar", "foo/bar/biz" and
	// "/foo/bar" all conflict.
	Context("When creating distributors with legal and illegal relative paths", Ordered, ContinueOnFailure, func() {
		var responses []*api.Response

		BeforeAll(func() {
			skipUnlessOSTreeIsTestable()

			resources := api.TrackResources(ctx, client)

			relativePaths := []string{api.GenRelPath(2), api.GenRelPath(2), api.GenRelPath(3)}
			relativePaths = append(relativePaths,
				relativePaths[0],
				relativePaths[0]+"/"+api.UUID4(),
				"/"+relativePaths[0],
			)

			repos := []*api.Repository{
				api.CreateRepositoryWithCleanup(ctx, client, resources, api.GenRepo()),
				api.CreateRepositoryWithCleanup(ctx, client, resources, api.GenRepo()),
			}

			echo := client.WithResponseHandler(api.EchoHandler)

			// The first path lives on the first repository, every other path
			// on the second, so conflicts span repositories.
			resp, err := echo.Post(ctx, client.Endpoints().Distributors(repos[0].Href), api.GenDistributor(relativePaths[0]))
			Expect(err).NotTo(HaveOccurred())

			responses = append(responses, resp)

			for _, relativePath := range relativePaths[1:] {
				resp, err := echo.Post(ctx, client.Endpoints().Distributors(repos[1].Href), api.GenDistributor(relativePath))
				Expect(err).NotTo(HaveOccurred())

				responses = append(responses, resp)
			}
		})

		It("should create distributors given unique relative paths", func() {
			for i, resp := range responses[:3] {
				Expect(resp.StatusCode).To(Equal(http.StatusCreated), "distributor %d: %s", i, resp.Body)
			}
		})

		It("should reject distributors given conflicting relative paths", func() {
			skipIfBugIsUntestable(relativePathConflictBug)

			for i, resp := range responses[3:] {
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest), "distributor %d: %s", i+3, resp.Body)
			}
		})
	})

	Context("When updating distributors to conflicting relative paths", Ordered, ContinueOnFailure, func() {
		var (
			writtenPaths []string
			readPaths    []string
			responses    []*api.Response
		)

		BeforeAll(func() {
			skipUnlessOSTreeIsTestable()

			resources := api.TrackResources(ctx, client)

			distributors := make([]*api.Distributor, 0, 2)

			for range 2 {
				repo := api.CreateRepositoryWithCleanup(ctx, client, resources, api.GenRepo())

				distributor, err := client.CreateDistributor(ctx, repo.Href, api.GenDistributor(api.GenRelPath(2)))
				Expect(err).NotTo(HaveOccurred())

				distributors = append(distributors, distributor)
			}

			existing := distributors[0].RelativePath()
			Expect(existing).NotTo(BeEmpty())

			writtenPaths = []string{
				api.GenRelPath(2),
				api.GenRelPath(3),
				existing,
				existing + "/" + api.UUID4(),
				"/" + existing,
			}

			// The update response is only a call report, so every update is
			// followed by a read of the distributor.
			for _, relativePath := range writtenPaths {
				resp, distributor := api.UpdateDistributorAndRead(ctx, client, distributors[1].Href, relativePath)

				responses = append(responses, resp)
				readPaths = append(readPaths, distributor.RelativePath())
			}
		})

		It("should accept every update request, even invalid ones", func() {
			for i, resp := range responses {
				Expect(resp.StatusCode).To(Equal(http.StatusAccepted), "update %d: %s", i, resp.Body)
			}
		})

		It("should apply each valid update", func() {
			for i := range 2 {
				Expect(readPaths[i]).To(Equal(writtenPaths[i]), "update %d", i)
			}
		})

		It("should not apply any invalid update", func() {
			skipIfBugIsUntestable(relativePathConflictBug)

			for i := 2; i < len(writtenPaths); i++ {
				Expect(readPaths[i]).NotTo(Equal(writtenPaths[i]), "update %d", i)
			}
		})
	})
})
