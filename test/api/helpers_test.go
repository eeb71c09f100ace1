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
	"testing"
	"time"

	"github.com/unikorn-cloud/pulp-smash/test/api"
	"github.com/unikorn-cloud/pulp-smash/test/api/fake"
)

// newServer starts a fake server that is shut down with the test.
func newServer(t *testing.T, builder *fake.Builder) *fake.Server {
	t.Helper()

	server := builder.Build()
	t.Cleanup(server.Close)

	return server
}

// newClient returns a client for server with fast task polling.
func newClient(server *fake.Server) *api.APIClient {
	return api.NewAPIClientWithConfig(&api.TestConfig{
		BaseURL:          server.URL,
		Username:         "admin",
		Password:         "secret",
		VerifyTLS:        true,
		RequestTimeout:   5 * time.Second,
		TaskTimeout:      2 * time.Second,
		TaskPollInterval: 10 * time.Millisecond,
	})
}
