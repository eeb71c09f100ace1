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

package api

import (
	"fmt"
	"net/url"
	"strings"
)

const apiRoot = "/pulp/api/v2/"

// Endpoints contains all API endpoint patterns.
type Endpoints struct{}

// NewEndpoints creates a new Endpoints instance.
func NewEndpoints() *Endpoints {
	return &Endpoints{}
}

// Repository endpoints.
func (e *Endpoints) Repositories() string {
	return apiRoot + "repositories/"
}

func (e *Endpoints) Repository(repoID string) string {
	return fmt.Sprintf("%srepositories/%s/", apiRoot, url.PathEscape(repoID))
}

// Importers returns the importer collection of the repository at repoHref.
func (e *Endpoints) Importers(repoHref string) string {
	return Join(repoHref, "importers/")
}

// Distributors returns the distributor collection of the repository at repoHref.
func (e *Endpoints) Distributors(repoHref string) string {
	return Join(repoHref, "distributors/")
}

// Task endpoints.
func (e *Endpoints) Task(taskID string) string {
	return fmt.Sprintf("%stasks/%s/", apiRoot, url.PathEscape(taskID))
}

// Server metadata endpoints.
func (e *Endpoints) PluginTypes() string {
	return apiRoot + "plugins/types/"
}

func (e *Endpoints) Status() string {
	return apiRoot + "status/"
}

func (e *Endpoints) Orphans() string {
	return apiRoot + "content/orphans/"
}

// Join resolves ref against base the way a browser resolves a relative link,
// so "importers/" joined to "/pulp/api/v2/repositories/foo/" yields
// "/pulp/api/v2/repositories/foo/importers/". A base without a trailing
// slash has its last segment replaced.
func Join(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(ref, "/")
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(ref, "/")
	}

	return baseURL.ResolveReference(refURL).String()
}
