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

// RepositoryBody is the request body used to create a repository.
type RepositoryBody struct {
	ID             string         `json:"id"`
	DisplayName    *string        `json:"display_name,omitempty"`
	Description    *string        `json:"description,omitempty"`
	Notes          map[string]any `json:"notes"`
	ImporterTypeID string         `json:"importer_type_id"`
	ImporterConfig map[string]any `json:"importer_config"`
}

// Repository is a repository as returned by the server.
type Repository struct {
	Href              string         `json:"_href"`
	ID                string         `json:"id"`
	DisplayName       string         `json:"display_name"`
	Description       string         `json:"description"`
	Notes             map[string]any `json:"notes"`
	ContentUnitCounts map[string]int `json:"content_unit_counts,omitempty"`
}

// Importer is one of a repository's importers.
type Importer struct {
	Href           string         `json:"_href"`
	ID             string         `json:"id"`
	RepoID         string         `json:"repo_id"`
	ImporterTypeID string         `json:"importer_type_id"`
	Config         map[string]any `json:"config"`
}

// DistributorBody is the request body used to add a distributor to a repository.
type DistributorBody struct {
	DistributorID     *string        `json:"distributor_id,omitempty"`
	DistributorTypeID string         `json:"distributor_type_id"`
	Config            map[string]any `json:"config"`
	DistributorConfig map[string]any `json:"distributor_config"`
	AutoPublish       *bool          `json:"auto_publish,omitempty"`
}

// Distributor is one of a repository's distributors.
type Distributor struct {
	Href              string         `json:"_href"`
	ID                string         `json:"id"`
	RepoID            string         `json:"repo_id"`
	DistributorTypeID string         `json:"distributor_type_id"`
	AutoPublish       bool           `json:"auto_publish"`
	Config            map[string]any `json:"config"`
}

// RelativePath returns the distributor's configured relative path, if any.
func (d *Distributor) RelativePath() string {
	if path, ok := d.Config["relative_path"].(string); ok {
		return path
	}

	return ""
}

// DistributorUpdate is the request body used to update a distributor.
type DistributorUpdate struct {
	DistributorConfig map[string]any `json:"distributor_config"`
}

// TaskRef points at a task spawned by an asynchronous request.
type TaskRef struct {
	Href   string `json:"_href"`
	TaskID string `json:"task_id"`
}

// CallReport is the body of an HTTP 202 response.
type CallReport struct {
	Result       any       `json:"result"`
	Error        any       `json:"error"`
	SpawnedTasks []TaskRef `json:"spawned_tasks"`
}

// TaskError is the error report attached to a failed task.
type TaskError struct {
	Code        string         `json:"code"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
}

// Task is a server side unit of asynchronous work.
type Task struct {
	Href         string     `json:"_href"`
	TaskID       string     `json:"task_id"`
	TaskType     string     `json:"task_type"`
	State        string     `json:"state"`
	Tags         []string   `json:"tags"`
	StartTime    *string    `json:"start_time"`
	FinishTime   *string    `json:"finish_time"`
	Error        *TaskError `json:"error"`
	Result       any        `json:"result"`
	SpawnedTasks []TaskRef  `json:"spawned_tasks"`
}

// PluginType describes a content type provided by a server plugin.
type PluginType struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

// ServerStatus is the body returned by the status endpoint.
type ServerStatus struct {
	Versions struct {
		PlatformVersion string `json:"platform_version"`
	} `json:"versions"`
	Database struct {
		Connected bool `json:"connected"`
	} `json:"database"`
	Messaging struct {
		Connected bool `json:"connected"`
	} `json:"messaging_connection"`
}
