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

// Package fake provides an in-memory stand-in for the parts of the Pulp 2
// REST API the integration scaffolding talks to. It stores what it is sent
// and replays scripted answers; it does not implement server side rules.
package fake

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

const apiRoot = "/pulp/api/v2"

// RecordedRequest is a request received by the server.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

type repository struct {
	body         map[string]any
	importer     map[string]any
	distributors map[string]map[string]any
}

// Server is a fake Pulp server.
type Server struct {
	*httptest.Server

	lock          sync.Mutex
	version       string
	pluginTypes   []string
	repositories  map[string]*repository
	tasks         map[string][]map[string]any
	rejectedPaths map[string]bool
	refusedPaths  map[string]bool
	conflicts     bool
	requests      []RecordedRequest
	nextID        int
}

// Builder configures a fake server before it starts.
type Builder struct {
	server *Server
}

// NewBuilder returns a builder for a server reporting version 2.8.0 and
// supporting the ostree type.
func NewBuilder() *Builder {
	return &Builder{
		server: &Server{
			version:       "2.8.0",
			pluginTypes:   []string{"ostree"},
			repositories:  map[string]*repository{},
			tasks:         map[string][]map[string]any{},
			rejectedPaths: map[string]bool{},
			refusedPaths:  map[string]bool{},
		},
	}
}

// WithVersion sets the platform version reported by the status endpoint.
func (b *Builder) WithVersion(version string) *Builder {
	b.server.version = version
	return b
}

// WithPluginTypes sets the content types reported by the plugin endpoint.
func (b *Builder) WithPluginTypes(types ...string) *Builder {
	b.server.pluginTypes = types
	return b
}

// WithRejectedPath makes distributor creation at relativePath fail with a 400.
func (b *Builder) WithRejectedPath(relativePath string) *Builder {
	b.server.rejectedPaths[relativePath] = true
	return b
}

// WithRefusedUpdate makes distributor updates to relativePath fail with a
// 400 instead of being accepted.
func (b *Builder) WithRefusedUpdate(relativePath string) *Builder {
	b.server.refusedPaths[relativePath] = true
	return b
}

// WithRelativePathConflicts makes the server refuse distributor paths equal
// to, nested in, or containing another distributor's path, as a fixed server
// does. Conflicting creates fail with a 400; conflicting updates are accepted
// but their task errors and the update is not applied.
func (b *Builder) WithRelativePathConflicts() *Builder {
	b.server.conflicts = true
	return b
}

// WithTask scripts the states a task moves through, one per read. The last
// state is repeated once reached.
func (b *Builder) WithTask(taskID string, states ...string) *Builder {
	b.server.scriptTask(taskID, states...)
	return b
}

// WithSpawningTask scripts a task that, once finished, references child tasks.
func (b *Builder) WithSpawningTask(taskID string, children []string, states ...string) *Builder {
	b.server.scriptTask(taskID, states...)

	last := b.server.tasks[taskID][len(states)-1]

	spawned := make([]map[string]any, 0, len(children))
	for _, child := range children {
		spawned = append(spawned, taskRef(child))
	}

	last["spawned_tasks"] = spawned

	return b
}

// Build starts the server.
func (b *Builder) Build() *Server {
	s := b.server

	router := chi.NewRouter()
	router.Use(s.record)

	router.Get(apiRoot+"/status/", s.getStatus)
	router.Get(apiRoot+"/plugins/types/", s.listPluginTypes)
	router.Delete(apiRoot+"/content/orphans/", s.deleteOrphans)
	router.Get(apiRoot+"/tasks/{taskID}/", s.getTask)
	router.Post(apiRoot+"/repositories/", s.createRepository)
	router.Get(apiRoot+"/repositories/{repoID}/", s.getRepository)
	router.Delete(apiRoot+"/repositories/{repoID}/", s.deleteRepository)
	router.Get(apiRoot+"/repositories/{repoID}/importers/", s.listImporters)
	router.Post(apiRoot+"/repositories/{repoID}/distributors/", s.createDistributor)
	router.Get(apiRoot+"/repositories/{repoID}/distributors/{distributorID}/", s.getDistributor)
	router.Put(apiRoot+"/repositories/{repoID}/distributors/{distributorID}/", s.updateDistributor)

	s.Server = httptest.NewServer(router)

	return s
}

// Requests returns every request received so far.
func (s *Server) Requests() []RecordedRequest {
	s.lock.Lock()
	defer s.lock.Unlock()

	return append([]RecordedRequest(nil), s.requests...)
}

// RepositoryIDs returns the IDs of the repositories that currently exist.
func (s *Server) RepositoryIDs() []string {
	s.lock.Lock()
	defer s.lock.Unlock()

	ids := make([]string, 0, len(s.repositories))
	for id := range s.repositories {
		ids = append(ids, id)
	}

	return ids
}

func (s *Server) scriptTask(taskID string, states ...string) {
	script := make([]map[string]any, 0, len(states))

	for _, state := range states {
		task := taskRef(taskID)
		task["state"] = state
		task["spawned_tasks"] = []map[string]any{}

		if state == "error" {
			task["error"] = map[string]any{"code": "PLP0000", "description": "scripted failure"}
		}

		script = append(script, task)
	}

	s.tasks[taskID] = script
}

func taskRef(taskID string) map[string]any {
	return map[string]any{
		"_href":   fmt.Sprintf("%s/tasks/%s/", apiRoot, taskID),
		"task_id": taskID,
	}
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte

		if r.Body != nil {
			var raw json.RawMessage
			if err := json.NewDecoder(r.Body).Decode(&raw); err == nil {
				body = raw
			}
		}

		s.lock.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   body,
		})
		s.lock.Unlock()

		r.Body = http.NoBody
		if body != nil {
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, description string) {
	writeJSON(w, status, map[string]any{
		"http_status": status,
		"description": description,
	})
}

// acceptTask answers with a call report spawning a freshly scripted task
// that finishes on its second read.
func (s *Server) acceptTask(w http.ResponseWriter) {
	s.nextID++
	taskID := fmt.Sprintf("task-%d", s.nextID)
	s.scriptTask(taskID, "running", "finished")

	writeJSON(w, http.StatusAccepted, map[string]any{
		"result":        nil,
		"error":         nil,
		"spawned_tasks": []map[string]any{taskRef(taskID)},
	})
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"versions":             map[string]any{"platform_version": s.version},
		"database":             map[string]any{"connected": true},
		"messaging_connection": map[string]any{"connected": true},
	})
}

func (s *Server) listPluginTypes(w http.ResponseWriter, _ *http.Request) {
	types := make([]map[string]any, 0, len(s.pluginTypes))
	for _, id := range s.pluginTypes {
		types = append(types, map[string]any{"id": id, "display_name": id})
	}

	writeJSON(w, http.StatusOK, types)
}

func (s *Server) deleteOrphans(w http.ResponseWriter, _ *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.acceptTask(w)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()

	taskID := chi.URLParam(r, "taskID")

	script, ok := s.tasks[taskID]
	if !ok {
		writeError(w, http.StatusNotFound, "Missing resource(s): task_id="+taskID)
		return
	}

	task := script[0]
	if len(script) > 1 {
		s.tasks[taskID] = script[1:]
	}

	writeJSON(w, http.StatusOK, task)
}

func (s *Server) createRepository(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, _ := body["id"].(string)
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing values for id")
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if _, exists := s.repositories[id]; exists {
		writeError(w, http.StatusConflict, "Duplicate resource: "+id)
		return
	}

	importerConfig, _ := body["importer_config"].(map[string]any)
	if importerConfig == nil {
		importerConfig = map[string]any{}
	}

	repo := &repository{
		body:         body,
		distributors: map[string]map[string]any{},
	}

	if typeID, ok := body["importer_type_id"].(string); ok {
		repo.importer = map[string]any{
			"_href":            fmt.Sprintf("%s/repositories/%s/importers/%s/", apiRoot, id, typeID),
			"id":               typeID,
			"repo_id":          id,
			"importer_type_id": typeID,
			"config":           importerConfig,
		}
	}

	s.repositories[id] = repo

	writeJSON(w, http.StatusCreated, repositoryView(id, body))
}

func repositoryView(id string, body map[string]any) map[string]any {
	return map[string]any{
		"_href":        fmt.Sprintf("%s/repositories/%s/", apiRoot, id),
		"id":           id,
		"display_name": id,
		"notes":        body["notes"],
	}
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (string, *repository) {
	id := chi.URLParam(r, "repoID")

	repo, ok := s.repositories[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Missing resource(s): repository="+id)
		return id, nil
	}

	return id, repo
}

func (s *Server) getRepository(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()

	id, repo := s.lookup(w, r)
	if repo == nil {
		return
	}

	writeJSON(w, http.StatusOK, repositoryView(id, repo.body))
}

func (s *Server) deleteRepository(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()

	id, repo := s.lookup(w, r)
	if repo == nil {
		return
	}

	delete(s.repositories, id)

	s.acceptTask(w)
}

func (s *Server) listImporters(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()

	_, repo := s.lookup(w, r)
	if repo == nil {
		return
	}

	importers := []map[string]any{}
	if repo.importer != nil {
		importers = append(importers, repo.importer)
	}

	writeJSON(w, http.StatusOK, importers)
}

func (s *Server) createDistributor(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	id, repo := s.lookup(w, r)
	if repo == nil {
		return
	}

	config, _ := body["distributor_config"].(map[string]any)
	if config == nil {
		config = map[string]any{}
	}

	if path, _ := config["relative_path"].(string); s.rejectedPaths[path] || s.conflicting(path, "") {
		writeError(w, http.StatusBadRequest, "Relative path conflicts with an existing distributor: "+path)
		return
	}

	s.nextID++
	distributorID := fmt.Sprintf("distributor-%d", s.nextID)
	typeID, _ := body["distributor_type_id"].(string)

	distributor := map[string]any{
		"_href":               fmt.Sprintf("%s/repositories/%s/distributors/%s/", apiRoot, id, distributorID),
		"id":                  distributorID,
		"repo_id":             id,
		"distributor_type_id": typeID,
		"auto_publish":        false,
		"config":              config,
	}

	repo.distributors[distributorID] = distributor

	writeJSON(w, http.StatusCreated, distributor)
}

func (s *Server) lookupDistributor(w http.ResponseWriter, r *http.Request) map[string]any {
	_, repo := s.lookup(w, r)
	if repo == nil {
		return nil
	}

	id := chi.URLParam(r, "distributorID")

	distributor, ok := repo.distributors[id]
	if !ok {
		writeError(w, http.StatusNotFound, "Missing resource(s): distributor="+id)
		return nil
	}

	return distributor
}

func (s *Server) getDistributor(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if distributor := s.lookupDistributor(w, r); distributor != nil {
		writeJSON(w, http.StatusOK, distributor)
	}
}

// updateDistributor accepts the request unless the path was registered with
// WithRefusedUpdate. Paths registered with WithRejectedPath are left
// unapplied and the spawned task errors.
func (s *Server) updateDistributor(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	distributor := s.lookupDistributor(w, r)
	if distributor == nil {
		return
	}

	update, _ := body["distributor_config"].(map[string]any)
	path, _ := update["relative_path"].(string)

	if s.refusedPaths[path] {
		writeError(w, http.StatusBadRequest, "Invalid relative path: "+path)
		return
	}

	s.nextID++
	taskID := fmt.Sprintf("task-%d", s.nextID)

	href, _ := distributor["_href"].(string)

	if s.rejectedPaths[path] || s.conflicting(path, href) {
		s.scriptTask(taskID, "running", "error")
	} else {
		config, _ := distributor["config"].(map[string]any)
		for key, value := range update {
			config[key] = value
		}

		s.scriptTask(taskID, "running", "finished")
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"result":        nil,
		"error":         nil,
		"spawned_tasks": []map[string]any{taskRef(taskID)},
	})
}

// conflicting reports whether path clashes with the path of any distributor
// other than the one at exclude.
func (s *Server) conflicting(path, exclude string) bool {
	if !s.conflicts {
		return false
	}

	path = strings.Trim(path, "/")

	for _, repo := range s.repositories {
		for _, distributor := range repo.distributors {
			if distributor["_href"] == exclude {
				continue
			}

			config, _ := distributor["config"].(map[string]any)
			other, _ := config["relative_path"].(string)
			other = strings.Trim(other, "/")

			if path == other || strings.HasPrefix(path, other+"/") || strings.HasPrefix(other, path+"/") {
				return true
			}
		}
	}

	return false
}
