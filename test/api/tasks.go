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
	"fmt"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	TaskStateWaiting   = "waiting"
	TaskStateRunning   = "running"
	TaskStateSuspended = "suspended"
	TaskStateFinished  = "finished"
	TaskStateError     = "error"
	TaskStateCanceled  = "canceled"
	TaskStateSkipped   = "skipped"
)

//nolint:gochecknoglobals
var terminalTaskStates = sets.New(TaskStateFinished, TaskStateError, TaskStateCanceled, TaskStateSkipped)

// IsTerminal reports whether the task will not change state any more.
func (t *Task) IsTerminal() bool {
	return terminalTaskStates.Has(t.State)
}

// TaskTimeoutError is returned when a task does not finish in time.
type TaskTimeoutError struct {
	Href  string
	State string
	Err   error
}

func (e *TaskTimeoutError) Error() string {
	return fmt.Sprintf("task %s still %q after polling timed out: %v", e.Href, e.State, e.Err)
}

func (e *TaskTimeoutError) Unwrap() error {
	return e.Err
}

// PollTask reads the task at href until it reaches a terminal state.
func PollTask(ctx context.Context, client *APIClient, href string) (*Task, error) {
	config := client.Config()

	var task *Task

	condition := func(ctx context.Context) (bool, error) {
		current, err := client.GetTask(ctx, href)
		if err != nil {
			return false, err
		}

		task = current

		return task.IsTerminal(), nil
	}

	if err := wait.PollUntilContextTimeout(ctx, config.TaskPollInterval, config.TaskTimeout, true, condition); err != nil {
		// The caller gave up, the task did not time out.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("polling task %s: %w", href, ctx.Err())
		}

		if wait.Interrupted(err) {
			state := ""
			if task != nil {
				state = task.State
			}

			return nil, &TaskTimeoutError{Href: href, State: state, Err: err}
		}

		return nil, fmt.Errorf("polling task %s: %w", href, err)
	}

	client.Logger().V(1).Info("task complete", "href", href, "state", task.State)

	return task, nil
}

// PollSpawnedTasks waits for every task referenced by report, and for every
// task those tasks spawn in turn, returning the final state of each in the
// order they were discovered. Tasks that end in error are returned rather
// than reported as an error; see FailedTasks.
func PollSpawnedTasks(ctx context.Context, client *APIClient, report *CallReport) ([]Task, error) {
	queue := append([]TaskRef(nil), report.SpawnedTasks...)
	seen := sets.New[string]()

	var tasks []Task

	for len(queue) > 0 {
		ref := queue[0]
		queue = queue[1:]

		if ref.Href == "" {
			ref.Href = client.Endpoints().Task(ref.TaskID)
		}

		if seen.Has(ref.Href) {
			continue
		}

		seen.Insert(ref.Href)

		task, err := PollTask(ctx, client, ref.Href)
		if err != nil {
			return nil, err
		}

		tasks = append(tasks, *task)
		queue = append(queue, task.SpawnedTasks...)
	}

	return tasks, nil
}

// FailedTasks returns the tasks that ended in the error state.
func FailedTasks(tasks []Task) []Task {
	var failed []Task

	for _, task := range tasks {
		if task.State == TaskStateError {
			failed = append(failed, task)
		}
	}

	return failed
}
