// Package task defines the task entity, its lifecycle status, and the
// persistence contracts for the task store and the outstanding-task index.
package task

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/xraph/warrant"
	"github.com/xraph/warrant/id"
)

// Status represents the lifecycle status of a task.
type Status string

const (
	// StatusPending means the task is waiting to be claimed.
	StatusPending Status = "pending"
	// StatusClaimed means a worker holds a lease on the task.
	StatusClaimed Status = "claimed"
)

// Priority orders tasks for claiming. Higher priorities are offered first.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// DefaultPriority is applied when a submission omits the priority.
const DefaultPriority = PriorityMedium

// ParsePriority validates a priority string. An empty string yields
// DefaultPriority.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case "":
		return DefaultPriority, nil
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return Priority(s), nil
	default:
		return "", fmt.Errorf("%w: %q", warrant.ErrInvalidPriority, s)
	}
}

// Rank returns the numeric weight of the priority; higher ranks claim first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// PriorityFromRank maps a stored rank back to its Priority.
func PriorityFromRank(r int) Priority {
	switch r {
	case 3:
		return PriorityCritical
	case 2:
		return PriorityHigh
	case 1:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Task is a unit of work handed to competing workers. The submitter owns
// it until claimed; thereafter only the lease coordinator and the claiming
// worker's completion call mutate it.
type Task struct {
	ID        id.TaskID       `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	Priority  Priority        `json:"priority"`
	Status    Status          `json:"status"`
	QueuedAt  time.Time       `json:"queued_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SortCandidates orders tasks for claiming: priority rank descending,
// then queue time ascending (oldest first). The coordinator itself stays
// order-agnostic; ordering policy lives here, with the index.
func SortCandidates(tasks []*Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		ri, rj := tasks[i].Priority.Rank(), tasks[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return tasks[i].QueuedAt.Before(tasks[j].QueuedAt)
	})
}
