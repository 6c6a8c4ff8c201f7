// Package tasks tracks background commands for the lifetime of the
// process. The registry is in-memory only; a restart forgets every task.
package tasks

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

var allowedTransitions = map[Status]map[Status]struct{}{
	StatusPending: {
		StatusRunning: {},
		StatusFailed:  {}, // Spawn failure before the command ever ran.
	},
	StatusRunning: {
		StatusDone:   {},
		StatusFailed: {},
	},
}

func canTransition(from, to Status) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// Task is one background command and its outcome.
type Task struct {
	ID         string
	UserID     int64
	ChatID     int64
	Command    string
	Status     Status
	Output     string
	Success    bool
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

func (t Task) Terminal() bool {
	return t.Status == StatusDone || t.Status == StatusFailed
}

// Registry holds tasks keyed by short id.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*Task
	order []string

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]*Task),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a new pending task and returns its id, a short token
// of the first 8 hex characters of a fresh UUID.
func (r *Registry) Create(userID, chatID int64, command string) *Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()[:8]
	for _, exists := r.tasks[id]; exists; _, exists = r.tasks[id] {
		id = uuid.NewString()[:8]
	}
	task := &Task{
		ID:        id,
		UserID:    userID,
		ChatID:    chatID,
		Command:   command,
		Status:    StatusPending,
		CreatedAt: r.now(),
	}
	r.tasks[id] = task
	r.order = append(r.order, id)
	return cloneTask(task)
}

// MarkRunning transitions the task to running.
func (r *Registry) MarkRunning(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: not found", id)
	}
	if !canTransition(task.Status, StatusRunning) {
		return fmt.Errorf("task %s: cannot transition %s -> %s", id, task.Status, StatusRunning)
	}
	task.Status = StatusRunning
	task.StartedAt = r.now()
	return nil
}

// Complete records the task's outcome. success selects done vs failed.
// Terminal tasks are frozen; completing one twice is an error.
func (r *Registry) Complete(id string, output string, success bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: not found", id)
	}
	to := StatusDone
	if !success {
		to = StatusFailed
	}
	if !canTransition(task.Status, to) {
		return fmt.Errorf("task %s: cannot transition %s -> %s", id, task.Status, to)
	}
	task.Status = to
	task.Output = output
	task.Success = success
	task.FinishedAt = r.now()
	return nil
}

// Get returns a copy of the task, or false when the id is unknown.
func (r *Registry) Get(id string) (Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *cloneTask(task), true
}

// ListRecent returns up to limit of the user's tasks in that chat, newest
// registered first. limit <= 0 returns all of them.
func (r *Registry) ListRecent(userID, chatID int64, limit int) []Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Task
	for i := len(r.order) - 1; i >= 0; i-- {
		task := r.tasks[r.order[i]]
		if task.UserID != userID || task.ChatID != chatID {
			continue
		}
		out = append(out, *cloneTask(task))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Prune drops terminal tasks that finished before the cutoff and returns
// how many were removed. Pending and running tasks always survive.
func (r *Registry) Prune(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	kept := r.order[:0]
	for _, id := range r.order {
		task := r.tasks[id]
		if task.Terminal() && task.FinishedAt.Before(cutoff) {
			delete(r.tasks, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return removed
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

func cloneTask(t *Task) *Task {
	c := *t
	return &c
}
