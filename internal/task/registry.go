package task

import (
	"sort"
	"sync"
)

// Registry holds the tasks that are currently running. Lock hold times are bounded by
// map operations; no I/O happens under the lock.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]Task)}
}

// Insert adds t, refusing an id that is already present.
func (r *Registry) Insert(t Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[t.ID]; exists {
		return ErrDuplicateTask
	}
	r.tasks[t.ID] = t
	return nil
}

// Remove deletes the task with id and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[id]; !exists {
		return false
	}
	delete(r.tasks, id)
	return true
}

func (r *Registry) Get(id string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Snapshot returns summaries of all registered tasks, oldest first.
func (r *Registry) Snapshot() []Summary {
	r.mu.RLock()
	summaries := make([]Summary, 0, len(r.tasks))
	for _, t := range r.tasks {
		summaries = append(summaries, t.Summary())
	}
	r.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].StartedAt.Equal(summaries[j].StartedAt) {
			return summaries[i].ID < summaries[j].ID
		}
		return summaries[i].StartedAt.Before(summaries[j].StartedAt)
	})
	return summaries
}
