package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/callsched/core/pkg/models"
	"github.com/callsched/core/pkg/utils"
)

// Memory implements JobStore and TaskStore in process memory.
type Memory struct {
	mu     sync.RWMutex
	jobs   map[string]*models.JobDefinition
	tasks  map[string][]*models.Task
	lastID map[string]int64
	now    func() time.Time
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		jobs:   make(map[string]*models.JobDefinition),
		tasks:  make(map[string][]*models.Task),
		lastID: make(map[string]int64),
		now:    time.Now,
	}
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.jobs[key]
	return ok, nil
}

func (m *Memory) Get(_ context.Context, key string) (*models.JobDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[key]
	if !ok {
		return nil, jobNotFound(key)
	}
	return job.Clone(), nil
}

func (m *Memory) Insert(_ context.Context, job *models.JobDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.Key]; ok {
		return keyInUse(job.Key)
	}
	stored := job.Clone()
	stored.CreatedAt = m.now().UTC()
	stored.UpdatedAt = stored.CreatedAt
	m.jobs[job.Key] = stored

	job.CreatedAt, job.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
	return nil
}

func (m *Memory) Save(_ context.Context, job *models.JobDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := job.Clone()
	now := m.now().UTC()
	if prev, ok := m.jobs[job.Key]; ok {
		stored.CreatedAt = prev.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.jobs[job.Key] = stored

	job.CreatedAt, job.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
	return nil
}

// Delete removes the job and its tasks. Task IDs of the key are not reused if
// the key is registered again.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[key]; !ok {
		return jobNotFound(key)
	}
	delete(m.jobs, key)
	delete(m.tasks, key)
	return nil
}

func (m *Memory) Search(_ context.Context, filter models.JobFilter) ([]*models.JobDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.JobDefinition
	for _, job := range m.jobs {
		if filter.Key != "" && job.Key != filter.Key {
			continue
		}
		if !utils.AnyTagMatches(job.Tags, filter.Tags) {
			continue
		}
		out = append(out, job.Clone())
	}
	sortJobs(out)
	return out, nil
}

func (m *Memory) List(ctx context.Context) ([]*models.JobDefinition, error) {
	return m.Search(ctx, models.JobFilter{})
}

// Tasks returns the TaskStore view of m. Memory satisfies both interfaces, but
// their Save methods collide, so tasks are reached through this adapter.
func (m *Memory) Tasks() TaskStore {
	return memoryTasks{m}
}

type memoryTasks struct {
	m *Memory
}

func (t memoryTasks) Save(_ context.Context, task *models.Task) (*models.Task, error) {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := task.Clone()
	now := m.now().UTC()
	stored.UpdatedAt = now

	if stored.ID == 0 {
		m.lastID[stored.JobKey]++
		stored.ID = m.lastID[stored.JobKey]
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		m.tasks[stored.JobKey] = append(m.tasks[stored.JobKey], stored)
		return stored.Clone(), nil
	}

	list := m.tasks[stored.JobKey]
	for i, existing := range list {
		if existing.ID == stored.ID {
			stored.CreatedAt = existing.CreatedAt
			list[i] = stored
			return stored.Clone(), nil
		}
	}
	return nil, taskNotFound(stored.JobKey, stored.ID)
}

func (t memoryTasks) FindLatest(_ context.Context, jobKey string) (*models.Task, error) {
	m := t.m
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.tasks[jobKey]
	if len(list) == 0 {
		return nil, noTasks(jobKey)
	}
	return list[len(list)-1].Clone(), nil
}

func (t memoryTasks) FindByJobKeyAndID(_ context.Context, jobKey string, id int64) (*models.Task, error) {
	m := t.m
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, task := range m.tasks[jobKey] {
		if task.ID == id {
			return task.Clone(), nil
		}
	}
	return nil, taskNotFound(jobKey, id)
}

func (t memoryTasks) FindAll(_ context.Context, jobKey string) ([]*models.Task, error) {
	m := t.m
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.tasks[jobKey]
	out := make([]*models.Task, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, list[i].Clone())
	}
	return out, nil
}

func (t memoryTasks) DeleteAllByJobKey(_ context.Context, jobKey string) error {
	m := t.m
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, jobKey)
	return nil
}

func (t memoryTasks) Search(_ context.Context, filter models.TaskFilter) ([]*models.Task, error) {
	m := t.m
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Task
	for key, list := range m.tasks {
		if filter.JobKey != "" && key != filter.JobKey {
			continue
		}
		for _, task := range list {
			if filter.Matches(task) {
				out = append(out, task.Clone())
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			if out[i].JobKey == out[j].JobKey {
				return out[i].ID < out[j].ID
			}
			return out[i].JobKey < out[j].JobKey
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func sortJobs(jobs []*models.JobDefinition) {
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Key < jobs[j].Key })
}
