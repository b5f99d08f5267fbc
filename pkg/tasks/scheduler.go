// Package tasks provides an in-process scheduler for periodic tasks
// using a simple, human-friendly interval syntax.
package tasks

import (
	"sort"
	"sync"
	"time"

	"github.com/effective-security/xlog"
	"github.com/pkg/errors"
)

var logger = xlog.NewPackageLogger("github.com/trustpass/inspect/pkg", "tasks")

// DefaultTickerInterval for scheduler
const DefaultTickerInterval = time.Second

// Scheduler defines the scheduler interface
type Scheduler interface {
	// Add adds a task to a pool of scheduled tasks
	Add(Task) Scheduler
	// Get returns the task by id, nil if not found
	Get(id string) Task
	// List returns all registered tasks
	List() []Task
	// Count returns the number of registered tasks
	Count() int
	// IsRunning returns the status
	IsRunning() bool
	// Start all the pending tasks
	Start() error
	// Stop the scheduler
	Stop() error
}

type scheduler struct {
	tasks   []Task
	ticker  time.Duration
	running bool
	quit    chan bool
	lock    sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler() Scheduler {
	return &scheduler{
		tasks:  []Task{},
		ticker: DefaultTickerInterval,
		quit:   make(chan bool, 1),
	}
}

// Add adds a task to a pool of scheduled tasks
func (s *scheduler) Add(t Task) Scheduler {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.tasks = append(s.tasks, t)
	return s
}

// Get returns the task by id
func (s *scheduler) Get(id string) Task {
	s.lock.RLock()
	defer s.lock.RUnlock()
	for _, t := range s.tasks {
		if t.ID() == id {
			return t
		}
	}
	return nil
}

// List returns all registered tasks
func (s *scheduler) List() []Task {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return append([]Task(nil), s.tasks...)
}

// Count returns the number of registered tasks
func (s *scheduler) Count() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.tasks)
}

// IsRunning returns the status
func (s *scheduler) IsRunning() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.running
}

// getRunnableTasks returns the due tasks ordered by next run time.
func (s *scheduler) getRunnableTasks() []Task {
	s.lock.Lock()
	defer s.lock.Unlock()

	sort.Slice(s.tasks, func(i, j int) bool {
		return s.tasks[j].Schedule().NextRunAt.After(s.tasks[i].Schedule().NextRunAt)
	})

	var runnable []Task
	for _, t := range s.tasks {
		if t.ShouldRun() {
			runnable = append(runnable, t)
		}
	}
	return runnable
}

// Start all the pending tasks
func (s *scheduler) Start() error {
	s.lock.Lock()
	if s.running {
		s.lock.Unlock()
		return errors.New("already running")
	}
	s.running = true
	s.lock.Unlock()

	go func() {
		ticker := time.NewTicker(s.ticker)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				for _, t := range s.getRunnableTasks() {
					logger.KV(xlog.DEBUG, "status", "run", "task", t.Name())
					t.Run()
				}
			case <-s.quit:
				return
			}
		}
	}()
	return nil
}

// Stop the scheduler
func (s *scheduler) Stop() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.running {
		return errors.New("not running")
	}
	s.running = false
	s.quit <- true
	return nil
}
