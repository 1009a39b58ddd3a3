package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Task is a periodic background job.
type Task struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run. Zero means Interval.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Manager runs background tasks on their own tickers
type Manager struct {
	tasks   []Task
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewManager creates a manager for tasks. Tasks with a non-positive interval
// are skipped.
func NewManager(tasks ...Task) *Manager {
	m := &Manager{stopCh: make(chan struct{})}
	for _, t := range tasks {
		if t.Interval <= 0 || t.Run == nil {
			log.Warnf("[JobQueue Manager] Skipping task %q without interval", t.Name)
			continue
		}
		m.tasks = append(m.tasks, t)
	}
	return m
}

// Start starts the background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting background tasks")

	for _, t := range m.tasks {
		m.wg.Add(1)
		go m.worker(t, m.stopCh)
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the background tasks and waits for running ones to finish
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping background tasks...")
	close(m.stopCh)
	m.running = false
	m.wg.Wait()
	log.Info("[JobQueue Manager] Stopped successfully")
}

func (m *Manager) worker(t Task, stopCh <-chan struct{}) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started %s worker (interval: %s)", t.Name, t.Interval)

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			log.Infof("[JobQueue Manager] %s worker stopping", t.Name)
			return
		case <-ticker.C:
			if err := runTask(t); err != nil {
				log.Errorf("[JobQueue Manager] %s error: %v", t.Name, err)
			}
		}
	}
}

func runTask(t Task) error {
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = t.Interval
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return t.Run(ctx)
}

// RunOnce triggers a single run of the named task (admin use).
func (m *Manager) RunOnce(name string) error {
	for _, t := range m.tasks {
		if t.Name == name {
			return runTask(t)
		}
	}
	return fmt.Errorf("unknown task %q", name)
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
