// Package task_manager supervises long-running background goroutines with
// heartbeat-based liveness tracking: start one, have it report in
// periodically, and get told if it stalls without needing to poll its
// internal state directly.
package task_manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inivation/caer-mainloop/pkg/types"
)

// Config controls heartbeat timeout and stale-task cleanup cadence.
type Config struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	TaskTimeout       time.Duration `yaml:"task_timeout"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
}

type taskManager struct {
	config Config
	tasks  map[string]*task
	mutex  sync.RWMutex
	logger *logrus.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	ID            string
	Fn            func(context.Context) error
	State         string
	StartedAt     time.Time
	LastHeartbeat time.Time
	ErrorCount    int64
	LastError     string
	Context       context.Context
	Cancel        context.CancelFunc
	Done          chan struct{}
}

// New builds a task manager and starts its stale-task cleanup loop.
func New(config Config, logger *logrus.Logger) types.TaskManager {
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = 30 * time.Second
	}
	if config.TaskTimeout == 0 {
		config.TaskTimeout = 5 * time.Minute
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	tm := &taskManager{
		config: config,
		tasks:  make(map[string]*task),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	tm.wg.Add(1)
	go func() {
		defer tm.wg.Done()
		tm.cleanupLoop()
	}()

	return tm
}

// StartTask runs fn in its own goroutine under a child of ctx, restarting
// over any prior instance of the same taskID that has already stopped.
func (tm *taskManager) StartTask(ctx context.Context, taskID string, fn func(context.Context) error) error {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	if existing, exists := tm.tasks[taskID]; exists {
		if existing.State == "running" {
			return fmt.Errorf("task %s is already running", taskID)
		}
		existing.Cancel()
		<-existing.Done
	}

	taskCtx, taskCancel := context.WithCancel(ctx)

	newTask := &task{
		ID:            taskID,
		Fn:            fn,
		State:         "running",
		StartedAt:     time.Now(),
		LastHeartbeat: time.Now(),
		Context:       taskCtx,
		Cancel:        taskCancel,
		Done:          make(chan struct{}),
	}

	tm.tasks[taskID] = newTask
	go tm.runTask(newTask)

	tm.logger.WithField("task_id", taskID).Info("task started")
	return nil
}

func (tm *taskManager) runTask(t *task) {
	defer close(t.Done)

	defer func() {
		if r := recover(); r != nil {
			tm.mutex.Lock()
			t.State = "failed"
			t.ErrorCount++
			t.LastError = fmt.Sprintf("panic: %v", r)
			tm.mutex.Unlock()

			tm.logger.WithFields(logrus.Fields{
				"task_id": t.ID,
				"error":   r,
			}).Error("task panicked")
		}
	}()

	err := t.Fn(t.Context)

	tm.mutex.Lock()
	if err != nil {
		t.State = "failed"
		t.ErrorCount++
		t.LastError = err.Error()
		tm.mutex.Unlock()

		tm.logger.WithFields(logrus.Fields{
			"task_id": t.ID,
			"error":   err,
		}).Error("task failed")
		return
	}

	t.State = "completed"
	t.LastError = ""
	tm.mutex.Unlock()

	tm.logger.WithField("task_id", t.ID).Info("task completed")
}

// StopTask cancels a running task and waits for it to exit, up to 10s.
func (tm *taskManager) StopTask(taskID string) error {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	t, exists := tm.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %s not found", taskID)
	}
	if t.State != "running" {
		return fmt.Errorf("task %s is not running", taskID)
	}

	t.Cancel()

	select {
	case <-t.Done:
		t.State = "stopped"
		tm.logger.WithField("task_id", taskID).Info("task stopped")
	case <-time.After(10 * time.Second):
		t.State = "failed"
		t.LastError = "stop timeout"
		tm.logger.WithField("task_id", taskID).Warn("task stop timeout")
	}

	return nil
}

// Heartbeat marks taskID as still alive, resetting its timeout window.
func (tm *taskManager) Heartbeat(taskID string) error {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	t, exists := tm.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %s not found", taskID)
	}
	t.LastHeartbeat = time.Now()
	return nil
}

// GetTaskStatus returns a snapshot of one task's state.
func (tm *taskManager) GetTaskStatus(taskID string) types.TaskStatus {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	t, exists := tm.tasks[taskID]
	if !exists {
		return types.TaskStatus{ID: taskID, State: "not_found"}
	}

	return types.TaskStatus{
		ID:            t.ID,
		State:         t.State,
		StartedAt:     t.StartedAt,
		LastHeartbeat: t.LastHeartbeat,
		ErrorCount:    t.ErrorCount,
		LastError:     t.LastError,
	}
}

// GetAllTasks returns a snapshot of every tracked task.
func (tm *taskManager) GetAllTasks() map[string]types.TaskStatus {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	result := make(map[string]types.TaskStatus, len(tm.tasks))
	for id, t := range tm.tasks {
		result[id] = types.TaskStatus{
			ID:            t.ID,
			State:         t.State,
			StartedAt:     t.StartedAt,
			LastHeartbeat: t.LastHeartbeat,
			ErrorCount:    t.ErrorCount,
			LastError:     t.LastError,
		}
	}
	return result
}

func (tm *taskManager) cleanupLoop() {
	ticker := time.NewTicker(tm.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-tm.ctx.Done():
			return
		case <-ticker.C:
			tm.cleanupTasks()
		}
	}
}

func (tm *taskManager) cleanupTasks() {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	now := time.Now()
	var toDelete []string

	for id, t := range tm.tasks {
		if t.State == "running" && now.Sub(t.LastHeartbeat) > tm.config.TaskTimeout {
			tm.logger.WithField("task_id", id).Warn("task timeout detected, stopping")
			t.Cancel()
			t.State = "failed"
			t.LastError = "heartbeat timeout"
		}
		if t.State != "running" && now.Sub(t.StartedAt) > time.Hour {
			toDelete = append(toDelete, id)
		}
	}

	for _, id := range toDelete {
		delete(tm.tasks, id)
		tm.logger.WithField("task_id", id).Debug("task cleaned up")
	}
}

// Cleanup cancels every running task and stops the cleanup loop, waiting up
// to 10s for it to exit and 5s per task for it to acknowledge cancellation.
func (tm *taskManager) Cleanup() {
	tm.mutex.Lock()
	tm.cancel()
	tm.mutex.Unlock()

	done := make(chan struct{})
	go func() {
		tm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		tm.logger.Info("task manager cleanup loop stopped")
	case <-time.After(10 * time.Second):
		tm.logger.Warn("timeout waiting for task manager cleanup loop to stop")
	}

	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	for id, t := range tm.tasks {
		if t.State == "running" {
			t.Cancel()
			select {
			case <-t.Done:
			case <-time.After(5 * time.Second):
				tm.logger.WithField("task_id", id).Warn("task cleanup timeout")
			}
		}
	}

	tm.logger.Info("task manager cleanup completed")
}
