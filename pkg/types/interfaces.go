package types

import (
	"context"
	"time"
)

// TaskManager defines the interface for background task coordination used by
// internal/mainloop to run the build-poll loop with heartbeat-based liveness
// tracking. The hot-reload watch loop runs on its own goroutine, not as a
// managed task.
type TaskManager interface {
	StartTask(ctx context.Context, taskID string, fn func(context.Context) error) error
	StopTask(taskID string) error
	Heartbeat(taskID string) error
	GetTaskStatus(taskID string) TaskStatus
	GetAllTasks() map[string]TaskStatus
	Cleanup()
}

// TaskStatus is a point-in-time snapshot of one managed task.
type TaskStatus struct {
	ID            string    `json:"id"`
	State         string    `json:"state"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	ErrorCount    int64     `json:"error_count"`
	LastError     string    `json:"last_error,omitempty"`
}

// CircuitBreaker defines the interface used to protect repeated plugin-load
// attempts within one internal/registry.Registry.
type CircuitBreaker interface {
	Allow() bool
	RecordSuccess()
	RecordFailure()
	State() string
}
