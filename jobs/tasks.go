package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeGLIntegrity is the task type for the ledger integrity
	// scan.
	TaskTypeGLIntegrity = "gl:integrity"
)

// NewGLIntegrityTask constructs the integrity scan task. The scan
// covers every company, so there is no payload.
func NewGLIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskTypeGLIntegrity, nil)
}
