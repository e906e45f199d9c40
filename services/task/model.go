package task

import (
	"time"

	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSuccess   JobStatus = "success"
	JobFailed    JobStatus = "failed"
	JobDuplicate JobStatus = "duplicate"
)

// Job is an execution record for one enqueued background task. Its id doubles as the asynq task id.
type Job struct {
	ID          string         `gorm:"column:id;primaryKey;type:varchar(32)"`
	TaskName    string         `gorm:"column:task_name;index;type:varchar(100);not null"`
	Status      JobStatus      `gorm:"column:status;type:varchar(20);not null"`
	ErrorMsg    string         `gorm:"column:error_msg;type:text"`
	StartedAt   *time.Time     `gorm:"column:started_at"`
	CompletedAt *time.Time     `gorm:"column:completed_at"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at"`
	Metadata    datatypes.JSON `gorm:"column:metadata"`
}

func (Job) TableName() string {
	return "jobs"
}
