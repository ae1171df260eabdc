package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type TaskStatus string

const (
	TaskStatusPending     TaskStatus = "PENDING"
	TaskStatusRunning     TaskStatus = "RUNNING"
	TaskStatusNeedsHelp   TaskStatus = "NEEDS_HELP"
	TaskStatusNeedsReview TaskStatus = "NEEDS_REVIEW"
	TaskStatusCompleted   TaskStatus = "COMPLETED"
	TaskStatusCancelled   TaskStatus = "CANCELLED"
	TaskStatusFailed      TaskStatus = "FAILED"
)

var taskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusRunning,
	TaskStatusNeedsHelp,
	TaskStatusNeedsReview,
	TaskStatusCompleted,
	TaskStatusCancelled,
	TaskStatusFailed,
}

// AllTaskStatuses returns every status in lifecycle order.
func AllTaskStatuses() []TaskStatus {
	out := make([]TaskStatus, len(taskStatuses))
	copy(out, taskStatuses)
	return out
}

// ParseTaskStatus accepts the canonical form as well as lower case and
// underscore-less spellings ("needshelp").
func ParseTaskStatus(s string) (TaskStatus, error) {
	norm := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), "_", "")
	for _, st := range taskStatuses {
		if strings.ReplaceAll(string(st), "_", "") == norm {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusCancelled, TaskStatusFailed:
		return true
	}
	return false
}

func (s TaskStatus) IsActive() bool {
	switch s {
	case TaskStatusRunning, TaskStatusNeedsHelp, TaskStatusNeedsReview:
		return true
	}
	return false
}

type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "LOW"
	TaskPriorityMedium TaskPriority = "MEDIUM"
	TaskPriorityHigh   TaskPriority = "HIGH"
	TaskPriorityUrgent TaskPriority = "URGENT"
)

func ParseTaskPriority(s string) (TaskPriority, error) {
	switch p := TaskPriority(strings.ToUpper(strings.TrimSpace(s))); p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityUrgent:
		return p, nil
	}
	return "", fmt.Errorf("unknown task priority %q", s)
}

type TaskType string

const (
	TaskTypeImmediate TaskType = "IMMEDIATE"
	TaskTypeScheduled TaskType = "SCHEDULED"
)

func ParseTaskType(s string) (TaskType, error) {
	switch t := TaskType(strings.ToUpper(strings.TrimSpace(s))); t {
	case TaskTypeImmediate, TaskTypeScheduled:
		return t, nil
	}
	return "", fmt.Errorf("unknown task type %q", s)
}

// Role is shared by task control, task creator and message author.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleUser, RoleAssistant:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// ModelDescriptor identifies the AI model a task runs on.
type ModelDescriptor struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
	Title    string `json:"title,omitempty"`
}

type Task struct {
	ID          uuid.UUID    `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Description string       `gorm:"type:text;not null" json:"description"`
	Type        TaskType     `gorm:"type:text;not null;default:'IMMEDIATE'" json:"type"`
	Status      TaskStatus   `gorm:"type:text;not null;default:'PENDING';index:ix_task_status_scheduled,priority:1" json:"status"`
	Priority    TaskPriority `gorm:"type:text;not null;default:'MEDIUM'" json:"priority"`
	Control     Role         `gorm:"type:text;not null;default:'ASSISTANT'" json:"control"`
	CreatedBy   Role         `gorm:"type:text;not null;default:'USER'" json:"created_by"`

	ScheduledFor *time.Time `gorm:"index:ix_task_status_scheduled,priority:2" json:"scheduled_for,omitempty"`
	ExecutedAt   *time.Time `json:"executed_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	QueuedAt     *time.Time `json:"queued_at,omitempty"`

	Error  *string        `gorm:"type:text" json:"error,omitempty"`
	Result datatypes.JSON `gorm:"type:jsonb" swaggertype:"object" json:"result,omitempty"`

	Model datatypes.JSONType[ModelDescriptor] `gorm:"type:jsonb;not null" swaggertype:"object" json:"model"`

	UserID *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Task <-> Message (one-to-many)
	Messages []Message `gorm:"constraint:OnDelete:CASCADE,OnUpdate:CASCADE;" json:"-"`
}

func (Task) TableName() string { return "tasks" }

// NewTask returns a pending task carrying the default priority, type,
// control and creator.
func NewTask(description string, md ModelDescriptor) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:          uuid.New(),
		Description: description,
		Type:        TaskTypeImmediate,
		Status:      TaskStatusPending,
		Priority:    TaskPriorityMedium,
		Control:     RoleAssistant,
		CreatedBy:   RoleUser,
		Model:       datatypes.NewJSONType(md),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (t *Task) IsTerminal() bool { return t.Status.IsTerminal() }

func (t *Task) IsActive() bool { return t.Status.IsActive() }

func (t *Task) SetError(msg string) {
	t.Error = &msg
}

// IntegrityRule names one invariant checked by ValidateIntegrity.
type IntegrityRule string

const (
	RuleCompletedAt  IntegrityRule = "completed_at_required"
	RuleScheduledFor IntegrityRule = "scheduled_for_required"
	RuleExecutedAt   IntegrityRule = "executed_at_required"
	RuleModel        IntegrityRule = "model_descriptor_required"
)

var ErrIntegrity = errors.New("task integrity violation")

type IntegrityError struct {
	Rule    IntegrityRule
	Message string
}

func (e *IntegrityError) Error() string { return e.Message }

func (e *IntegrityError) Is(target error) bool { return target == ErrIntegrity }

// ValidateIntegrity returns the first violated invariant, checked in a fixed order.
func (t *Task) ValidateIntegrity() error {
	if t.Status == TaskStatusCompleted && t.CompletedAt == nil {
		return &IntegrityError{Rule: RuleCompletedAt, Message: "Completed tasks must have completion timestamp"}
	}
	if t.Type == TaskTypeScheduled && t.ScheduledFor == nil {
		return &IntegrityError{Rule: RuleScheduledFor, Message: "Scheduled tasks must have scheduled_for timestamp"}
	}
	switch t.Status {
	case TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed:
		if t.ExecutedAt == nil {
			return &IntegrityError{Rule: RuleExecutedAt, Message: "Executed tasks must have execution timestamp"}
		}
	}
	md := t.Model.Data()
	if strings.TrimSpace(md.Provider) == "" || strings.TrimSpace(md.Name) == "" {
		return &IntegrityError{Rule: RuleModel, Message: "Model must be an object with provider and name"}
	}
	return nil
}
