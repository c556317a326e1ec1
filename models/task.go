package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// TaskStatus represents the possible statuses of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in-progress"
	StatusCompleted  TaskStatus = "completed"
	StatusCancelled  TaskStatus = "cancelled"
)

// Task is a unit of work. The persistence core treats the task list as an
// opaque snapshot; these fields exist so undo commands have concrete
// forward and reverse effects to replay.
type Task struct {
	ID          string     `json:"id" yaml:"id" toml:"id" validate:"required,uuid4"`
	Title       string     `json:"title" yaml:"title" toml:"title" validate:"required,min=1,max=255"`
	Notes       string     `json:"notes,omitempty" yaml:"notes,omitempty" toml:"notes,omitempty"`
	Status      TaskStatus `json:"status" yaml:"status" toml:"status" validate:"required,oneof=pending in-progress completed cancelled"`
	ParentID    *string    `json:"parentId,omitempty" yaml:"parentId,omitempty" toml:"parentId,omitempty" validate:"omitempty,uuid4"`
	Tags        []string   `json:"tags,omitempty" yaml:"tags,omitempty" toml:"tags,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" yaml:"createdAt" toml:"createdAt" validate:"required"`
	UpdatedAt   time.Time  `json:"updatedAt" yaml:"updatedAt" toml:"updatedAt" validate:"required"`
	CompletedAt *time.Time `json:"completedAt,omitempty" yaml:"completedAt,omitempty" toml:"completedAt,omitempty"`
}

// TaskList is the on-disk shape of the store: an ordered collection of tasks.
// Order is significant, reorder operations permute it.
type TaskList struct {
	Tasks      []Task `json:"tasks" yaml:"tasks" toml:"tasks" validate:"dive"`
	TotalCount int    `json:"totalCount" yaml:"totalCount" toml:"totalCount"`
}

var validate = validator.New()

// ValidateStruct performs validation on any struct carrying validation tags.
func ValidateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	var msgs []string
	for _, fieldErr := range validationErrors {
		msgs = append(msgs, fmt.Sprintf("field %s failed on %q", fieldErr.Field(), fieldErr.Tag()))
	}
	return fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
}
