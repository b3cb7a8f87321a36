package tasks

import (
	"fmt"
	"time"

	"github.com/clubspace/clubspace/internal/platform/httpx"
	"github.com/clubspace/clubspace/internal/shared"
)

// Task statuses.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

var (
	// ErrNotFound is returned for unknown task ids.
	ErrNotFound = fmt.Errorf("task %w", httpx.ErrNotFound)
	// ErrAssigneeNotMember rejects assigning tasks outside the club.
	ErrAssigneeNotMember = fmt.Errorf("%w: assignee must be a member of the club", httpx.ErrValidation)
)

// Task is a unit of club work.
type Task struct {
	ID           string     `json:"id"`
	ClubID       string     `json:"club_id"`
	ClubName     string     `json:"club_name"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	Priority     string     `json:"priority"`
	AssigneeID   string     `json:"assignee_id,omitempty"`
	AssigneeName string     `json:"assignee_name,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	CreatedBy    string     `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Overdue reports whether an open task is past its due date.
func (t Task) Overdue(now time.Time) bool {
	return t.Status != StatusDone && t.DueDate != nil && t.DueDate.Before(now)
}

// ListFilter narrows task listings.
type ListFilter struct {
	shared.ListParams
	ClubID     string
	Status     string
	AssigneeID string
	DueBefore  *time.Time
}

// CreateInput is the payload for a new task.
type CreateInput struct {
	ClubID      string     `json:"club_id" validate:"required,uuid"`
	Title       string     `json:"title" validate:"required,min=3,max=200"`
	Description string     `json:"description" validate:"max=4000"`
	Status      string     `json:"status" validate:"omitempty,oneof=todo in_progress done"`
	Priority    string     `json:"priority" validate:"omitempty,oneof=low normal high"`
	AssigneeID  string     `json:"assignee_id" validate:"omitempty,uuid"`
	DueDate     *time.Time `json:"due_date"`
}

// UpdateInput patches a task. Nil fields are left unchanged; an empty
// AssigneeID clears the assignee.
type UpdateInput struct {
	Title       *string    `json:"title" validate:"omitempty,min=3,max=200"`
	Description *string    `json:"description" validate:"omitempty,max=4000"`
	Status      *string    `json:"status" validate:"omitempty,oneof=todo in_progress done"`
	Priority    *string    `json:"priority" validate:"omitempty,oneof=low normal high"`
	AssigneeID  *string    `json:"assignee_id" validate:"omitempty,max=64"`
	DueDate     *time.Time `json:"due_date"`
}

// statusOnly reports whether the patch touches nothing but the status.
func (in UpdateInput) statusOnly() bool {
	return in.Status != nil && in.Title == nil && in.Description == nil && in.Priority == nil && in.AssigneeID == nil && in.DueDate == nil
}
