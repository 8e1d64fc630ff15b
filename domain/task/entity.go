package task

import (
	"strings"
	"time"
)

// StatusPending is the status every task starts with.
const StatusPending = "Pending"

// StatusCompleted is the status the web client sets when a task is done.
const StatusCompleted = "Completed"

// TimestampLayout formats created_at as UTC ISO-8601 with a trailing Z.
// The fixed microsecond precision keeps lexical and chronological order equal.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// Task is the core domain entity: a personal todo item owned by exactly one user.
type Task struct {
	ID          string `json:"task_id"`
	UserID      string `json:"user_id"`
	Name        string `json:"task_name"`
	Description string `json:"description"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// FormatTimestamp renders t in the created_at wire format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// OwnedBy reports whether userID owns the task.
func (t *Task) OwnedBy(userID string) bool {
	return t.UserID == userID
}

// Clone returns a copy that shares no state with t.
func (t *Task) Clone() *Task {
	c := *t
	return &c
}

// Patch is a partial update. A nil field is left untouched.
type Patch struct {
	Name        *string `json:"task_name,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
}

// IsEmpty reports whether the patch names none of the mutable fields.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Status == nil
}

// Apply writes the present fields onto t. Identity fields are never touched.
func (p Patch) Apply(t *Task) {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
}

// Fields returns the present fields keyed by column name.
func (p Patch) Fields() map[string]string {
	fields := make(map[string]string, 3)
	if p.Name != nil {
		fields["task_name"] = *p.Name
	}
	if p.Description != nil {
		fields["description"] = *p.Description
	}
	if p.Status != nil {
		fields["status"] = *p.Status
	}
	return fields
}

// Names lists the present field names in a fixed order.
func (p Patch) Names() []string {
	names := make([]string, 0, 3)
	if p.Name != nil {
		names = append(names, "task_name")
	}
	if p.Description != nil {
		names = append(names, "description")
	}
	if p.Status != nil {
		names = append(names, "status")
	}
	return names
}

func (p Patch) String() string {
	return strings.Join(p.Names(), ",")
}
