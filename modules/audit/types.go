package audit

// ServiceGetTaskActivity serves an owner's task activity counters.
const ServiceGetTaskActivity = "get-task-activity"

// GetTaskActivityRequest is the request for an owner's activity.
type GetTaskActivityRequest struct {
	UserID string `json:"user_id"`
}
