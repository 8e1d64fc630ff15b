package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// ActivityPort reads task activity counters.
type ActivityPort interface {
	GetTaskActivity(ctx context.Context, userID string) (*Activity, error)
}

// activityAdapter implements ActivityPort using the service container.
type activityAdapter struct {
	container mono.ServiceContainer
}

// NewActivityAdapter creates a new adapter for the audit service.
func NewActivityAdapter(container mono.ServiceContainer) ActivityPort {
	return &activityAdapter{
		container: container,
	}
}

// GetTaskActivity retrieves the owner's activity counters.
func (a *activityAdapter) GetTaskActivity(ctx context.Context, userID string) (*Activity, error) {
	req := GetTaskActivityRequest{UserID: userID}
	var resp Activity
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceGetTaskActivity,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("%s service call failed: %w", ServiceGetTaskActivity, err)
	}
	return &resp, nil
}
