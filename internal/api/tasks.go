package api

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/nhle/teamdesk/internal/model"
)

// TaskQuery narrows the task list to a date range. Zero values are omitted.
type TaskQuery struct {
	Start time.Time
	End   time.Time
}

func (q TaskQuery) encode() string {
	v := url.Values{}
	if !q.Start.IsZero() {
		v.Set("start_date", q.Start.Format("2006-01-02"))
	}
	if !q.End.IsZero() {
		v.Set("end_date", q.End.Format("2006-01-02"))
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

// ListTasks returns the tasks visible to the current user.
func (c *Client) ListTasks(ctx context.Context, q TaskQuery) ([]model.Task, error) {
	var tasks []model.Task
	if err := c.Get(ctx, "/api/tasks/"+q.encode(), &tasks); err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return tasks, nil
}
