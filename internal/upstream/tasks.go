package upstream

import (
	"context"
	"net/http"

	"github.com/sawpanic/noticerun/internal/fault"
)

// Task reads one task.
func (c *Client) Task(ctx context.Context, taskID int64) (Task, error) {
	var t Task
	err := c.get(ctx, "get task", pathf("/tasks/%d", taskID), nil, &t)
	return t, err
}

// TaskHistory lists a task's history, newest first.
func (c *Client) TaskHistory(ctx context.Context, taskID int64) ([]TaskHistory, error) {
	return list[TaskHistory](ctx, c, "task history", pathf("/tasks/%d/history", taskID), nil)
}

// LatestHistoryID returns the id of the newest history entry of a task.
func (c *Client) LatestHistoryID(ctx context.Context, taskID int64) (int64, error) {
	history, err := c.TaskHistory(ctx, taskID)
	if err != nil {
		return 0, err
	}
	if len(history) == 0 {
		return 0, fault.Newf(fault.MalformedData, "task history", "task %d has no history", taskID)
	}
	return history[0].ID, nil
}

// TaskCategories lists task categories.
func (c *Client) TaskCategories(ctx context.Context) ([]Category, error) {
	return list[Category](ctx, c, "task categories", "/tasks/categories", nil)
}

// CreateTaskCategory creates a task category.
func (c *Client) CreateTaskCategory(ctx context.Context, name string) (Category, error) {
	resp, err := c.write(ctx, "create task category", http.MethodPost, "/tasks/categories", map[string]string{"Name": name}, http.StatusCreated, http.StatusOK)
	if err != nil {
		return Category{}, err
	}
	return categoryFrom(resp.Body, name)
}

// CreateTask creates a to-do task and returns its id.
func (c *Client) CreateTask(ctx context.Context, t NewTask) (int64, error) {
	resp, err := c.write(ctx, "create task", http.MethodPost, "/tasks/todorequests", t, http.StatusCreated, http.StatusOK)
	if err != nil {
		return 0, err
	}
	id, ok := firstInt(objectOf(resp.Body), "Id", "id", "TaskId")
	if !ok {
		return 0, fault.Newf(fault.MalformedData, "create task", "response carries no task id")
	}
	return id, nil
}

// UpdateTask updates a to-do task.
func (c *Client) UpdateTask(ctx context.Context, taskID int64, u TaskUpdate) error {
	_, err := c.write(ctx, "update task", http.MethodPut, pathf("/tasks/todorequests/%d", taskID), u, http.StatusOK)
	return err
}

// RequestTaskUpload asks for presigned credentials to attach a file to a
// task history entry.
func (c *Client) RequestTaskUpload(ctx context.Context, taskID, historyID int64, fileName string) (UploadTicket, error) {
	resp, err := c.write(ctx, "task upload request", http.MethodPost,
		pathf("/tasks/%d/history/%d/files/uploadrequests", taskID, historyID),
		map[string]string{"FileName": fileName}, http.StatusCreated, http.StatusOK)
	if err != nil {
		return UploadTicket{}, err
	}
	return ticketFrom(resp.Body)
}

// RequestTaskFileDownload returns a download URL for a task history file.
func (c *Client) RequestTaskFileDownload(ctx context.Context, taskID, historyID, fileID int64) (string, error) {
	resp, err := c.write(ctx, "task download request", http.MethodPost,
		pathf("/tasks/%d/history/%d/files/%d/downloadrequest", taskID, historyID, fileID),
		struct{}{}, http.StatusCreated)
	if err != nil {
		return "", err
	}
	u := firstString(objectOf(resp.Body), "DownloadUrl", "DownloadURL", "Url")
	if u == "" {
		return "", fault.Newf(fault.MalformedData, "task download request", "response carries no download url")
	}
	return u, nil
}

// Download fetches a presigned download URL without API headers.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	res, err := c.gw.FetchRaw(ctx, url)
	if err != nil {
		return nil, fault.New(fault.UpstreamRejected, "download", err)
	}
	if res.Status != http.StatusOK {
		return nil, fault.Status("download", res.Status, res.Body)
	}
	return res.Body, nil
}
