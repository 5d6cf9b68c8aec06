package upstream

import (
	"context"
	"net/http"

	"github.com/sawpanic/noticerun/internal/fault"
)

// LeaseUpload describes a file to attach to a lease.
type LeaseUpload struct {
	LeaseID    int64
	FileName   string
	Title      string
	CategoryID int64
}

// FileCategories lists file categories.
func (c *Client) FileCategories(ctx context.Context) ([]Category, error) {
	return list[Category](ctx, c, "file categories", "/files/categories", nil)
}

// CreateFileCategory creates a file category.
func (c *Client) CreateFileCategory(ctx context.Context, name string) (Category, error) {
	resp, err := c.write(ctx, "create file category", http.MethodPost, "/files/categories", map[string]string{"Name": name}, http.StatusCreated, http.StatusOK)
	if err != nil {
		return Category{}, err
	}
	return categoryFrom(resp.Body, name)
}

// RequestLeaseUpload asks for presigned credentials to attach a file to a
// lease.
func (c *Client) RequestLeaseUpload(ctx context.Context, u LeaseUpload) (UploadTicket, error) {
	body := map[string]any{
		"EntityType": "Lease",
		"EntityId":   u.LeaseID,
		"FileName":   u.FileName,
		"Title":      u.Title,
		"CategoryId": u.CategoryID,
	}
	resp, err := c.write(ctx, "lease upload request", http.MethodPost, "/files/uploadrequests", body, http.StatusCreated)
	if err != nil {
		return UploadTicket{}, err
	}
	return ticketFrom(resp.Body)
}

func ticketFrom(body []byte) (UploadTicket, error) {
	obj := objectOf(body)
	t := UploadTicket{
		BucketURL: firstString(obj, "BucketUrl", "BucketURL", "bucketUrl"),
		Fields:    firstStringMap(obj, "FormData", "formData", "Fields"),
	}
	if t.BucketURL == "" || len(t.Fields) == 0 {
		return UploadTicket{}, fault.Newf(fault.MalformedData, "upload request", "response carries no upload credentials")
	}
	return t, nil
}

func categoryFrom(body []byte, name string) (Category, error) {
	obj := objectOf(body)
	id, ok := firstInt(obj, "Id", "id", "CategoryId")
	if !ok {
		return Category{}, fault.Newf(fault.MalformedData, "create category", "response carries no category id")
	}
	if n := firstString(obj, "Name", "name"); n != "" {
		name = n
	}
	return Category{ID: id, Name: name}, nil
}

// FindOrCreateFileCategory returns the file category called name, creating
// it when missing.
func (c *Client) FindOrCreateFileCategory(ctx context.Context, name string) (Category, error) {
	cats, err := c.FileCategories(ctx)
	if err != nil {
		return Category{}, err
	}
	for _, cat := range cats {
		if cat.Name == name {
			return cat, nil
		}
	}
	return c.CreateFileCategory(ctx, name)
}

// FindOrCreateTaskCategory returns the task category called name, creating
// it when missing.
func (c *Client) FindOrCreateTaskCategory(ctx context.Context, name string) (Category, error) {
	cats, err := c.TaskCategories(ctx)
	if err != nil {
		return Category{}, err
	}
	for _, cat := range cats {
		if cat.Name == name {
			return cat, nil
		}
	}
	return c.CreateTaskCategory(ctx, name)
}
