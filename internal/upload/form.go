package upload

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"

	"github.com/sawpanic/noticerun/internal/fault"
)

// Target selects the field schema of a presigned upload.
type Target string

const (
	TargetLease Target = "lease"
	TargetTask  Target = "task"
)

// The object store validates the policy against the form fields in the
// order it issued them.
var commonFields = []string{
	"Key",
	"ACL",
	"Policy",
	"Content-Type",
	"Content-Disposition",
	"X-Amz-Algorithm",
	"X-Amz-Credential",
	"X-Amz-Date",
	"X-Amz-Signature",
	"X-Amz-Meta-Buildium-Entity-Type",
	"X-Amz-Meta-Buildium-Entity-Id",
	"X-Amz-Meta-Buildium-File-Source",
	"X-Amz-Meta-Buildium-File-Description",
	"X-Amz-Meta-Buildium-Account-Id",
	"X-Amz-Meta-Buildium-File-Name",
	"X-Amz-Meta-Buildium-File-Title",
}

// LeaseSchema is the field order for lease documents.
var LeaseSchema = withTail("X-Amz-Meta-Buildium-File-Category-Id", "X-Amz-Meta-Buildium-Finalize-Upload-Message-Version")

// TaskSchema is the field order for task-history attachments.
var TaskSchema = withTail("X-Amz-Meta-Buildium-Child-Entity-Id", "X-Amz-Meta-Buildium-Finalize-Upload-Message-Version")

func withTail(tail ...string) []string {
	out := make([]string, 0, len(commonFields)+len(tail))
	out = append(out, commonFields...)
	return append(out, tail...)
}

// Schema returns the field order for t.
func Schema(t Target) []string {
	if t == TargetTask {
		return TaskSchema
	}
	return LeaseSchema
}

// File is an upload payload. ContentType defaults to application/pdf.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// BuildForm writes fields in schema order followed by the file part and
// returns the multipart content type and body. A field missing from fields
// is a MalformedData error.
func BuildForm(schema []string, fields map[string]string, f File) (string, []byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, name := range schema {
		v, ok := fields[name]
		if !ok {
			return "", nil, fault.Newf(fault.MalformedData, "upload form", "ticket is missing field %q", name)
		}
		if err := w.WriteField(name, v); err != nil {
			return "", nil, fault.New(fault.EncryptionOrIO, "upload form", err)
		}
	}

	h := make(textproto.MIMEHeader)
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/pdf"
	}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, f.Name))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return "", nil, fault.New(fault.EncryptionOrIO, "upload form", err)
	}
	if _, err := part.Write(f.Data); err != nil {
		return "", nil, fault.New(fault.EncryptionOrIO, "upload form", err)
	}
	if err := w.Close(); err != nil {
		return "", nil, fault.New(fault.EncryptionOrIO, "upload form", err)
	}
	return w.FormDataContentType(), buf.Bytes(), nil
}
