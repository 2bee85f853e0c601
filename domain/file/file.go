// Package file describes uploaded attachments.
package file

import (
	"chat-hub/domain/mimetypes"
	"time"
)

type File struct {
	ID           string         `json:"_id"`
	OriginalName string         `json:"originalName"`
	Path         string         `json:"-"`
	URL          string         `json:"url"`
	MimeType     string         `json:"mimeType"`
	Size         int64          `json:"size"`
	Kind         mimetypes.Kind `json:"kind"`
	UploadedBy   string         `json:"uploadedBy"`
	CreatedAt    time.Time      `json:"createdAt"`
}
