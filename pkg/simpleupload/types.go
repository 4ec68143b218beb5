package simpleupload

import (
	"io"
	"time"
)

// Resource kinds reported by the object store.
const (
	ResourceImage = "image"
	ResourceVideo = "video"
	ResourceRaw   = "raw"
	ResourceAuto  = "auto"
)

// Signed parameter names understood by the object store.
const (
	ParamContext      = "context"
	ParamFolder       = "folder"
	ParamTags         = "tags"
	ParamTimestamp    = "timestamp"
	ParamUploadPreset = "upload_preset"
)

// File is one payload of an upload request. Body is read exactly once.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Body        io.Reader
}

// Contributor is the caller-supplied metadata attached to every file of a submission.
type Contributor struct {
	Name    string
	Message string
}

// AuthorizationRequest is the candidate parameter set a client asks the authorizer to sign.
// Timestamp is accepted on the wire for compatibility but never signed.
type AuthorizationRequest struct {
	UploadPreset string `json:"upload_preset"`
	Folder       string `json:"folder,omitempty"`
	Context      string `json:"context,omitempty"`
	Tags         string `json:"tags,omitempty"`
	Timestamp    *int64 `json:"timestamp,omitempty"`
}

// AuthorizationToken is a signature over a canonical parameter set and the timestamp it embeds.
type AuthorizationToken struct {
	Signature string `json:"signature"`
	Timestamp int64  `json:"timestamp"`
}

// IssuedAt returns the token timestamp as a time.
func (t AuthorizationToken) IssuedAt() time.Time {
	return time.Unix(t.Timestamp, 0)
}

// UploadResult describes a stored asset.
type UploadResult struct {
	URL          string            `json:"url"`
	ResourceID   string            `json:"resource_id"`
	ResourceKind string            `json:"resource_kind"`
	Folder       string            `json:"folder,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Bytes        int64             `json:"bytes,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// DisplayName returns the contributor name carried by the stored metadata.
func (r *UploadResult) DisplayName() string {
	return r.Metadata["name"]
}

// DisplayMessage returns the contributor message carried by the stored metadata.
func (r *UploadResult) DisplayMessage() string {
	return r.Metadata["message"]
}
