package simpleupload

import "time"

// StoreContext is the structured reflection of the context parameter in a store response.
type StoreContext struct {
	Custom map[string]string `json:"custom,omitempty"`
}

// StoreResponse is the JSON body the object store returns for an accepted upload.
type StoreResponse struct {
	AssetID          string        `json:"asset_id"`
	PublicID         string        `json:"public_id"`
	Version          int64         `json:"version"`
	ResourceType     string        `json:"resource_type"`
	Format           string        `json:"format,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	Bytes            int64         `json:"bytes"`
	Tags             []string      `json:"tags"`
	AssetFolder      string        `json:"asset_folder,omitempty"`
	URL              string        `json:"url"`
	SecureURL        string        `json:"secure_url"`
	OriginalFilename string        `json:"original_filename,omitempty"`
	Context          *StoreContext `json:"context,omitempty"`
}

// StoreErrorResponse is the JSON body the object store returns for a rejected upload.
type StoreErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ErrorResponse is the JSON error body of the authorizer.
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
