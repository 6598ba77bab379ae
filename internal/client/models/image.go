// Package models defines client-side data models used by the imgkeeper client.
package models

// Image is one uploaded image as reported by the API, optionally enriched
// with a signed display URL.
type Image struct {
	// ID is the server-assigned, unique identifier.
	ID string `json:"id"`

	// FileName is the stored object name shown to the user.
	FileName string `json:"file_name"`

	// UserID identifies the owner.
	UserID string `json:"user_id"`

	// CreatedAt is the upload time; lists are kept newest first by it.
	CreatedAt Timestamp `json:"created_at"`

	// IsDeleted mirrors the server's soft-delete flag when the endpoint
	// reports it. The cache tracks trash membership by collection, not by
	// this field.
	IsDeleted bool `json:"is_deleted,omitempty"`

	// SignedURL is a time-limited display URL. Empty means none was fetched
	// or the fetch failed. It may have expired server-side.
	SignedURL string `json:"-"`
}

// HasSignedURL reports whether a display URL is attached.
func (i Image) HasSignedURL() bool {
	return i.SignedURL != ""
}

// SignedURLResponse is the body of GET /images/image-url/{id}.
type SignedURLResponse struct {
	URL string `json:"url"`
}
