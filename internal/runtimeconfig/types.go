package runtimeconfig

import "github.com/eugenenazirov/rcloadenv/internal/transform"

// ListResponse is one page of the variables listing.
type ListResponse struct {
	Variables     []transform.RawVariable `json:"variables"`
	NextPageToken string                  `json:"nextPageToken,omitempty"`
}
