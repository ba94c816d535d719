package dto

import "time"

// ExportRequestsQuery selects format and filters for a request export.
type ExportRequestsQuery struct {
	Format string `form:"format"`
	Status string `form:"status"`
	Search string `form:"search"`
	From   string `form:"from"`
	To     string `form:"to"`
}

// ExportResponse returns where the rendered export can be downloaded.
type ExportResponse struct {
	URL       string    `json:"url"`
	Format    string    `json:"format"`
	ExpiresAt time.Time `json:"expires_at"`
}
