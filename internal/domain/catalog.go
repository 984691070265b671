package domain

// Package is a sellable travel package. Read-only from the pipeline's
// perspective; the dashboard owns writes.
type Package struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Images      []string `json:"images,omitempty"`
	Videos      []string `json:"videos,omitempty"`
	Price       string   `json:"price,omitempty"`
	Category    string   `json:"category,omitempty"`
	Active      bool     `json:"-"`
}
