package openlibraryrepo

import "context"

// ExternalBook is one search hit mapped down from the OpenLibrary doc shape.
type ExternalBook struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	ISBN          string `json:"isbn,omitempty"`
	PublishedYear int    `json:"published_year,omitempty"`
	ExternalID    string `json:"external_id"`
}

type SearchPage struct {
	Data       []ExternalBook `json:"data"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"total_pages"`
}

type Repo interface {
	Search(ctx context.Context, query string, page, limit int) (*SearchPage, error)
}
