package openlibraryrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Youngprinnce/digital-library/util/httpx"
)

type httpRepo struct {
	baseURL string
	client  *http.Client
}

func NewHTTP(baseURL string) Repo {
	return &httpRepo{baseURL: baseURL, client: httpx.Client()}
}

func (r *httpRepo) Search(ctx context.Context, query string, page, limit int) (*SearchPage, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa((page-1)*limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/search.json?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openlibrary search failed: %s", resp.Status)
	}

	var out struct {
		NumFound int64 `json:"numFound"`
		Docs     []struct {
			Key              string   `json:"key"`
			Title            string   `json:"title"`
			AuthorName       []string `json:"author_name"`
			ISBN             []string `json:"isbn"`
			FirstPublishYear int      `json:"first_publish_year"`
		} `json:"docs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	books := make([]ExternalBook, 0, len(out.Docs))
	for _, d := range out.Docs {
		b := ExternalBook{
			Title:         d.Title,
			Author:        "Unknown Author",
			PublishedYear: d.FirstPublishYear,
			ExternalID:    d.Key,
		}
		if len(d.AuthorName) > 0 {
			b.Author = d.AuthorName[0]
		}
		if len(d.ISBN) > 0 {
			b.ISBN = d.ISBN[0]
		}
		books = append(books, b)
	}

	totalPages := 0
	if out.NumFound > 0 {
		totalPages = int((out.NumFound + int64(limit) - 1) / int64(limit))
	}
	return &SearchPage{
		Data:       books,
		Total:      out.NumFound,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
	}, nil
}
