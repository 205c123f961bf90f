package booksvc

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Youngprinnce/digital-library/model"
	olrepo "github.com/Youngprinnce/digital-library/repository/openlibrary"
)

var ErrBadInput = errors.New("invalid payload")

type Repo interface {
	Create(ctx context.Context, title, author, description string) (*model.Book, error)
	List(ctx context.Context, page, limit int) ([]model.Book, int64, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)
}

// Page is the paginated catalog listing shape.
type Page struct {
	Data       []model.Book `json:"data"`
	Total      int64        `json:"total"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	TotalPages int          `json:"total_pages"`
}

type Service interface {
	Create(ctx context.Context, title, author, description string) (*model.Book, error)
	List(ctx context.Context, page, limit int) (*Page, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)
	Search(ctx context.Context, query string, page, limit int) (*olrepo.SearchPage, error)
}

type service struct {
	r   Repo
	ol  olrepo.Repo
	log *slog.Logger
}

func New(r Repo, ol olrepo.Repo, log *slog.Logger) Service {
	return &service{r: r, ol: ol, log: log}
}

func (s *service) Create(ctx context.Context, title, author, description string) (*model.Book, error) {
	if title == "" || author == "" {
		return nil, ErrBadInput
	}
	return s.r.Create(ctx, title, author, description)
}

func (s *service) List(ctx context.Context, page, limit int) (*Page, error) {
	page, limit = clampPage(page, limit)
	books, total, err := s.r.List(ctx, page, limit)
	if err != nil {
		return nil, err
	}
	totalPages := 0
	if total > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return &Page{Data: books, Total: total, Page: page, Limit: limit, TotalPages: totalPages}, nil
}

func (s *service) Detail(ctx context.Context, id int64) (*model.Book, error) {
	return s.r.Detail(ctx, id)
}

// Search proxies to OpenLibrary. An upstream failure degrades to an empty
// page rather than failing the request.
func (s *service) Search(ctx context.Context, query string, page, limit int) (*olrepo.SearchPage, error) {
	page, limit = clampPage(page, limit)
	res, err := s.ol.Search(ctx, query, page, limit)
	if err != nil {
		s.log.Warn("external search failed", "query", query, "err", err)
		return &olrepo.SearchPage{Data: []olrepo.ExternalBook{}, Page: page, Limit: limit}, nil
	}
	return res, nil
}

func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}
	return page, limit
}
