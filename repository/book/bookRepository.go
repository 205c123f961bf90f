package bookrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Youngprinnce/digital-library/model"
)

type Repo interface {
	Create(ctx context.Context, title, author, description string) (*model.Book, error)
	List(ctx context.Context, page, limit int) ([]model.Book, int64, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db} }

func (r *repo) Create(ctx context.Context, title, author, description string) (*model.Book, error) {
	const q = `
		INSERT INTO books (title, author, description, available)
		VALUES ($1,$2,$3,true)
		RETURNING id, title, author, description, available, created_at, updated_at`
	b := &model.Book{}
	if err := r.db.QueryRowContext(ctx, q, title, author, description).Scan(
		&b.ID, &b.Title, &b.Author, &b.Description, &b.Available, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *repo) List(ctx context.Context, page, limit int) ([]model.Book, int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books`).Scan(&total); err != nil {
		return nil, 0, err
	}

	const q = `
		SELECT id, title, author, description, available, created_at, updated_at
		FROM books
		ORDER BY id DESC
		LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, q, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.Book
	for rows.Next() {
		var b model.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Description, &b.Available, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}

func (r *repo) Detail(ctx context.Context, id int64) (*model.Book, error) {
	const q = `
		SELECT id, title, author, description, available, created_at, updated_at
		FROM books
		WHERE id = $1`
	b := &model.Book{}
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&b.ID, &b.Title, &b.Author, &b.Description, &b.Available, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}
