// repository/borrow/repo.go
package borrowrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Youngprinnce/digital-library/model"
	borrowsvc "github.com/Youngprinnce/digital-library/service/borrow"
)

// Store runs lending reads and transitions against Postgres. Same-book
// transitions are serialized by the row lock taken in GetBookForUpdate; the
// lock is held until the surrounding transaction commits or rolls back.
type Store struct{ db *sql.DB }

var _ borrowsvc.Store = (*Store)(nil)

func New(db *sql.DB) *Store { return &Store{db: db} }

type tx struct{ tx *sql.Tx }

func (s *Store) InTx(ctx context.Context, fn func(t borrowsvc.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()
	if err = fn(&tx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (t *tx) GetBookForUpdate(ctx context.Context, bookID int64) (*model.Book, error) {
	const q = `
		SELECT id, title, author, description, available, created_at, updated_at
		FROM books
		WHERE id = $1
		FOR UPDATE`
	b := &model.Book{}
	err := t.tx.QueryRowContext(ctx, q, bookID).Scan(
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

func (t *tx) SetBookAvailable(ctx context.Context, bookID int64, available bool) error {
	const q = `
		UPDATE books
		SET available = $2,
			updated_at = NOW()
		WHERE id = $1`
	res, err := t.tx.ExecContext(ctx, q, bookID, available)
	if err != nil {
		return err
	}
	aff, _ := res.RowsAffected()
	if aff == 0 {
		return errors.New("book row vanished mid-transaction")
	}
	return nil
}

func (t *tx) InsertBorrow(ctx context.Context, userID, bookID int64, at time.Time) (*model.Borrow, error) {
	const q = `
		INSERT INTO borrows (user_id, book_id, borrowed_at)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, book_id, borrowed_at, returned_at`
	b := &model.Borrow{}
	if err := t.tx.QueryRowContext(ctx, q, userID, bookID, at).Scan(
		&b.ID, &b.UserID, &b.BookID, &b.BorrowedAt, &b.ReturnedAt,
	); err != nil {
		return nil, err
	}
	return b, nil
}

func (t *tx) FindActiveBorrow(ctx context.Context, userID, bookID int64) (*model.Borrow, error) {
	const q = `
		SELECT id, user_id, book_id, borrowed_at, returned_at
		FROM borrows
		WHERE user_id = $1
		AND book_id = $2
		AND returned_at IS NULL`
	return t.scanOne(ctx, q, userID, bookID)
}

func (t *tx) FindActiveBorrowByBook(ctx context.Context, bookID int64) (*model.Borrow, error) {
	const q = `
		SELECT id, user_id, book_id, borrowed_at, returned_at
		FROM borrows
		WHERE book_id = $1
		AND returned_at IS NULL`
	return t.scanOne(ctx, q, bookID)
}

func (t *tx) CloseBorrow(ctx context.Context, borrowID int64, at time.Time) (*model.Borrow, error) {
	const q = `
		UPDATE borrows
		SET returned_at = $2
		WHERE id = $1
		AND returned_at IS NULL
		RETURNING id, user_id, book_id, borrowed_at, returned_at`
	return t.scanOne(ctx, q, borrowID, at)
}

func (t *tx) UserExists(ctx context.Context, userID int64) (bool, error) {
	var ok bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID,
	).Scan(&ok)
	return ok, err
}

func (t *tx) scanOne(ctx context.Context, q string, args ...any) (*model.Borrow, error) {
	b := &model.Borrow{}
	err := t.tx.QueryRowContext(ctx, q, args...).Scan(
		&b.ID, &b.UserID, &b.BookID, &b.BorrowedAt, &b.ReturnedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Reads outside any transition.

func (s *Store) ListActive(ctx context.Context, userID int64) ([]model.Borrow, error) {
	const q = `
		SELECT id, user_id, book_id, borrowed_at, returned_at
		FROM borrows
		WHERE user_id = $1
		AND returned_at IS NULL
		ORDER BY borrowed_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Borrow
	for rows.Next() {
		var b model.Borrow
		if err := rows.Scan(&b.ID, &b.UserID, &b.BookID, &b.BorrowedAt, &b.ReturnedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) UserExists(ctx context.Context, userID int64) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID,
	).Scan(&ok)
	return ok, err
}
