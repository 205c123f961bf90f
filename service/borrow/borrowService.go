package borrowsvc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/Youngprinnce/digital-library/model"
)

// errors used by controllers

type ErrCode string

const (
	ErrBookNotFound   ErrCode = "BOOK_NOT_FOUND"
	ErrUserNotFound   ErrCode = "USER_NOT_FOUND"
	ErrNotAvailable   ErrCode = "BOOK_NOT_AVAILABLE"
	ErrAlreadyHeld    ErrCode = "ALREADY_HELD"
	ErrNoActiveBorrow ErrCode = "NO_ACTIVE_BORROW"
	ErrUnavailable    ErrCode = "TRY_AGAIN"
)

type codedError struct{ code ErrCode }

func (e codedError) Error() string { return string(e.code) }
func (e codedError) Code() ErrCode { return e.code }
func makeErr(c ErrCode) error      { return codedError{code: c} }

// Code extracts error code
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

// Tx is one atomic unit of work over the books and borrows tables. Every
// precondition the engine checks runs through it, so check and effect can
// never race against another transition on the same book.
type Tx interface {
	GetBookForUpdate(ctx context.Context, bookID int64) (*model.Book, error)
	SetBookAvailable(ctx context.Context, bookID int64, available bool) error
	InsertBorrow(ctx context.Context, userID, bookID int64, at time.Time) (*model.Borrow, error)
	FindActiveBorrow(ctx context.Context, userID, bookID int64) (*model.Borrow, error)
	FindActiveBorrowByBook(ctx context.Context, bookID int64) (*model.Borrow, error)
	CloseBorrow(ctx context.Context, borrowID int64, at time.Time) (*model.Borrow, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
}

// Store provides units of work plus plain reads. InTx must give fn a
// serializable read-modify-write per book: once fn has read a book, no other
// unit of work may transition that book until fn's effects commit or roll
// back. Lookups return (nil, nil) when no row matches.
type Store interface {
	InTx(ctx context.Context, fn func(t Tx) error) error
	ListActive(ctx context.Context, userID int64) ([]model.Borrow, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
}

type Service interface {
	// Borrow hands the book to the user if it is on the shelf.
	Borrow(ctx context.Context, userID, bookID int64) (*model.Borrow, error)

	// Return closes the user's active borrow and puts the book back.
	Return(ctx context.Context, userID, bookID int64) (*model.Borrow, error)

	// ListActive lists the user's open borrows, newest first.
	ListActive(ctx context.Context, userID int64) ([]model.Borrow, error)
}

// ----- Service implementation -----

type service struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

func New(store Store, log *slog.Logger) Service {
	return &service{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (s *service) Borrow(ctx context.Context, userID, bookID int64) (*model.Borrow, error) {
	var created *model.Borrow
	err := s.store.InTx(ctx, func(t Tx) error {
		book, err := t.GetBookForUpdate(ctx, bookID)
		if err != nil {
			return err
		}
		if book == nil {
			return makeErr(ErrBookNotFound)
		}
		if !book.Available {
			return makeErr(ErrNotAvailable)
		}

		// With the availability flag correct this lookup never hits; if it
		// does, the flag and the ledger have drifted apart. Refuse and make
		// noise rather than stack a second active borrow on the book.
		held, err := t.FindActiveBorrow(ctx, userID, bookID)
		if err != nil {
			return err
		}
		if held != nil {
			s.log.Error("ledger drift: book marked available but has an open borrow",
				"book_id", bookID, "user_id", userID, "borrow_id", held.ID)
			return makeErr(ErrAlreadyHeld)
		}

		ok, err := t.UserExists(ctx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return makeErr(ErrUserNotFound)
		}

		if err := t.SetBookAvailable(ctx, bookID, false); err != nil {
			return err
		}
		created, err = t.InsertBorrow(ctx, userID, bookID, s.now())
		return err
	})
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	return created, nil
}

func (s *service) Return(ctx context.Context, userID, bookID int64) (*model.Borrow, error) {
	var closed *model.Borrow
	err := s.store.InTx(ctx, func(t Tx) error {
		// Lock the book first so the close and the flag flip serialize with
		// any concurrent Borrow on the same book.
		book, err := t.GetBookForUpdate(ctx, bookID)
		if err != nil {
			return err
		}
		if book == nil {
			return makeErr(ErrBookNotFound)
		}

		active, err := t.FindActiveBorrow(ctx, userID, bookID)
		if err != nil {
			return err
		}
		if active == nil {
			// Covers never-borrowed, already returned, and held by someone
			// else; a holder mismatch is not distinguished to the caller.
			return makeErr(ErrNoActiveBorrow)
		}

		closed, err = t.CloseBorrow(ctx, active.ID, s.now())
		if err != nil {
			return err
		}
		if closed == nil {
			return makeErr(ErrNoActiveBorrow)
		}
		return t.SetBookAvailable(ctx, bookID, true)
	})
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	return closed, nil
}

func (s *service) ListActive(ctx context.Context, userID int64) ([]model.Borrow, error) {
	ok, err := s.store.UserExists(ctx, userID)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	if !ok {
		return nil, makeErr(ErrUserNotFound)
	}
	rows, err := s.store.ListActive(ctx, userID)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	return rows, nil
}

// mapStoreErr turns contention and timeout failures into the retryable code.
// Domain errors pass through untouched.
func (s *service) mapStoreErr(err error) error {
	if Code(err) != "" {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return makeErr(ErrUnavailable)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.LockNotAvailable,
			pgerrcode.SerializationFailure,
			pgerrcode.DeadlockDetected,
			pgerrcode.QueryCanceled:
			return makeErr(ErrUnavailable)
		}
	}
	return err
}
