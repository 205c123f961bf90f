package borrowsvc_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/Youngprinnce/digital-library/model"
	borrowsvc "github.com/Youngprinnce/digital-library/service/borrow"
)

// memStore is an in-memory lending store. It serializes same-book units of
// work with a mutex per book, the same guarantee the Postgres store gets
// from SELECT ... FOR UPDATE, and rolls mutations back when the unit of
// work fails.
type memStore struct {
	mu      sync.Mutex
	locks   map[int64]*sync.Mutex
	books   map[int64]*model.Book
	borrows map[int64]*model.Borrow
	users   map[int64]bool
	nextID  int64

	failInsert error // when set, InsertBorrow fails after earlier writes
}

var _ borrowsvc.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		locks:   map[int64]*sync.Mutex{},
		books:   map[int64]*model.Book{},
		borrows: map[int64]*model.Borrow{},
		users:   map[int64]bool{},
	}
}

func (s *memStore) addBook(id int64, available bool) {
	s.books[id] = &model.Book{ID: id, Title: "t", Author: "a", Available: available}
	s.locks[id] = &sync.Mutex{}
}

func (s *memStore) addUser(id int64) { s.users[id] = true }

func (s *memStore) addBorrow(userID, bookID int64, returnedAt *time.Time) *model.Borrow {
	s.nextID++
	b := &model.Borrow{ID: s.nextID, UserID: userID, BookID: bookID, BorrowedAt: time.Now(), ReturnedAt: returnedAt}
	s.borrows[b.ID] = b
	return b
}

type memTx struct {
	s    *memStore
	held []*sync.Mutex
	undo []func()
}

func (s *memStore) InTx(ctx context.Context, fn func(t borrowsvc.Tx) error) error {
	t := &memTx{s: s}
	err := fn(t)
	if err != nil {
		for i := len(t.undo) - 1; i >= 0; i-- {
			t.undo[i]()
		}
	}
	for _, m := range t.held {
		m.Unlock()
	}
	return err
}

func (t *memTx) GetBookForUpdate(ctx context.Context, bookID int64) (*model.Book, error) {
	t.s.mu.Lock()
	lock, ok := t.s.locks[bookID]
	t.s.mu.Unlock()
	if ok {
		lock.Lock()
		t.held = append(t.held, lock)
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, ok := t.s.books[bookID]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (t *memTx) SetBookAvailable(ctx context.Context, bookID int64, available bool) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b := t.s.books[bookID]
	prev := b.Available
	b.Available = available
	t.undo = append(t.undo, func() {
		t.s.mu.Lock()
		b.Available = prev
		t.s.mu.Unlock()
	})
	return nil
}

func (t *memTx) InsertBorrow(ctx context.Context, userID, bookID int64, at time.Time) (*model.Borrow, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.failInsert != nil {
		return nil, t.s.failInsert
	}
	t.s.nextID++
	b := &model.Borrow{ID: t.s.nextID, UserID: userID, BookID: bookID, BorrowedAt: at}
	t.s.borrows[b.ID] = b
	t.undo = append(t.undo, func() {
		t.s.mu.Lock()
		delete(t.s.borrows, b.ID)
		t.s.mu.Unlock()
	})
	cp := *b
	return &cp, nil
}

func (t *memTx) FindActiveBorrow(ctx context.Context, userID, bookID int64) (*model.Borrow, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, b := range t.s.borrows {
		if b.UserID == userID && b.BookID == bookID && b.ReturnedAt == nil {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memTx) FindActiveBorrowByBook(ctx context.Context, bookID int64) (*model.Borrow, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, b := range t.s.borrows {
		if b.BookID == bookID && b.ReturnedAt == nil {
			cp := *b
			return &cp, nil
		}
	}
	return nil, nil
}

func (t *memTx) CloseBorrow(ctx context.Context, borrowID int64, at time.Time) (*model.Borrow, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	b, ok := t.s.borrows[borrowID]
	if !ok || b.ReturnedAt != nil {
		return nil, nil
	}
	b.ReturnedAt = &at
	t.undo = append(t.undo, func() {
		t.s.mu.Lock()
		b.ReturnedAt = nil
		t.s.mu.Unlock()
	})
	cp := *b
	return &cp, nil
}

func (t *memTx) UserExists(ctx context.Context, userID int64) (bool, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.users[userID], nil
}

func (s *memStore) ListActive(ctx context.Context, userID int64) ([]model.Borrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Borrow
	for _, b := range s.borrows {
		if b.UserID == userID && b.ReturnedAt == nil {
			out = append(out, *b)
		}
	}
	// newest first, insertion order by ID
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].ID > out[i].ID {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (s *memStore) UserExists(ctx context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID], nil
}

func (s *memStore) snapshot(bookID int64) (available bool, active int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	available = s.books[bookID].Available
	for _, b := range s.borrows {
		if b.BookID == bookID && b.ReturnedAt == nil {
			active++
		}
	}
	return available, active
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- tests ---

func TestBorrow_Success(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1)
	st.addBook(10, true)
	svc := borrowsvc.New(st, testLogger())

	rec, err := svc.Borrow(ctx, 1, 10)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, int64(1), rec.UserID)
	require.Equal(t, int64(10), rec.BookID)
	require.Nil(t, rec.ReturnedAt)
	require.False(t, rec.BorrowedAt.IsZero())

	avail, active := st.snapshot(10)
	require.False(t, avail)
	require.Equal(t, 1, active)
}

func TestBorrow_AlreadyBorrowed(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1)
	st.addUser(2)
	st.addBook(10, true)
	svc := borrowsvc.New(st, testLogger())

	_, err := svc.Borrow(ctx, 1, 10)
	require.NoError(t, err)

	_, err = svc.Borrow(ctx, 2, 10)
	require.Equal(t, borrowsvc.ErrNotAvailable, borrowsvc.Code(err))

	avail, active := st.snapshot(10)
	require.False(t, avail)
	require.Equal(t, 1, active)
}

func TestBorrow_BookNotFound(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(9)
	svc := borrowsvc.New(st, testLogger())

	_, err := svc.Borrow(ctx, 9, 999)
	require.Equal(t, borrowsvc.ErrBookNotFound, borrowsvc.Code(err))
	require.Empty(t, st.borrows)
}

func TestBorrow_UserNotFound(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addBook(10, true)
	svc := borrowsvc.New(st, testLogger())

	_, err := svc.Borrow(ctx, 404, 10)
	require.Equal(t, borrowsvc.ErrUserNotFound, borrowsvc.Code(err))

	// nothing may stick from the failed attempt
	avail, active := st.snapshot(10)
	require.True(t, avail)
	require.Equal(t, 0, active)
	require.Empty(t, st.borrows)
}

func TestBorrow_DriftDetector(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1)
	// Availability flag says yes but the ledger says the user already holds
	// it. The engine must refuse instead of opening a second borrow.
	st.addBook(10, true)
	st.addBorrow(1, 10, nil)
	svc := borrowsvc.New(st, testLogger())

	_, err := svc.Borrow(ctx, 1, 10)
	require.Equal(t, borrowsvc.ErrAlreadyHeld, borrowsvc.Code(err))

	avail, active := st.snapshot(10)
	require.True(t, avail)
	require.Equal(t, 1, active)
}

func TestReturn_Success(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1)
	st.addBook(10, true)
	svc := borrowsvc.New(st, testLogger())

	rec, err := svc.Borrow(ctx, 1, 10)
	require.NoError(t, err)

	closed, err := svc.Return(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, rec.ID, closed.ID)
	require.NotNil(t, closed.ReturnedAt)
	require.False(t, closed.ReturnedAt.Before(closed.BorrowedAt))

	avail, active := st.snapshot(10)
	require.True(t, avail)
	require.Equal(t, 0, active)
}

func TestReturn_Twice(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1)
	st.addBook(10, true)
	svc := borrowsvc.New(st, testLogger())

	_, err := svc.Borrow(ctx, 1, 10)
	require.NoError(t, err)
	_, err = svc.Return(ctx, 1, 10)
	require.NoError(t, err)

	_, err = svc.Return(ctx, 1, 10)
	require.Equal(t, borrowsvc.ErrNoActiveBorrow, borrowsvc.Code(err))
}

func TestReturn_WrongHolder(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1)
	st.addUser(2)
	st.addBook(10, true)
	svc := borrowsvc.New(st, testLogger())

	_, err := svc.Borrow(ctx, 1, 10)
	require.NoError(t, err)

	// user 2 cannot close user 1's borrow
	_, err = svc.Return(ctx, 2, 10)
	require.Equal(t, borrowsvc.ErrNoActiveBorrow, borrowsvc.Code(err))

	avail, active := st.snapshot(10)
	require.False(t, avail)
	require.Equal(t, 1, active)
}

func TestReturn_NeverBorrowed(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1)
	st.addBook(10, true)
	svc := borrowsvc.New(st, testLogger())

	_, err := svc.Return(ctx, 1, 10)
	require.Equal(t, borrowsvc.ErrNoActiveBorrow, borrowsvc.Code(err))

	avail, _ := st.snapshot(10)
	require.True(t, avail)
}

func TestListActive(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1)
	st.addBook(10, true)
	st.addBook(11, true)
	svc := borrowsvc.New(st, testLogger())

	_, err := svc.Borrow(ctx, 1, 10)
	require.NoError(t, err)
	_, err = svc.Borrow(ctx, 1, 11)
	require.NoError(t, err)

	rows, err := svc.ListActive(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// newest first
	require.Equal(t, int64(11), rows[0].BookID)
	require.Equal(t, int64(10), rows[1].BookID)

	_, err = svc.Return(ctx, 1, 10)
	require.NoError(t, err)
	_, err = svc.Return(ctx, 1, 11)
	require.NoError(t, err)

	rows, err = svc.ListActive(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestListActive_UserNotFound(t *testing.T) {
	st := newMemStore()
	svc := borrowsvc.New(st, testLogger())

	_, err := svc.ListActive(context.Background(), 404)
	require.Equal(t, borrowsvc.ErrUserNotFound, borrowsvc.Code(err))
}

func TestBorrow_ConcurrentExclusivity(t *testing.T) {
	const n = 32
	ctx := context.Background()
	st := newMemStore()
	st.addBook(10, true)
	for i := int64(1); i <= n; i++ {
		st.addUser(i)
	}
	svc := borrowsvc.New(st, testLogger())

	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := int64(1); i <= n; i++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			_, err := svc.Borrow(ctx, uid, 10)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case borrowsvc.Code(err) == borrowsvc.ErrNotAvailable:
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, n-1, conflicts)

	avail, active := st.snapshot(10)
	require.False(t, avail)
	require.Equal(t, 1, active)
}

func TestConcurrentChurn_Alternation(t *testing.T) {
	const (
		users  = 8
		rounds = 25
	)
	ctx := context.Background()
	st := newMemStore()
	st.addBook(10, true)
	for i := int64(1); i <= users; i++ {
		st.addUser(i)
	}
	svc := borrowsvc.New(st, testLogger())

	var wg sync.WaitGroup
	for i := int64(1); i <= users; i++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				if _, err := svc.Borrow(ctx, uid, 10); err == nil {
					if _, err := svc.Return(ctx, uid, 10); err != nil {
						t.Errorf("return after own borrow failed: %v", err)
						return
					}
				}
			}
		}(i)
	}
	wg.Wait()

	// Every borrow row but at most the newest must be closed: a new borrow
	// can only open once the previous one was returned, so the ledger sorted
	// by id reads borrow, return, borrow, return, ...
	st.mu.Lock()
	defer st.mu.Unlock()
	var maxID int64
	for _, b := range st.borrows {
		if b.ID > maxID {
			maxID = b.ID
		}
	}
	openCount := 0
	for _, b := range st.borrows {
		if b.ReturnedAt == nil {
			openCount++
			require.Equal(t, maxID, b.ID, "only the newest row may be open")
		}
	}
	require.LessOrEqual(t, openCount, 1)
	require.Equal(t, openCount == 1, !st.books[10].Available)
}

func TestBorrow_RollsBackOnInsertFailure(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.addUser(1)
	st.addBook(10, true)
	st.failInsert = errors.New("insert blew up")
	svc := borrowsvc.New(st, testLogger())

	// The availability flip happens before the insert; a failing insert must
	// leave no trace of either write.
	_, err := svc.Borrow(ctx, 1, 10)
	require.Error(t, err)
	require.Empty(t, borrowsvc.Code(err))

	avail, active := st.snapshot(10)
	require.True(t, avail)
	require.Equal(t, 0, active)
	require.Empty(t, st.borrows)
}

type erroringStore struct {
	borrowsvc.Store
	err error
}

func (s *erroringStore) InTx(ctx context.Context, fn func(t borrowsvc.Tx) error) error {
	return s.err
}

func TestBorrow_TransientMapsToUnavailable(t *testing.T) {
	for _, code := range []string{
		pgerrcode.LockNotAvailable,
		pgerrcode.SerializationFailure,
		pgerrcode.DeadlockDetected,
	} {
		st := &erroringStore{err: &pgconn.PgError{Code: code}}
		svc := borrowsvc.New(st, testLogger())
		_, err := svc.Borrow(context.Background(), 1, 10)
		require.Equal(t, borrowsvc.ErrUnavailable, borrowsvc.Code(err), "pg code %s", code)
	}
}

func TestBorrow_DeadlineMapsToUnavailable(t *testing.T) {
	st := &erroringStore{err: context.DeadlineExceeded}
	svc := borrowsvc.New(st, testLogger())
	_, err := svc.Borrow(context.Background(), 1, 10)
	require.Equal(t, borrowsvc.ErrUnavailable, borrowsvc.Code(err))
}
