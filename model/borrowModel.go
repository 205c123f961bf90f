// model/borrow.go
package model

import "time"

// Borrow is one lending ledger entry. ReturnedAt == nil means the book is
// still out; at most one such row may exist per book at any time.
type Borrow struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	BookID     int64      `json:"book_id"`
	BorrowedAt time.Time  `json:"borrowed_at"`
	ReturnedAt *time.Time `json:"returned_at,omitempty"`
}

// Active reports whether the book is still held under this entry.
func (b Borrow) Active() bool { return b.ReturnedAt == nil }
