package loan

import "time"

// Loan records one book copy in the possession of one reader. Loans are
// append-only history: a loan is created by a successful borrow and moves
// from active to closed exactly once when returned.
type Loan struct {
	ID         int64      `json:"id"`
	BookID     int64      `json:"book_id"`
	ReaderID   int64      `json:"reader_id"`
	BorrowDate time.Time  `json:"borrow_date"`
	ReturnDate *time.Time `json:"return_date"`
}

// Active reports whether the book is still out.
func (l Loan) Active() bool { return l.ReturnDate == nil }
