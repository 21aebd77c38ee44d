// Package storage defines the narrow persistence interfaces the services
// depend on, decoupled from any particular store implementation.
package storage

import (
	"context"
	"errors"

	"github.com/shelfwise/library-service/internal/app/domain/book"
	"github.com/shelfwise/library-service/internal/app/domain/loan"
	"github.com/shelfwise/library-service/internal/app/domain/reader"
	"github.com/shelfwise/library-service/internal/app/domain/user"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a write violates a uniqueness rule
// (user email, reader email, book ISBN).
var ErrDuplicate = errors.New("duplicate record")

// ErrConflict is returned when the store detects a transient concurrency
// conflict (serialization failure, deadlock). The operation may be retried.
var ErrConflict = errors.New("transaction conflict")

// BookStore persists book records.
type BookStore interface {
	CreateBook(ctx context.Context, b book.Book) (book.Book, error)
	UpdateBook(ctx context.Context, b book.Book) (book.Book, error)
	GetBook(ctx context.Context, id int64) (book.Book, error)
	// GetBookForUpdate reads a book and, inside a transaction, locks its row
	// so concurrent borrow/return operations on the same book serialize.
	GetBookForUpdate(ctx context.Context, id int64) (book.Book, error)
	GetBookByISBN(ctx context.Context, isbn string) (book.Book, error)
	ListBooks(ctx context.Context, offset, limit int) ([]book.Book, error)
	DeleteBook(ctx context.Context, id int64) error
}

// ReaderStore persists reader records.
type ReaderStore interface {
	CreateReader(ctx context.Context, r reader.Reader) (reader.Reader, error)
	UpdateReader(ctx context.Context, r reader.Reader) (reader.Reader, error)
	GetReader(ctx context.Context, id int64) (reader.Reader, error)
	// GetReaderForUpdate locks the reader row so the active-loan count stays
	// stable for the rest of the transaction.
	GetReaderForUpdate(ctx context.Context, id int64) (reader.Reader, error)
	GetReaderByEmail(ctx context.Context, email string) (reader.Reader, error)
	ListReaders(ctx context.Context, offset, limit int) ([]reader.Reader, error)
	DeleteReader(ctx context.Context, id int64) error
}

// LoanStore persists loan records. Loans are never deleted.
type LoanStore interface {
	CreateLoan(ctx context.Context, l loan.Loan) (loan.Loan, error)
	UpdateLoan(ctx context.Context, l loan.Loan) (loan.Loan, error)
	GetLoan(ctx context.Context, id int64) (loan.Loan, error)
	GetLoanForUpdate(ctx context.Context, id int64) (loan.Loan, error)
	ListActiveLoansByReader(ctx context.Context, readerID int64) ([]loan.Loan, error)
	ListLoans(ctx context.Context, offset, limit int) ([]loan.Loan, error)
	CountActiveLoansByReader(ctx context.Context, readerID int64) (int, error)
	CountActiveLoansByBook(ctx context.Context, bookID int64) (int, error)
}

// UserStore persists API principals.
type UserStore interface {
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
}

// Store bundles all entity stores behind one handle.
type Store interface {
	BookStore
	ReaderStore
	LoanStore
	UserStore
}

// UnitOfWork runs fn inside a single atomic transaction. Everything fn does
// through the transactional store commits together or not at all; returning
// an error rolls the transaction back.
type UnitOfWork interface {
	InTransaction(ctx context.Context, fn func(tx Store) error) error
}
