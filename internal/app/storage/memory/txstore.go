package memory

import (
	"context"

	"github.com/shelfwise/library-service/internal/app/domain/book"
	"github.com/shelfwise/library-service/internal/app/domain/loan"
	"github.com/shelfwise/library-service/internal/app/domain/reader"
	"github.com/shelfwise/library-service/internal/app/domain/user"
	"github.com/shelfwise/library-service/internal/app/storage"
)

// txStore is the view handed to InTransaction callbacks. The store mutex is
// already held, so it calls the unlocked internals directly.
type txStore struct {
	s *Store
}

var _ storage.Store = (*txStore)(nil)

func (t *txStore) CreateBook(_ context.Context, b book.Book) (book.Book, error) {
	return t.s.createBookLocked(b)
}

func (t *txStore) UpdateBook(_ context.Context, b book.Book) (book.Book, error) {
	return t.s.updateBookLocked(b)
}

func (t *txStore) GetBook(_ context.Context, id int64) (book.Book, error) {
	return t.s.getBookLocked(id)
}

func (t *txStore) GetBookForUpdate(_ context.Context, id int64) (book.Book, error) {
	return t.s.getBookLocked(id)
}

func (t *txStore) GetBookByISBN(_ context.Context, isbn string) (book.Book, error) {
	return t.s.getBookByISBNLocked(isbn)
}

func (t *txStore) ListBooks(_ context.Context, offset, limit int) ([]book.Book, error) {
	return t.s.listBooksLocked(offset, limit)
}

func (t *txStore) DeleteBook(_ context.Context, id int64) error {
	return t.s.deleteBookLocked(id)
}

func (t *txStore) CreateReader(_ context.Context, r reader.Reader) (reader.Reader, error) {
	return t.s.createReaderLocked(r)
}

func (t *txStore) UpdateReader(_ context.Context, r reader.Reader) (reader.Reader, error) {
	return t.s.updateReaderLocked(r)
}

func (t *txStore) GetReader(_ context.Context, id int64) (reader.Reader, error) {
	return t.s.getReaderLocked(id)
}

func (t *txStore) GetReaderForUpdate(_ context.Context, id int64) (reader.Reader, error) {
	return t.s.getReaderLocked(id)
}

func (t *txStore) GetReaderByEmail(_ context.Context, email string) (reader.Reader, error) {
	return t.s.getReaderByEmailLocked(email)
}

func (t *txStore) ListReaders(_ context.Context, offset, limit int) ([]reader.Reader, error) {
	return t.s.listReadersLocked(offset, limit)
}

func (t *txStore) DeleteReader(_ context.Context, id int64) error {
	return t.s.deleteReaderLocked(id)
}

func (t *txStore) CreateLoan(_ context.Context, l loan.Loan) (loan.Loan, error) {
	return t.s.createLoanLocked(l)
}

func (t *txStore) UpdateLoan(_ context.Context, l loan.Loan) (loan.Loan, error) {
	return t.s.updateLoanLocked(l)
}

func (t *txStore) GetLoan(_ context.Context, id int64) (loan.Loan, error) {
	return t.s.getLoanLocked(id)
}

func (t *txStore) GetLoanForUpdate(_ context.Context, id int64) (loan.Loan, error) {
	return t.s.getLoanLocked(id)
}

func (t *txStore) ListActiveLoansByReader(_ context.Context, readerID int64) ([]loan.Loan, error) {
	return t.s.listActiveLoansByReaderLocked(readerID)
}

func (t *txStore) ListLoans(_ context.Context, offset, limit int) ([]loan.Loan, error) {
	return t.s.listLoansLocked(offset, limit)
}

func (t *txStore) CountActiveLoansByReader(_ context.Context, readerID int64) (int, error) {
	return t.s.countActiveLoansByReaderLocked(readerID)
}

func (t *txStore) CountActiveLoansByBook(_ context.Context, bookID int64) (int, error) {
	return t.s.countActiveLoansByBookLocked(bookID)
}

func (t *txStore) CreateUser(_ context.Context, u user.User) (user.User, error) {
	return t.s.createUserLocked(u)
}

func (t *txStore) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	return t.s.getUserByEmailLocked(email)
}
