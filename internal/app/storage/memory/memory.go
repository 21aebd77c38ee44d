// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shelfwise/library-service/internal/app/domain/book"
	"github.com/shelfwise/library-service/internal/app/domain/loan"
	"github.com/shelfwise/library-service/internal/app/domain/reader"
	"github.com/shelfwise/library-service/internal/app/domain/user"
	"github.com/shelfwise/library-service/internal/app/storage"
)

// Store keeps all records in maps guarded by one mutex. InTransaction holds
// the mutex for the whole unit of work, so transactions are fully serialized;
// on error the pre-transaction state is restored.
type Store struct {
	mu sync.Mutex
	st state
}

type state struct {
	nextBookID   int64
	nextReaderID int64
	nextLoanID   int64
	nextUserID   int64
	books        map[int64]book.Book
	readers      map[int64]reader.Reader
	loans        map[int64]loan.Loan
	users        map[int64]user.User
}

var _ storage.Store = (*Store)(nil)
var _ storage.UnitOfWork = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{st: state{
		nextBookID:   1,
		nextReaderID: 1,
		nextLoanID:   1,
		nextUserID:   1,
		books:        make(map[int64]book.Book),
		readers:      make(map[int64]reader.Reader),
		loans:        make(map[int64]loan.Loan),
		users:        make(map[int64]user.User),
	}}
}

// InTransaction runs fn under the store mutex. If fn returns an error the
// state is rolled back to what it was before the transaction started.
func (s *Store) InTransaction(_ context.Context, fn func(tx storage.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&txStore{s: s}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// --- BookStore ---------------------------------------------------------------

func (s *Store) CreateBook(_ context.Context, b book.Book) (book.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createBookLocked(b)
}

func (s *Store) createBookLocked(b book.Book) (book.Book, error) {
	if b.ISBN != nil {
		for _, existing := range s.st.books {
			if existing.ISBN != nil && *existing.ISBN == *b.ISBN {
				return book.Book{}, storage.ErrDuplicate
			}
		}
	}
	b.ID = s.st.nextBookID
	s.st.nextBookID++
	s.st.books[b.ID] = cloneBook(b)
	return b, nil
}

func (s *Store) UpdateBook(_ context.Context, b book.Book) (book.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateBookLocked(b)
}

func (s *Store) updateBookLocked(b book.Book) (book.Book, error) {
	if _, ok := s.st.books[b.ID]; !ok {
		return book.Book{}, storage.ErrNotFound
	}
	if b.ISBN != nil {
		for id, existing := range s.st.books {
			if id != b.ID && existing.ISBN != nil && *existing.ISBN == *b.ISBN {
				return book.Book{}, storage.ErrDuplicate
			}
		}
	}
	s.st.books[b.ID] = cloneBook(b)
	return b, nil
}

func (s *Store) GetBook(_ context.Context, id int64) (book.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getBookLocked(id)
}

func (s *Store) getBookLocked(id int64) (book.Book, error) {
	b, ok := s.st.books[id]
	if !ok {
		return book.Book{}, storage.ErrNotFound
	}
	return cloneBook(b), nil
}

func (s *Store) GetBookForUpdate(ctx context.Context, id int64) (book.Book, error) {
	return s.GetBook(ctx, id)
}

func (s *Store) GetBookByISBN(_ context.Context, isbn string) (book.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getBookByISBNLocked(isbn)
}

func (s *Store) getBookByISBNLocked(isbn string) (book.Book, error) {
	for _, b := range s.st.books {
		if b.ISBN != nil && *b.ISBN == isbn {
			return cloneBook(b), nil
		}
	}
	return book.Book{}, storage.ErrNotFound
}

func (s *Store) ListBooks(_ context.Context, offset, limit int) ([]book.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listBooksLocked(offset, limit)
}

func (s *Store) listBooksLocked(offset, limit int) ([]book.Book, error) {
	books := make([]book.Book, 0, len(s.st.books))
	for _, b := range s.st.books {
		books = append(books, cloneBook(b))
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	return paginate(books, offset, limit), nil
}

func (s *Store) DeleteBook(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteBookLocked(id)
}

func (s *Store) deleteBookLocked(id int64) error {
	if _, ok := s.st.books[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.st.books, id)
	return nil
}

// --- ReaderStore -------------------------------------------------------------

func (s *Store) CreateReader(_ context.Context, r reader.Reader) (reader.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createReaderLocked(r)
}

func (s *Store) createReaderLocked(r reader.Reader) (reader.Reader, error) {
	for _, existing := range s.st.readers {
		if existing.Email == r.Email {
			return reader.Reader{}, storage.ErrDuplicate
		}
	}
	r.ID = s.st.nextReaderID
	s.st.nextReaderID++
	s.st.readers[r.ID] = r
	return r, nil
}

func (s *Store) UpdateReader(_ context.Context, r reader.Reader) (reader.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateReaderLocked(r)
}

func (s *Store) updateReaderLocked(r reader.Reader) (reader.Reader, error) {
	if _, ok := s.st.readers[r.ID]; !ok {
		return reader.Reader{}, storage.ErrNotFound
	}
	for id, existing := range s.st.readers {
		if id != r.ID && existing.Email == r.Email {
			return reader.Reader{}, storage.ErrDuplicate
		}
	}
	s.st.readers[r.ID] = r
	return r, nil
}

func (s *Store) GetReader(_ context.Context, id int64) (reader.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getReaderLocked(id)
}

func (s *Store) getReaderLocked(id int64) (reader.Reader, error) {
	r, ok := s.st.readers[id]
	if !ok {
		return reader.Reader{}, storage.ErrNotFound
	}
	return r, nil
}

func (s *Store) GetReaderForUpdate(ctx context.Context, id int64) (reader.Reader, error) {
	return s.GetReader(ctx, id)
}

func (s *Store) GetReaderByEmail(_ context.Context, email string) (reader.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getReaderByEmailLocked(email)
}

func (s *Store) getReaderByEmailLocked(email string) (reader.Reader, error) {
	for _, r := range s.st.readers {
		if r.Email == email {
			return r, nil
		}
	}
	return reader.Reader{}, storage.ErrNotFound
}

func (s *Store) ListReaders(_ context.Context, offset, limit int) ([]reader.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listReadersLocked(offset, limit)
}

func (s *Store) listReadersLocked(offset, limit int) ([]reader.Reader, error) {
	readers := make([]reader.Reader, 0, len(s.st.readers))
	for _, r := range s.st.readers {
		readers = append(readers, r)
	}
	sort.Slice(readers, func(i, j int) bool { return readers[i].ID < readers[j].ID })
	return paginate(readers, offset, limit), nil
}

func (s *Store) DeleteReader(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteReaderLocked(id)
}

func (s *Store) deleteReaderLocked(id int64) error {
	if _, ok := s.st.readers[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.st.readers, id)
	return nil
}

// --- LoanStore ---------------------------------------------------------------

func (s *Store) CreateLoan(_ context.Context, l loan.Loan) (loan.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLoanLocked(l)
}

func (s *Store) createLoanLocked(l loan.Loan) (loan.Loan, error) {
	l.ID = s.st.nextLoanID
	s.st.nextLoanID++
	s.st.loans[l.ID] = cloneLoan(l)
	return l, nil
}

func (s *Store) UpdateLoan(_ context.Context, l loan.Loan) (loan.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLoanLocked(l)
}

func (s *Store) updateLoanLocked(l loan.Loan) (loan.Loan, error) {
	if _, ok := s.st.loans[l.ID]; !ok {
		return loan.Loan{}, storage.ErrNotFound
	}
	s.st.loans[l.ID] = cloneLoan(l)
	return l, nil
}

func (s *Store) GetLoan(_ context.Context, id int64) (loan.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLoanLocked(id)
}

func (s *Store) getLoanLocked(id int64) (loan.Loan, error) {
	l, ok := s.st.loans[id]
	if !ok {
		return loan.Loan{}, storage.ErrNotFound
	}
	return cloneLoan(l), nil
}

func (s *Store) GetLoanForUpdate(ctx context.Context, id int64) (loan.Loan, error) {
	return s.GetLoan(ctx, id)
}

func (s *Store) ListActiveLoansByReader(_ context.Context, readerID int64) ([]loan.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listActiveLoansByReaderLocked(readerID)
}

func (s *Store) listActiveLoansByReaderLocked(readerID int64) ([]loan.Loan, error) {
	var loans []loan.Loan
	for _, l := range s.st.loans {
		if l.ReaderID == readerID && l.Active() {
			loans = append(loans, cloneLoan(l))
		}
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].ID < loans[j].ID })
	return loans, nil
}

func (s *Store) ListLoans(_ context.Context, offset, limit int) ([]loan.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLoansLocked(offset, limit)
}

func (s *Store) listLoansLocked(offset, limit int) ([]loan.Loan, error) {
	loans := make([]loan.Loan, 0, len(s.st.loans))
	for _, l := range s.st.loans {
		loans = append(loans, cloneLoan(l))
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].ID < loans[j].ID })
	return paginate(loans, offset, limit), nil
}

func (s *Store) CountActiveLoansByReader(_ context.Context, readerID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countActiveLoansByReaderLocked(readerID)
}

func (s *Store) countActiveLoansByReaderLocked(readerID int64) (int, error) {
	n := 0
	for _, l := range s.st.loans {
		if l.ReaderID == readerID && l.Active() {
			n++
		}
	}
	return n, nil
}

func (s *Store) CountActiveLoansByBook(_ context.Context, bookID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countActiveLoansByBookLocked(bookID)
}

func (s *Store) countActiveLoansByBookLocked(bookID int64) (int, error) {
	n := 0
	for _, l := range s.st.loans {
		if l.BookID == bookID && l.Active() {
			n++
		}
	}
	return n, nil
}

// --- UserStore ---------------------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createUserLocked(u)
}

func (s *Store) createUserLocked(u user.User) (user.User, error) {
	for _, existing := range s.st.users {
		if existing.Email == u.Email {
			return user.User{}, storage.ErrDuplicate
		}
	}
	u.ID = s.st.nextUserID
	s.st.nextUserID++
	s.st.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getUserByEmailLocked(email)
}

func (s *Store) getUserByEmailLocked(email string) (user.User, error) {
	for _, u := range s.st.users {
		if u.Email == email {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

// --- helpers -----------------------------------------------------------------

func (st state) clone() state {
	out := st
	out.books = make(map[int64]book.Book, len(st.books))
	for id, b := range st.books {
		out.books[id] = cloneBook(b)
	}
	out.readers = make(map[int64]reader.Reader, len(st.readers))
	for id, r := range st.readers {
		out.readers[id] = r
	}
	out.loans = make(map[int64]loan.Loan, len(st.loans))
	for id, l := range st.loans {
		out.loans[id] = cloneLoan(l)
	}
	out.users = make(map[int64]user.User, len(st.users))
	for id, u := range st.users {
		out.users[id] = u
	}
	return out
}

func cloneBook(b book.Book) book.Book {
	out := b
	if b.PublicationYear != nil {
		year := *b.PublicationYear
		out.PublicationYear = &year
	}
	if b.ISBN != nil {
		isbn := *b.ISBN
		out.ISBN = &isbn
	}
	if b.Description != nil {
		desc := *b.Description
		out.Description = &desc
	}
	return out
}

func cloneLoan(l loan.Loan) loan.Loan {
	out := l
	if l.ReturnDate != nil {
		returned := *l.ReturnDate
		out.ReturnDate = &returned
	}
	return out
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
