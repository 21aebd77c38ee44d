// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/shelfwise/library-service/internal/app/domain/book"
	"github.com/shelfwise/library-service/internal/app/domain/loan"
	"github.com/shelfwise/library-service/internal/app/domain/reader"
	"github.com/shelfwise/library-service/internal/app/domain/user"
	"github.com/shelfwise/library-service/internal/app/storage"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements the storage interfaces backed by PostgreSQL. Row-level
// locks taken by the ForUpdate reads serialize concurrent borrow/return
// transactions touching the same book or reader.
type Store struct {
	db *sql.DB
	q  querier
}

var _ storage.Store = (*Store)(nil)
var _ storage.UnitOfWork = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// InTransaction runs fn inside a single database transaction. Store errors
// are mapped to the storage sentinels so callers can distinguish transient
// conflicts from permanent failures.
func (s *Store) InTransaction(ctx context.Context, fn func(tx storage.Store) error) error {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(err)
	}

	if err := fn(&Store{db: s.db, q: dbtx}); err != nil {
		_ = dbtx.Rollback()
		return err
	}
	if err := dbtx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

// --- BookStore ---------------------------------------------------------------

const bookColumns = `id, title, author, publication_year, isbn, copies_available, description`

func (s *Store) CreateBook(ctx context.Context, b book.Book) (book.Book, error) {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO books (title, author, publication_year, isbn, copies_available, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, b.Title, b.Author, nullInt(b.PublicationYear), nullString(b.ISBN), b.CopiesAvailable, nullString(b.Description)).Scan(&b.ID)
	if err != nil {
		return book.Book{}, mapError(err)
	}
	return b, nil
}

func (s *Store) UpdateBook(ctx context.Context, b book.Book) (book.Book, error) {
	result, err := s.q.ExecContext(ctx, `
		UPDATE books
		SET title = $2, author = $3, publication_year = $4, isbn = $5, copies_available = $6, description = $7
		WHERE id = $1
	`, b.ID, b.Title, b.Author, nullInt(b.PublicationYear), nullString(b.ISBN), b.CopiesAvailable, nullString(b.Description))
	if err != nil {
		return book.Book{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return book.Book{}, storage.ErrNotFound
	}
	return b, nil
}

func (s *Store) GetBook(ctx context.Context, id int64) (book.Book, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+bookColumns+`
		FROM books
		WHERE id = $1
	`, id)
	return scanBook(row)
}

func (s *Store) GetBookForUpdate(ctx context.Context, id int64) (book.Book, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+bookColumns+`
		FROM books
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanBook(row)
}

func (s *Store) GetBookByISBN(ctx context.Context, isbn string) (book.Book, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+bookColumns+`
		FROM books
		WHERE isbn = $1
	`, isbn)
	return scanBook(row)
}

func (s *Store) ListBooks(ctx context.Context, offset, limit int) ([]book.Book, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+bookColumns+`
		FROM books
		ORDER BY id
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []book.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (s *Store) DeleteBook(ctx context.Context, id int64) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- ReaderStore -------------------------------------------------------------

func (s *Store) CreateReader(ctx context.Context, r reader.Reader) (reader.Reader, error) {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO readers (name, email)
		VALUES ($1, $2)
		RETURNING id
	`, r.Name, r.Email).Scan(&r.ID)
	if err != nil {
		return reader.Reader{}, mapError(err)
	}
	return r, nil
}

func (s *Store) UpdateReader(ctx context.Context, r reader.Reader) (reader.Reader, error) {
	result, err := s.q.ExecContext(ctx, `
		UPDATE readers
		SET name = $2, email = $3
		WHERE id = $1
	`, r.ID, r.Name, r.Email)
	if err != nil {
		return reader.Reader{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return reader.Reader{}, storage.ErrNotFound
	}
	return r, nil
}

func (s *Store) GetReader(ctx context.Context, id int64) (reader.Reader, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, name, email FROM readers WHERE id = $1
	`, id)
	return scanReader(row)
}

func (s *Store) GetReaderForUpdate(ctx context.Context, id int64) (reader.Reader, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, name, email FROM readers WHERE id = $1 FOR UPDATE
	`, id)
	return scanReader(row)
}

func (s *Store) GetReaderByEmail(ctx context.Context, email string) (reader.Reader, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, name, email FROM readers WHERE email = $1
	`, email)
	return scanReader(row)
}

func (s *Store) ListReaders(ctx context.Context, offset, limit int) ([]reader.Reader, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, email
		FROM readers
		ORDER BY id
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []reader.Reader
	for rows.Next() {
		r, err := scanReader(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) DeleteReader(ctx context.Context, id int64) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM readers WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// --- LoanStore ---------------------------------------------------------------

const loanColumns = `id, book_id, reader_id, borrow_date, return_date`

func (s *Store) CreateLoan(ctx context.Context, l loan.Loan) (loan.Loan, error) {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO borrowed_books (book_id, reader_id, borrow_date, return_date)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, l.BookID, l.ReaderID, l.BorrowDate, nullTime(l.ReturnDate)).Scan(&l.ID)
	if err != nil {
		return loan.Loan{}, mapError(err)
	}
	return l, nil
}

func (s *Store) UpdateLoan(ctx context.Context, l loan.Loan) (loan.Loan, error) {
	result, err := s.q.ExecContext(ctx, `
		UPDATE borrowed_books
		SET return_date = $2
		WHERE id = $1
	`, l.ID, nullTime(l.ReturnDate))
	if err != nil {
		return loan.Loan{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return loan.Loan{}, storage.ErrNotFound
	}
	return l, nil
}

func (s *Store) GetLoan(ctx context.Context, id int64) (loan.Loan, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+loanColumns+`
		FROM borrowed_books
		WHERE id = $1
	`, id)
	return scanLoan(row)
}

func (s *Store) GetLoanForUpdate(ctx context.Context, id int64) (loan.Loan, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT `+loanColumns+`
		FROM borrowed_books
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanLoan(row)
}

func (s *Store) ListActiveLoansByReader(ctx context.Context, readerID int64) ([]loan.Loan, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+loanColumns+`
		FROM borrowed_books
		WHERE reader_id = $1 AND return_date IS NULL
		ORDER BY id
	`, readerID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return collectLoans(rows)
}

func (s *Store) ListLoans(ctx context.Context, offset, limit int) ([]loan.Loan, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+loanColumns+`
		FROM borrowed_books
		ORDER BY id
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return collectLoans(rows)
}

func (s *Store) CountActiveLoansByReader(ctx context.Context, readerID int64) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM borrowed_books
		WHERE reader_id = $1 AND return_date IS NULL
	`, readerID).Scan(&n)
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

func (s *Store) CountActiveLoansByBook(ctx context.Context, bookID int64) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM borrowed_books
		WHERE book_id = $1 AND return_date IS NULL
	`, bookID).Scan(&n)
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

// --- UserStore ---------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO users (email, hashed_password, is_active)
		VALUES ($1, $2, $3)
		RETURNING id
	`, u.Email, u.HashedPassword, u.IsActive).Scan(&u.ID)
	if err != nil {
		return user.User{}, mapError(err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User
	err := s.q.QueryRowContext(ctx, `
		SELECT id, email, hashed_password, is_active FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.HashedPassword, &u.IsActive)
	if err != nil {
		return user.User{}, mapError(err)
	}
	return u, nil
}

// --- helpers -----------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (book.Book, error) {
	var (
		b    book.Book
		year sql.NullInt64
		isbn sql.NullString
		desc sql.NullString
	)
	if err := row.Scan(&b.ID, &b.Title, &b.Author, &year, &isbn, &b.CopiesAvailable, &desc); err != nil {
		return book.Book{}, mapError(err)
	}
	if year.Valid {
		y := int(year.Int64)
		b.PublicationYear = &y
	}
	if isbn.Valid {
		v := isbn.String
		b.ISBN = &v
	}
	if desc.Valid {
		v := desc.String
		b.Description = &v
	}
	return b, nil
}

func scanReader(row rowScanner) (reader.Reader, error) {
	var r reader.Reader
	if err := row.Scan(&r.ID, &r.Name, &r.Email); err != nil {
		return reader.Reader{}, mapError(err)
	}
	return r, nil
}

func scanLoan(row rowScanner) (loan.Loan, error) {
	var (
		l        loan.Loan
		returned sql.NullTime
	)
	if err := row.Scan(&l.ID, &l.BookID, &l.ReaderID, &l.BorrowDate, &returned); err != nil {
		return loan.Loan{}, mapError(err)
	}
	if returned.Valid {
		t := returned.Time.UTC()
		l.ReturnDate = &t
	}
	l.BorrowDate = l.BorrowDate.UTC()
	return l, nil
}

func collectLoans(rows *sql.Rows) ([]loan.Loan, error) {
	var result []loan.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}

// mapError translates driver errors into the storage sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", storage.ErrDuplicate, pqErr.Constraint)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %v", storage.ErrConflict, pqErr.Message)
		}
	}
	return err
}
