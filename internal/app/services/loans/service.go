// Package loans implements the borrowing engine. All state transitions run
// inside a storage transaction so copy counts and loan caps stay consistent
// under concurrent requests.
package loans

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/shelfwise/library-service/internal/app/domain/loan"
	"github.com/shelfwise/library-service/internal/app/storage"
	"github.com/shelfwise/library-service/internal/errors"
	"github.com/shelfwise/library-service/pkg/logger"
)

// MaxActiveLoans is the number of books a reader may hold at once.
const MaxActiveLoans = 3

const defaultListLimit = 100

// Recorder counts completed borrow and return operations.
type Recorder interface {
	BorrowRecorded()
	ReturnRecorded()
}

// Service coordinates borrow and return operations.
type Service struct {
	store    storage.Store
	uow      storage.UnitOfWork
	recorder Recorder
	log      *logger.Logger
	now      func() time.Time
}

// New creates a loan service. recorder may be nil.
func New(store storage.Store, uow storage.UnitOfWork, recorder Recorder, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("loans")
	}
	return &Service{
		store:    store,
		uow:      uow,
		recorder: recorder,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Borrow lends one copy of a book to a reader. It fails when the book or
// reader does not exist, when no copies are available, or when the reader is
// already at the active loan cap. The transaction is retried once if the
// database reports a serialization conflict.
func (s *Service) Borrow(ctx context.Context, bookID, readerID int64) (loan.Loan, error) {
	var created loan.Loan

	run := func() error {
		return s.uow.InTransaction(ctx, func(tx storage.Store) error {
			b, err := tx.GetBookForUpdate(ctx, bookID)
			if err != nil {
				if stderrors.Is(err, storage.ErrNotFound) {
					return errors.NotFound("Book not found")
				}
				return err
			}
			if b.CopiesAvailable <= 0 {
				return errors.InvalidOperation("No copies of this book available")
			}

			if _, err := tx.GetReaderForUpdate(ctx, readerID); err != nil {
				if stderrors.Is(err, storage.ErrNotFound) {
					return errors.NotFound("Reader not found")
				}
				return err
			}

			active, err := tx.CountActiveLoansByReader(ctx, readerID)
			if err != nil {
				return err
			}
			if active >= MaxActiveLoans {
				return errors.InvalidOperation("Reader has already borrowed maximum number of borrowed books (3)")
			}

			created, err = tx.CreateLoan(ctx, loan.Loan{
				BookID:     bookID,
				ReaderID:   readerID,
				BorrowDate: s.now(),
			})
			if err != nil {
				return err
			}

			b.CopiesAvailable--
			_, err = tx.UpdateBook(ctx, b)
			return err
		})
	}

	err := run()
	if stderrors.Is(err, storage.ErrConflict) {
		s.log.WithField("book_id", bookID).Warn("borrow transaction conflicted, retrying")
		err = run()
	}
	if err != nil {
		return loan.Loan{}, err
	}

	if s.recorder != nil {
		s.recorder.BorrowRecorded()
	}
	s.log.WithFields(map[string]interface{}{
		"loan_id":   created.ID,
		"book_id":   bookID,
		"reader_id": readerID,
	}).Info("book borrowed")
	return created, nil
}

// Return closes an active loan and puts the copy back on the shelf.
func (s *Service) Return(ctx context.Context, loanID int64) (loan.Loan, error) {
	var closed loan.Loan

	run := func() error {
		return s.uow.InTransaction(ctx, func(tx storage.Store) error {
			l, err := tx.GetLoanForUpdate(ctx, loanID)
			if err != nil {
				if stderrors.Is(err, storage.ErrNotFound) {
					return errors.NotFound("Borrow record not found")
				}
				return err
			}
			if !l.Active() {
				return errors.InvalidOperation("This book has already been returned")
			}

			returned := s.now()
			l.ReturnDate = &returned
			closed, err = tx.UpdateLoan(ctx, l)
			if err != nil {
				return err
			}

			b, err := tx.GetBookForUpdate(ctx, l.BookID)
			if err != nil {
				return err
			}
			b.CopiesAvailable++
			_, err = tx.UpdateBook(ctx, b)
			return err
		})
	}

	err := run()
	if stderrors.Is(err, storage.ErrConflict) {
		s.log.WithField("loan_id", loanID).Warn("return transaction conflicted, retrying")
		err = run()
	}
	if err != nil {
		return loan.Loan{}, err
	}

	if s.recorder != nil {
		s.recorder.ReturnRecorded()
	}
	s.log.WithFields(map[string]interface{}{
		"loan_id": closed.ID,
		"book_id": closed.BookID,
	}).Info("book returned")
	return closed, nil
}

// ListActiveForReader returns the reader's open loans.
func (s *Service) ListActiveForReader(ctx context.Context, readerID int64) ([]loan.Loan, error) {
	if _, err := s.store.GetReader(ctx, readerID); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("Reader not found")
		}
		return nil, err
	}
	result, err := s.store.ListActiveLoansByReader(ctx, readerID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []loan.Loan{}
	}
	return result, nil
}

// List returns all loan records, paginated.
func (s *Service) List(ctx context.Context, offset, limit int) ([]loan.Loan, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	result, err := s.store.ListLoans(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []loan.Loan{}
	}
	return result, nil
}
