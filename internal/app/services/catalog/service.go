// Package catalog manages the book and reader records behind the lending
// engine. Writes validate input and deletes are refused while the record is
// referenced by an active loan.
package catalog

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/shelfwise/library-service/internal/app/domain/book"
	"github.com/shelfwise/library-service/internal/app/domain/reader"
	"github.com/shelfwise/library-service/internal/app/storage"
	"github.com/shelfwise/library-service/internal/errors"
	"github.com/shelfwise/library-service/pkg/logger"
)

const defaultListLimit = 100

// Service implements catalog operations over the storage layer.
type Service struct {
	store storage.Store
	uow   storage.UnitOfWork
	log   *logger.Logger
}

// New creates a catalog service.
func New(store storage.Store, uow storage.UnitOfWork, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("catalog")
	}
	return &Service{store: store, uow: uow, log: log}
}

// --- books -------------------------------------------------------------------

// CreateBook validates and stores a new book.
func (s *Service) CreateBook(ctx context.Context, b book.Book) (book.Book, error) {
	if err := validateBook(&b); err != nil {
		return book.Book{}, err
	}

	created, err := s.store.CreateBook(ctx, b)
	if err != nil {
		if stderrors.Is(err, storage.ErrDuplicate) {
			return book.Book{}, errors.Conflict("Book with this ISBN already exists", err)
		}
		return book.Book{}, err
	}
	s.log.WithField("book_id", created.ID).Info("book created")
	return created, nil
}

// UpdateBook replaces every field of an existing book.
func (s *Service) UpdateBook(ctx context.Context, b book.Book) (book.Book, error) {
	if err := validateBook(&b); err != nil {
		return book.Book{}, err
	}

	updated, err := s.store.UpdateBook(ctx, b)
	if err != nil {
		switch {
		case stderrors.Is(err, storage.ErrNotFound):
			return book.Book{}, errors.NotFound("Book not found")
		case stderrors.Is(err, storage.ErrDuplicate):
			return book.Book{}, errors.Conflict("Book with this ISBN already exists", err)
		}
		return book.Book{}, err
	}
	return updated, nil
}

// GetBook fetches one book by id.
func (s *Service) GetBook(ctx context.Context, id int64) (book.Book, error) {
	b, err := s.store.GetBook(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return book.Book{}, errors.NotFound("Book not found")
		}
		return book.Book{}, err
	}
	return b, nil
}

// ListBooks returns books ordered by id.
func (s *Service) ListBooks(ctx context.Context, offset, limit int) ([]book.Book, error) {
	offset, limit = normalizePage(offset, limit)
	result, err := s.store.ListBooks(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []book.Book{}
	}
	return result, nil
}

// DeleteBook removes a book. Books with active loans cannot be deleted. The
// loan check and the delete run in one transaction, with the book row locked,
// so a borrow cannot slip in between them.
func (s *Service) DeleteBook(ctx context.Context, id int64) error {
	err := s.uow.InTransaction(ctx, func(tx storage.Store) error {
		if _, err := tx.GetBookForUpdate(ctx, id); err != nil {
			if stderrors.Is(err, storage.ErrNotFound) {
				return errors.NotFound("Book not found")
			}
			return err
		}

		active, err := tx.CountActiveLoansByBook(ctx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return errors.InvalidOperation("Book has active loans and cannot be deleted")
		}

		return tx.DeleteBook(ctx, id)
	})
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("Book not found")
		}
		return err
	}
	s.log.WithField("book_id", id).Info("book deleted")
	return nil
}

// --- readers -----------------------------------------------------------------

// CreateReader validates and stores a new reader.
func (s *Service) CreateReader(ctx context.Context, r reader.Reader) (reader.Reader, error) {
	if err := validateReader(r); err != nil {
		return reader.Reader{}, err
	}

	if _, err := s.store.GetReaderByEmail(ctx, r.Email); err == nil {
		return reader.Reader{}, errors.InvalidOperation("Email already registered")
	} else if !stderrors.Is(err, storage.ErrNotFound) {
		return reader.Reader{}, err
	}

	created, err := s.store.CreateReader(ctx, r)
	if err != nil {
		if stderrors.Is(err, storage.ErrDuplicate) {
			return reader.Reader{}, errors.InvalidOperation("Email already registered")
		}
		return reader.Reader{}, err
	}
	s.log.WithField("reader_id", created.ID).Info("reader created")
	return created, nil
}

// UpdateReader replaces name and email of an existing reader.
func (s *Service) UpdateReader(ctx context.Context, r reader.Reader) (reader.Reader, error) {
	if err := validateReader(r); err != nil {
		return reader.Reader{}, err
	}

	if existing, err := s.store.GetReaderByEmail(ctx, r.Email); err == nil && existing.ID != r.ID {
		return reader.Reader{}, errors.InvalidOperation("Email already registered")
	} else if err != nil && !stderrors.Is(err, storage.ErrNotFound) {
		return reader.Reader{}, err
	}

	updated, err := s.store.UpdateReader(ctx, r)
	if err != nil {
		switch {
		case stderrors.Is(err, storage.ErrNotFound):
			return reader.Reader{}, errors.NotFound("Reader not found")
		case stderrors.Is(err, storage.ErrDuplicate):
			return reader.Reader{}, errors.InvalidOperation("Email already registered")
		}
		return reader.Reader{}, err
	}
	return updated, nil
}

// GetReader fetches one reader by id.
func (s *Service) GetReader(ctx context.Context, id int64) (reader.Reader, error) {
	r, err := s.store.GetReader(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return reader.Reader{}, errors.NotFound("Reader not found")
		}
		return reader.Reader{}, err
	}
	return r, nil
}

// ListReaders returns readers ordered by id.
func (s *Service) ListReaders(ctx context.Context, offset, limit int) ([]reader.Reader, error) {
	offset, limit = normalizePage(offset, limit)
	result, err := s.store.ListReaders(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []reader.Reader{}
	}
	return result, nil
}

// DeleteReader removes a reader. Readers with active loans cannot be deleted.
// Like DeleteBook, the check and the delete share one transaction.
func (s *Service) DeleteReader(ctx context.Context, id int64) error {
	err := s.uow.InTransaction(ctx, func(tx storage.Store) error {
		if _, err := tx.GetReaderForUpdate(ctx, id); err != nil {
			if stderrors.Is(err, storage.ErrNotFound) {
				return errors.NotFound("Reader not found")
			}
			return err
		}

		active, err := tx.CountActiveLoansByReader(ctx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return errors.InvalidOperation("Reader has active loans and cannot be deleted")
		}

		return tx.DeleteReader(ctx, id)
	})
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("Reader not found")
		}
		return err
	}
	s.log.WithField("reader_id", id).Info("reader deleted")
	return nil
}

// --- validation --------------------------------------------------------------

func validateBook(b *book.Book) error {
	if n := len(strings.TrimSpace(b.Title)); n < 1 || n > 200 {
		return errors.Validation("Title must be between 1 and 200 characters")
	}
	if n := len(strings.TrimSpace(b.Author)); n < 1 || n > 100 {
		return errors.Validation("Author must be between 1 and 100 characters")
	}
	if b.PublicationYear != nil {
		maxYear := time.Now().Year() + 1
		if *b.PublicationYear <= 1000 || *b.PublicationYear > maxYear {
			return errors.Validation(fmt.Sprintf("Publication year must be after 1000 and no later than %d", maxYear))
		}
	}
	if b.ISBN != nil {
		normalized := strings.ReplaceAll(*b.ISBN, "-", "")
		if len(normalized) != 10 && len(normalized) != 13 {
			return errors.Validation("ISBN must be 10 or 13 characters long")
		}
		b.ISBN = &normalized
	}
	if b.CopiesAvailable < 0 {
		return errors.Validation("Copies available must not be negative")
	}
	if b.Description != nil && len(*b.Description) > 1000 {
		return errors.Validation("Description must be at most 1000 characters")
	}
	return nil
}

func validateReader(r reader.Reader) error {
	if n := len(strings.TrimSpace(r.Name)); n < 2 || n > 100 {
		return errors.Validation("Name must be between 2 and 100 characters")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return errors.Validation("Invalid email address")
	}
	return nil
}

func normalizePage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	return offset, limit
}
