// Package httpapi exposes the REST surface of the library service.
package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	app "github.com/shelfwise/library-service/internal/app"
	"github.com/shelfwise/library-service/internal/app/domain/book"
	"github.com/shelfwise/library-service/internal/app/domain/reader"
	"github.com/shelfwise/library-service/internal/app/metrics"
	"github.com/shelfwise/library-service/internal/errors"
	"github.com/shelfwise/library-service/internal/httputil"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a router exposing the REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}

	r := mux.NewRouter()
	r.HandleFunc("/", h.root).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/register", h.register).Methods(http.MethodPost)
	r.HandleFunc("/token", h.token).Methods(http.MethodPost)

	handle(r, "/books", h.createBook, http.MethodPost)
	handle(r, "/books", h.listBooks, http.MethodGet)
	handle(r, "/books/{id:[0-9]+}", h.getBook, http.MethodGet)
	handle(r, "/books/{id:[0-9]+}", h.updateBook, http.MethodPut)
	handle(r, "/books/{id:[0-9]+}", h.deleteBook, http.MethodDelete)

	handle(r, "/readers", h.createReader, http.MethodPost)
	handle(r, "/readers", h.listReaders, http.MethodGet)
	handle(r, "/readers/{id:[0-9]+}", h.getReader, http.MethodGet)
	handle(r, "/readers/{id:[0-9]+}", h.updateReader, http.MethodPut)
	handle(r, "/readers/{id:[0-9]+}", h.deleteReader, http.MethodDelete)

	handle(r, "/borrow", h.borrow, http.MethodPost)
	handle(r, "/return/{id:[0-9]+}", h.returnBook, http.MethodPost)
	handle(r, "/borrowed-books/reader/{id:[0-9]+}", h.readerLoans, http.MethodGet)
	handle(r, "/borrowed-books", h.listLoans, http.MethodGet)

	return r
}

// handle registers fn for both the bare path and its trailing-slash form, so
// clients written against either convention work without redirects.
func handle(r *mux.Router, path string, fn http.HandlerFunc, method string) {
	r.HandleFunc(path, fn).Methods(method)
	r.HandleFunc(path+"/", fn).Methods(method)
}

func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to Library Management System API",
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- auth --------------------------------------------------------------------

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	u, err := h.app.Auth.Register(r.Context(), payload.Email, payload.Password)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *handler) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid form body")
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	tok, err := h.app.Auth.IssueToken(r.Context(), username, password)
	if err != nil {
		if se := errors.GetServiceError(err); se != nil && se.HTTPStatus == http.StatusUnauthorized {
			w.Header().Set("WWW-Authenticate", "Bearer")
		}
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tok)
}

// --- books -------------------------------------------------------------------

// bookPayload is the write model for books. CopiesAvailable is a pointer so
// an omitted field can default to one copy.
type bookPayload struct {
	Title           string  `json:"title"`
	Author          string  `json:"author"`
	PublicationYear *int    `json:"publication_year"`
	ISBN            *string `json:"isbn"`
	CopiesAvailable *int    `json:"copies_available"`
	Description     *string `json:"description"`
}

func (p bookPayload) toBook(id int64) book.Book {
	copies := 1
	if p.CopiesAvailable != nil {
		copies = *p.CopiesAvailable
	}
	return book.Book{
		ID:              id,
		Title:           p.Title,
		Author:          p.Author,
		PublicationYear: p.PublicationYear,
		ISBN:            p.ISBN,
		CopiesAvailable: copies,
		Description:     p.Description,
	}
}

func (h *handler) createBook(w http.ResponseWriter, r *http.Request) {
	var payload bookPayload
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.app.Catalog.CreateBook(r.Context(), payload.toBook(0))
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, created)
}

func (h *handler) listBooks(w http.ResponseWriter, r *http.Request) {
	skip, limit := pagination(r)
	books, err := h.app.Catalog.ListBooks(r.Context(), skip, limit)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, books)
}

func (h *handler) getBook(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	b, err := h.app.Catalog.GetBook(r.Context(), id)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

func (h *handler) updateBook(w http.ResponseWriter, r *http.Request) {
	var payload bookPayload
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.app.Catalog.UpdateBook(r.Context(), payload.toBook(pathID(r)))
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteBook(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Catalog.DeleteBook(r.Context(), pathID(r)); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Book deleted successfully"})
}

// --- readers -----------------------------------------------------------------

type readerPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (h *handler) createReader(w http.ResponseWriter, r *http.Request) {
	var payload readerPayload
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.app.Catalog.CreateReader(r.Context(), reader.Reader{Name: payload.Name, Email: payload.Email})
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, created)
}

func (h *handler) listReaders(w http.ResponseWriter, r *http.Request) {
	skip, limit := pagination(r)
	readers, err := h.app.Catalog.ListReaders(r.Context(), skip, limit)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, readers)
}

func (h *handler) getReader(w http.ResponseWriter, r *http.Request) {
	rd, err := h.app.Catalog.GetReader(r.Context(), pathID(r))
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rd)
}

func (h *handler) updateReader(w http.ResponseWriter, r *http.Request) {
	var payload readerPayload
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.app.Catalog.UpdateReader(r.Context(), reader.Reader{
		ID:    pathID(r),
		Name:  payload.Name,
		Email: payload.Email,
	})
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteReader(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Catalog.DeleteReader(r.Context(), pathID(r)); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Reader deleted successfully"})
}

// --- loans -------------------------------------------------------------------

func (h *handler) borrow(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		BookID   int64 `json:"book_id"`
		ReaderID int64 `json:"reader_id"`
	}
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	l, err := h.app.Loans.Borrow(r.Context(), payload.BookID, payload.ReaderID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, l)
}

func (h *handler) returnBook(w http.ResponseWriter, r *http.Request) {
	if _, err := h.app.Loans.Return(r.Context(), pathID(r)); err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"message": "Book returned successfully"})
}

func (h *handler) readerLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.app.Loans.ListActiveForReader(r.Context(), pathID(r))
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, loans)
}

func (h *handler) listLoans(w http.ResponseWriter, r *http.Request) {
	skip, limit := pagination(r)
	loans, err := h.app.Loans.List(r.Context(), skip, limit)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, loans)
}

// --- helpers -----------------------------------------------------------------

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func pagination(r *http.Request) (skip, limit int) {
	skip, _ = strconv.Atoi(r.URL.Query().Get("skip"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return skip, limit
}
