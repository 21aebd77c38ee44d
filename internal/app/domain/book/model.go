package book

// Book is a catalog record. CopiesAvailable is owned by the loan engine:
// it only moves through borrow and return, and never drops below zero.
type Book struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	Author          string  `json:"author"`
	PublicationYear *int    `json:"publication_year"`
	ISBN            *string `json:"isbn"`
	CopiesAvailable int     `json:"copies_available"`
	Description     *string `json:"description"`
}
