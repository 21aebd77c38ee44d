package reader

// Reader is a registered library member who may hold loans.
type Reader struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
