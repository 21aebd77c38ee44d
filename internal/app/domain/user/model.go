package user

// User is an API principal. The password is stored only as a bcrypt hash and
// never serialized.
type User struct {
	ID             int64  `json:"id"`
	Email          string `json:"email"`
	HashedPassword string `json:"-"`
	IsActive       bool   `json:"is_active"`
}
