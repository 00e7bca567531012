package user

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a user is not found.
var ErrNotFound = errors.New("user not found")

// User is the identity record the circulation engine consults. Deactivated
// members keep their history but cannot borrow.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
