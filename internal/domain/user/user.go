package user

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

var (
	// request shape rejected before the store is touched
	ErrInvalidInput = errors.New("invalid user input")
	// another user already holds the email
	ErrDuplicateEmail = errors.New("email already in use")
	// the store could not be reached or failed the write
	ErrStoreUnavailable = errors.New("user store unavailable")
	ErrNotFound         = errors.New("user not found")
)

// CreateUserRequest is shared by the HTTP binder and the registry, both read the binding tags.
// Emails are compared byte for byte, no case folding or trimming.
type CreateUserRequest struct {
	Email string `json:"email" binding:"required,email,max=254"`
	Name  string `json:"name" binding:"required,max=200"`
}

// A factory to build a User from the incoming DTO

func New(req CreateUserRequest, now time.Time) User {
	return User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		Name:      req.Name,
		CreatedAt: now.UTC(),
	}
}
