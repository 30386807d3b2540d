package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/gin-gonic/gin"
)

type UserCreator interface {
	CreateUser(ctx context.Context, email, name string) (user.User, error)
}

// DefaultStoreTimeout applies when NewUsersHandler is given no timeout.
const DefaultStoreTimeout = 3 * time.Second

type UsersHandler struct {
	registry     UserCreator
	storeTimeout time.Duration
}

// NewUsersHandler bounds each registry call by storeTimeout, on top of whatever
// deadline the request context already carries.
func NewUsersHandler(registry UserCreator, storeTimeout time.Duration) *UsersHandler {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &UsersHandler{registry: registry, storeTimeout: storeTimeout}
}

// CreateUser handles POST /users. Invalid input and a taken email are both 400.
func (h *UsersHandler) CreateUser(ctx *gin.Context) {
	var req user.CreateUserRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.storeTimeout)
	defer cancel()

	u, err := h.registry.CreateUser(cctx, req.Email, req.Name)

	if err != nil {
		switch {
		case errors.Is(err, user.ErrInvalidInput):
			RespondBadRequest(ctx, "Invalid request body", ValidationDetails(err, &req))
		case errors.Is(err, user.ErrDuplicateEmail):
			RespondBadRequestCode(ctx, "email_taken", "Email is already in use.")
		default:
			RespondInternal(ctx, "Could not create user")
		}
		return
	}

	ctx.JSON(http.StatusCreated, u)
}
