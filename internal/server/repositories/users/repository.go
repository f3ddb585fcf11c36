// Package users is the credential store: durable storage and lookup of
// user records with email uniqueness enforced by the store itself.
package users

import (
	"context"

	"github.com/dmitrijs2005/todoauth/internal/server/models"
)

// Repository stores users.
//
// Create assigns user.ID and user.CreatedAt. It returns common.ErrDuplicateEmail
// when the email is taken, and an error wrapping common.ErrTransientStore when
// the store cannot be reached. FindByEmail matches the stored email exactly and
// returns common.ErrorNotFound when there is no such user.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}
