// Package services contains server-side business logic. This file implements
// UserService, which handles sign-up and sign-in and mints session tokens.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/dmitrijs2005/todoauth/internal/common"
	"github.com/dmitrijs2005/todoauth/internal/logging"
	"github.com/dmitrijs2005/todoauth/internal/server/models"
	"github.com/dmitrijs2005/todoauth/internal/server/repositories/users"
)

// PasswordHasher is satisfied by *auth.Hasher.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// TokenIssuer is satisfied by *auth.Issuer.
type TokenIssuer interface {
	Issue(subjectID, email string) (string, error)
}

// SignUpInput is the sign-up request body.
type SignUpInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required"`
}

// SignInInput is the sign-in request body.
type SignInInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResult is returned by a successful sign-up or sign-in.
type AuthResult struct {
	User  models.PublicUser `json:"user"`
	Token string            `json:"token"`
}

// UserService provides the two identity flows:
//   - SignUp: create a user and mint a token
//   - SignIn: check credentials and mint a token
//
// Neither flow retries. A user row is written only after hashing succeeded.
type UserService struct {
	users     users.Repository
	hasher    PasswordHasher
	tokens    TokenIssuer
	validate  *validator.Validate
	logger    logging.Logger
	dummyHash string
}

// NewUserService wires the credential store, hasher and issuer. A nil logger
// discards output.
func NewUserService(repo users.Repository, hasher PasswordHasher, tokens TokenIssuer, logger logging.Logger) *UserService {
	if logger == nil {
		logger = logging.Nop{}
	}
	s := &UserService{
		users:    repo,
		hasher:   hasher,
		tokens:   tokens,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("module", "user_service"),
	}
	// Compared against on unknown emails so both sign-in failures cost one hash check.
	if h, err := hasher.Hash("not-a-real-password"); err == nil {
		s.dummyHash = h
	}
	return s
}

// SignUp registers a new user. It fails with common.ErrValidation,
// common.ErrAccountExists or an error wrapping common.ErrTransientStore.
func (s *UserService) SignUp(ctx context.Context, in SignUpInput) (*AuthResult, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}

	_, err := s.users.FindByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return nil, common.ErrAccountExists
	case !errors.Is(err, common.ErrorNotFound):
		return nil, s.storeFailure(ctx, "signup", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, common.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, &models.User{
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: hash,
	})
	if err != nil {
		// Lost a race with a concurrent sign-up for the same email.
		if errors.Is(err, common.ErrDuplicateEmail) {
			return nil, common.ErrAccountExists
		}
		return nil, s.storeFailure(ctx, "signup", err)
	}

	res, err := s.result(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user signed up", "user_id", user.ID)
	return res, nil
}

// SignIn checks credentials. Unknown email and wrong password both return
// common.ErrInvalidCredentials.
func (s *UserService) SignIn(ctx context.Context, in SignInInput) (*AuthResult, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Verify(in.Password, s.dummyHash)
			return nil, common.ErrInvalidCredentials
		}
		return nil, s.storeFailure(ctx, "signin", err)
	}

	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		return nil, common.ErrInvalidCredentials
	}

	res, err := s.result(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user signed in", "user_id", user.ID)
	return res, nil
}

func (s *UserService) result(user *models.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResult{User: user.Public(), Token: token}, nil
}

// check runs struct validation and folds the outcome into a ValidationError.
func (s *UserService) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return common.ErrValidation
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return common.ErrValidation
		}
	}
	for _, fe := range verrs {
		if fe.Field() == "Password" && fe.Tag() == "min" {
			return common.NewValidationError("password must be at least " + fe.Param() + " characters")
		}
	}
	return common.ErrValidation
}

func (s *UserService) storeFailure(ctx context.Context, op string, err error) error {
	s.logger.Error(ctx, "credential store failure", "op", op, "error", err)
	if errors.Is(err, common.ErrTransientStore) {
		return err
	}
	return fmt.Errorf("%w: %w", common.ErrTransientStore, err)
}
