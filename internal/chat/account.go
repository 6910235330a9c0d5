package chat

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/johndosdos/dmchat/internal/auth"
	"github.com/johndosdos/dmchat/internal/model"
)

const minPasswordLen = 6

// ErrBadCredentials is returned by Login for unknown emails and wrong
// passwords alike.
var ErrBadCredentials = errors.New("invalid credentials")

type SignupInput struct {
	FullName string
	Username string
	Email    string
	Password string
}

func (s *Service) Signup(ctx context.Context, in SignupInput) (model.User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if in.FullName == "" || in.Username == "" || in.Email == "" || in.Password == "" {
		return model.User{}, fmt.Errorf("all fields are required: %w", ErrValidation)
	}
	if len(in.Password) < minPasswordLen {
		return model.User{}, fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, ErrValidation)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return model.User{}, fmt.Errorf("invalid email format: %w", ErrValidation)
	}

	hashed, err := auth.HashPassword(in.Password)
	if err != nil {
		return model.User{}, err
	}

	user, err := s.store.CreateUser(ctx, NewUser{
		FullName:       in.FullName,
		Username:       in.Username,
		Email:          in.Email,
		HashedPassword: hashed,
	})
	if err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.InfoContext(ctx, "user signed up",
		"user_id", user.ID,
		"username", user.Username)
	return user, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return model.User{}, fmt.Errorf("email and password are required: %w", ErrValidation)
	}

	user, hash, err := s.store.GetUserWithPasswordByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return model.User{}, ErrBadCredentials
	}
	if err != nil {
		return model.User{}, fmt.Errorf("load user: %w", err)
	}

	ok, err := auth.CheckPasswordHash(password, hash)
	if err != nil {
		return model.User{}, fmt.Errorf("cannot verify password: %w", err)
	}
	if !ok {
		return model.User{}, ErrBadCredentials
	}

	s.logger.InfoContext(ctx, "user logged in",
		"user_id", user.ID,
		"username", user.Username)
	return user, nil
}

// Me returns the authenticated user's profile.
func (s *Service) Me(ctx context.Context, self string) (model.User, error) {
	user, err := s.store.GetUser(ctx, self)
	if err != nil {
		return model.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}
