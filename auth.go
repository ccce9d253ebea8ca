package main

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Authenticator handles registration and login against the user store.
type Authenticator struct {
	store          Store
	codec          *TokenCodec
	minPasswordLen int
}

func NewAuthenticator(store Store, codec *TokenCodec, minPasswordLen int) *Authenticator {
	return &Authenticator{store: store, codec: codec, minPasswordLen: minPasswordLen}
}

// Register creates a new user. Registration does not log the user in: login
// is a separate step and no token is issued here.
func (a *Authenticator) Register(ctx context.Context, email, password, confirmPassword string) (User, error) {
	if _, err := mail.ParseAddress(email); err != nil {
		return User{}, &ValidationError{Message: "invalid email address"}
	}
	if len(password) < a.minPasswordLen {
		return User{}, &ValidationError{Message: fmt.Sprintf("password must be at least %d characters", a.minPasswordLen)}
	}
	if password != confirmPassword {
		return User{}, &ValidationError{Message: "passwords do not match"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	return a.store.CreateUser(ctx, email, string(hash))
}

// Login verifies the submitted credentials and mints an identity token.
// An unknown email and a wrong password produce the same error, so callers
// cannot probe which emails are registered.
func (a *Authenticator) Login(ctx context.Context, email, password string) (string, error) {
	user, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrAuthenticationFailed
		}
		return "", fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrAuthenticationFailed
	}

	token, err := a.codec.Mint(user.Id, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to mint token: %w", err)
	}

	return token, nil
}
