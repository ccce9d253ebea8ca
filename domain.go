package main

import (
	"errors"
	"time"
)

type User struct {
	Id                  int64     `json:"id"`
	Email               string    `json:"email"`
	PasswordHash        string    `json:"-"`
	WeeklySpendingLimit int64     `json:"weekly_spending_limit"`
	CreatedAt           time.Time `json:"created_at"`
}

// Expense amounts are stored in cents to avoid floating point rounding.
type Expense struct {
	Id          int64     `json:"id"`
	UserId      int64     `json:"user_id"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	EntryDate   time.Time `json:"entry_date"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ErrNotFound covers both a missing expense and an expense owned by someone
// else. Collapsing the two keeps callers from probing which ids exist.
var ErrNotFound = errors.New("expense not found or access denied")

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrDuplicateEmail       = errors.New("email is already registered")
	ErrAuthenticationFailed = errors.New("invalid email or password")
	ErrInvalidToken         = errors.New("invalid token")
)

// ValidationError carries a client-facing message about malformed input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
