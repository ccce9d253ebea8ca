package main

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// fakeStore is an in-memory Store with the same error semantics as
// PostgresStore, used to exercise handlers and middleware without a
// database.
type fakeStore struct {
	mu         sync.Mutex
	users      map[int64]User
	expenses   map[int64]Expense
	nextUserID int64
	nextExpID  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[int64]User),
		expenses: make(map[int64]Expense),
	}
}

func (f *fakeStore) CreateUser(ctx context.Context, email, passwordHash string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.Email == email {
			return User{}, ErrDuplicateEmail
		}
	}

	f.nextUserID++
	user := User{
		Id:           f.nextUserID,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	f.users[user.Id] = user
	return user, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (f *fakeStore) GetUserByID(ctx context.Context, id int64) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

// deleteUser simulates an account being removed after tokens were issued.
func (f *fakeStore) deleteUser(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
}

func (f *fakeStore) CreateExpense(ctx context.Context, e Expense) (Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextExpID++
	e.Id = f.nextExpID
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	f.expenses[e.Id] = e
	return e, nil
}

func (f *fakeStore) GetExpenseByIDAndOwner(ctx context.Context, id, ownerID int64) (Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.expenses[id]
	if !ok || e.UserId != ownerID {
		return Expense{}, ErrNotFound
	}
	return e, nil
}

func (f *fakeStore) ListExpenses(ctx context.Context, ownerID int64, page PageRequest) ([]Expense, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	owned := []Expense{}
	for _, e := range f.expenses {
		if e.UserId == ownerID {
			owned = append(owned, e)
		}
	}

	sort.Slice(owned, func(i, j int) bool {
		a, b := owned[i], owned[j]
		if page.Desc {
			a, b = b, a
		}
		switch page.SortField {
		case "amount_cents":
			if a.AmountCents != b.AmountCents {
				return a.AmountCents < b.AmountCents
			}
		case "created_at":
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		default: // entry_date
			if !a.EntryDate.Equal(b.EntryDate) {
				return a.EntryDate.Before(b.EntryDate)
			}
		}
		return a.Id < b.Id
	})

	total := int64(len(owned))
	start := page.Page * page.Size
	if start > len(owned) {
		start = len(owned)
	}
	end := start + page.Size
	if end > len(owned) {
		end = len(owned)
	}

	return owned[start:end], total, nil
}

func (f *fakeStore) UpdateExpense(ctx context.Context, id, ownerID int64, patch ExpensePatch) (Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.expenses[id]
	if !ok || e.UserId != ownerID {
		return Expense{}, ErrNotFound
	}

	if patch.Description != nil {
		e.Description = *patch.Description
	}
	if patch.AmountCents != nil {
		e.AmountCents = *patch.AmountCents
	}
	if patch.EntryDate != nil {
		e.EntryDate = *patch.EntryDate
	}
	e.UpdatedAt = time.Now()
	f.expenses[id] = e
	return e, nil
}

func (f *fakeStore) DeleteExpense(ctx context.Context, id, ownerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.expenses[id]
	if !ok || e.UserId != ownerID {
		return ErrNotFound
	}
	delete(f.expenses, id)
	return nil
}

func (f *fakeStore) GetUserWeeklyLimit(ctx context.Context, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	return u.WeeklySpendingLimit, nil
}

func (f *fakeStore) SetUserWeeklyLimit(ctx context.Context, userID int64, newLimit int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.WeeklySpendingLimit = newLimit
	f.users[userID] = u
	return nil
}

func (f *fakeStore) GetWeeklyExpenses(ctx context.Context, ownerID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	weekStart := startOfWeek(time.Now())
	weekEnd := weekStart.AddDate(0, 0, 7)

	var total int64
	for _, e := range f.expenses {
		if e.UserId != ownerID {
			continue
		}
		if e.EntryDate.Before(weekStart) || !e.EntryDate.Before(weekEnd) {
			continue
		}
		total += e.AmountCents
	}
	return total, nil
}

// startOfWeek matches Postgres date_trunc('week', ...): weeks start Monday.
func startOfWeek(t time.Time) time.Time {
	day := t.Truncate(24 * time.Hour)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return day.AddDate(0, 0, 1-weekday)
}

// fakePublisher records what would have gone to RabbitMQ.
type fakePublisher struct {
	mu    sync.Mutex
	notes []Notification
}

func (f *fakePublisher) Publish(n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, n)
	return nil
}

func (f *fakePublisher) published() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification{}, f.notes...)
}

type testEnv struct {
	store     *fakeStore
	codec     *TokenCodec
	auth      *Authenticator
	publisher *fakePublisher
	mux       *chi.Mux
}

func newTestEnv() *testEnv {
	store := newFakeStore()
	codec, err := NewTokenCodec("test-secret", time.Hour)
	if err != nil {
		panic(err)
	}
	publisher := &fakePublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auth := NewAuthenticator(store, codec, 6)
	h := NewHandler(store, auth, publisher, logger)

	cfg := &Config{CORSAllowedOrigins: []string{"*"}}
	mux := chi.NewRouter()
	RegisterRouters(mux, h, codec, store, cfg)

	return &testEnv{store: store, codec: codec, auth: auth, publisher: publisher, mux: mux}
}
