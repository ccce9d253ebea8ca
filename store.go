package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExpensePatch holds the fields of a partial expense update; nil means
// "leave unchanged".
type ExpensePatch struct {
	Description *string
	AmountCents *int64
	EntryDate   *time.Time
}

// PageRequest describes one page of an expense listing. SortField must be
// one of the whitelisted column names produced by parsePageRequest; it is
// interpolated into SQL and must never come from user input directly.
type PageRequest struct {
	Page      int
	Size      int
	SortField string
	Desc      bool
}

func (p PageRequest) orderBy() string {
	dir := "ASC"
	if p.Desc {
		dir = "DESC"
	}
	// id breaks ties so pages stay stable across requests
	return fmt.Sprintf("ORDER BY %s %s, id %s", p.SortField, dir, dir)
}

type Store interface {
	CreateUser(ctx context.Context, email, passwordHash string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id int64) (User, error)

	CreateExpense(ctx context.Context, e Expense) (Expense, error)
	GetExpenseByIDAndOwner(ctx context.Context, id, ownerID int64) (Expense, error)
	ListExpenses(ctx context.Context, ownerID int64, page PageRequest) ([]Expense, int64, error)
	UpdateExpense(ctx context.Context, id, ownerID int64, patch ExpensePatch) (Expense, error)
	DeleteExpense(ctx context.Context, id, ownerID int64) error

	GetUserWeeklyLimit(ctx context.Context, userID int64) (int64, error)
	SetUserWeeklyLimit(ctx context.Context, userID int64, newLimit int64) error
	GetWeeklyExpenses(ctx context.Context, ownerID int64) (int64, error)
}

// PostgresStore implements Store on top of a pgx connection pool, so the app
// reuses a managed set of connections instead of opening one per query.
type PostgresStore struct {
	conn *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	conn, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return &PostgresStore{conn: conn}, nil
}

func (p *PostgresStore) Close() {
	p.conn.Close()
}

func (p *PostgresStore) CreateUser(ctx context.Context, email, passwordHash string) (User, error) {
	query := `
        INSERT INTO users (email, password_hash)
        VALUES ($1, $2)
        RETURNING id, email, password_hash, weekly_spending_limit_cents, created_at;
    `

	var user User
	err := p.conn.QueryRow(ctx, query, email, passwordHash).
		Scan(&user.Id, &user.Email, &user.PasswordHash, &user.WeeklySpendingLimit, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return User{}, ErrDuplicateEmail
		}
		return User{}, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func (p *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	query := `
        SELECT id, email, password_hash, weekly_spending_limit_cents, created_at
        FROM users
        WHERE email = $1;
    `

	var user User
	err := p.conn.QueryRow(ctx, query, email).
		Scan(&user.Id, &user.Email, &user.PasswordHash, &user.WeeklySpendingLimit, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("failed to look up user by email: %w", err)
	}

	return user, nil
}

func (p *PostgresStore) GetUserByID(ctx context.Context, id int64) (User, error) {
	query := `
        SELECT id, email, password_hash, weekly_spending_limit_cents, created_at
        FROM users
        WHERE id = $1;
    `

	var user User
	err := p.conn.QueryRow(ctx, query, id).
		Scan(&user.Id, &user.Email, &user.PasswordHash, &user.WeeklySpendingLimit, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("failed to look up user by id: %w", err)
	}

	return user, nil
}

func (p *PostgresStore) CreateExpense(ctx context.Context, e Expense) (Expense, error) {
	query := `
        INSERT INTO expenses (user_id, description, amount_cents, entry_date)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at, updated_at;
    `

	err := p.conn.QueryRow(ctx, query, e.UserId, e.Description, e.AmountCents, e.EntryDate).
		Scan(&e.Id, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Expense{}, fmt.Errorf("failed to create expense: %w", err)
	}

	return e, nil
}

// GetExpenseByIDAndOwner is the only way to fetch a single expense: lookup
// and ownership check are fused into one query, so an expense that exists
// but belongs to someone else is indistinguishable from one that does not
// exist at all.
func (p *PostgresStore) GetExpenseByIDAndOwner(ctx context.Context, id, ownerID int64) (Expense, error) {
	query := `
        SELECT id, user_id, description, amount_cents, entry_date, created_at, updated_at
        FROM expenses
        WHERE id = $1 AND user_id = $2;
    `

	var e Expense
	err := p.conn.QueryRow(ctx, query, id, ownerID).
		Scan(&e.Id, &e.UserId, &e.Description, &e.AmountCents, &e.EntryDate, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, ErrNotFound
		}
		return Expense{}, fmt.Errorf("failed to get expense: %w", err)
	}

	return e, nil
}

func (p *PostgresStore) ListExpenses(ctx context.Context, ownerID int64, page PageRequest) ([]Expense, int64, error) {
	var total int64
	countQuery := `SELECT COUNT(*) FROM expenses WHERE user_id = $1;`
	if err := p.conn.QueryRow(ctx, countQuery, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count expenses: %w", err)
	}

	query := fmt.Sprintf(`
        SELECT id, user_id, description, amount_cents, entry_date, created_at, updated_at
        FROM expenses
        WHERE user_id = $1
        %s
        LIMIT $2 OFFSET $3;
    `, page.orderBy())

	rows, err := p.conn.Query(ctx, query, ownerID, page.Size, page.Page*page.Size)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	expenses := []Expense{}
	for rows.Next() {
		var e Expense
		err := rows.Scan(&e.Id, &e.UserId, &e.Description, &e.AmountCents, &e.EntryDate, &e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}

	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}

	return expenses, total, nil
}

// UpdateExpense applies a partial update in a single owner-scoped statement.
// Zero rows updated means ErrNotFound, whether the id is missing or owned by
// another user.
func (p *PostgresStore) UpdateExpense(ctx context.Context, id, ownerID int64, patch ExpensePatch) (Expense, error) {
	query := `
        UPDATE expenses
        SET description  = COALESCE($3, description),
            amount_cents = COALESCE($4, amount_cents),
            entry_date   = COALESCE($5, entry_date),
            updated_at   = now()
        WHERE id = $1 AND user_id = $2
        RETURNING id, user_id, description, amount_cents, entry_date, created_at, updated_at;
    `

	var e Expense
	err := p.conn.QueryRow(ctx, query, id, ownerID, patch.Description, patch.AmountCents, patch.EntryDate).
		Scan(&e.Id, &e.UserId, &e.Description, &e.AmountCents, &e.EntryDate, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, ErrNotFound
		}
		return Expense{}, fmt.Errorf("failed to update expense: %w", err)
	}

	return e, nil
}

func (p *PostgresStore) DeleteExpense(ctx context.Context, id, ownerID int64) error {
	query := `
        DELETE FROM expenses
        WHERE id = $1 AND user_id = $2;
    `

	result, err := p.conn.Exec(ctx, query, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (p *PostgresStore) GetUserWeeklyLimit(ctx context.Context, userID int64) (int64, error) {
	var weeklyLimit int64
	query := `
        SELECT weekly_spending_limit_cents
        FROM users
        WHERE id = $1;
    `

	err := p.conn.QueryRow(ctx, query, userID).Scan(&weeklyLimit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to retrieve weekly limit: %w", err)
	}

	return weeklyLimit, nil
}

func (p *PostgresStore) SetUserWeeklyLimit(ctx context.Context, userID int64, newLimit int64) error {
	query := `
        UPDATE users
        SET weekly_spending_limit_cents = $1
        WHERE id = $2;
    `

	cmdTag, err := p.conn.Exec(ctx, query, newLimit, userID)
	if err != nil {
		return fmt.Errorf("failed to set weekly spending limit: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (p *PostgresStore) GetWeeklyExpenses(ctx context.Context, ownerID int64) (int64, error) {
	query := `
        SELECT COALESCE(SUM(amount_cents), 0)
        FROM expenses
        WHERE user_id = $1
          AND entry_date >= date_trunc('week', CURRENT_DATE)
          AND entry_date < date_trunc('week', CURRENT_DATE) + interval '1 week';
    `

	var totalExpenses int64
	err := p.conn.QueryRow(ctx, query, ownerID).Scan(&totalExpenses)
	if err != nil {
		return 0, fmt.Errorf("failed to calculate weekly expenses: %w", err)
	}

	return totalExpenses, nil
}
