package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Handler encapsulates the HTTP handling logic.
type Handler struct {
	store     Store
	auth      *Authenticator
	publisher NotificationPublisher
	logger    *slog.Logger
}

func NewHandler(store Store, auth *Authenticator, publisher NotificationPublisher, logger *slog.Logger) *Handler {
	return &Handler{store: store, auth: auth, publisher: publisher, logger: logger}
}

// RegisterRouters wires up middleware and routes. Identity resolution runs
// once for every request; everything under the protected group additionally
// requires that an identity was resolved. Register, login and healthz are
// the complete public allow-list.
func RegisterRouters(mux *chi.Mux, h *Handler, codec *TokenCodec, store Store, cfg *Config) {
	mux.Use(middleware.Logger)
	mux.Use(middleware.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	mux.Use(authenticate(codec, store))

	mux.Get("/healthz", h.Health)

	mux.Route("/api", func(api chi.Router) {
		api.Post("/auth/register", h.Register)
		api.Post("/auth/login", h.Login)

		api.Group(func(protected chi.Router) {
			protected.Use(requireUser)

			protected.Get("/expenses", h.ListExpenses)
			protected.Post("/expenses", h.CreateExpense)
			protected.Get("/expenses/{id}", h.GetExpense)
			protected.Patch("/expenses/{id}", h.PatchExpense)
			protected.Delete("/expenses/{id}", h.DeleteExpense)

			protected.Get("/users/limit", h.GetUserWeeklyLimit)
			protected.Put("/users/limit", h.SetUserWeeklyLimit)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// respondError maps domain errors to client responses; anything unexpected
// becomes a logged 500.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, ErrDuplicateEmail):
		writeError(w, http.StatusConflict, ErrDuplicateEmail.Error())
	case errors.Is(err, ErrAuthenticationFailed):
		writeError(w, http.StatusUnauthorized, ErrAuthenticationFailed.Error())
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, ErrNotFound.Error())
	case errors.Is(err, ErrUserNotFound):
		writeError(w, http.StatusNotFound, ErrUserNotFound.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type registerResponse struct {
	UserId    int64     `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	user, err := h.auth.Register(r.Context(), req.Email, req.Password, req.ConfirmPassword)
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		UserId:    user.Id,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

const entryDateFormat = "2006-01-02"

type expenseRequest struct {
	Description *string `json:"description"`
	AmountCents *int64  `json:"amount_cents"`
	EntryDate   *string `json:"entry_date"`
}

// validate checks the fields that are present. For creation all three are
// required; for a patch any subset may be set.
func (req *expenseRequest) validate(requireAll bool) (ExpensePatch, error) {
	var patch ExpensePatch

	if requireAll && (req.Description == nil || req.AmountCents == nil || req.EntryDate == nil) {
		return patch, &ValidationError{Message: "description, amount_cents and entry_date are required"}
	}

	if req.Description != nil {
		desc := strings.TrimSpace(*req.Description)
		if len(desc) < 3 || len(desc) > 255 {
			return patch, &ValidationError{Message: "description must be between 3 and 255 characters"}
		}
		patch.Description = &desc
	}

	if req.AmountCents != nil {
		if *req.AmountCents < 1 {
			return patch, &ValidationError{Message: "amount must be greater than zero"}
		}
		patch.AmountCents = req.AmountCents
	}

	if req.EntryDate != nil {
		date, err := time.Parse(entryDateFormat, *req.EntryDate)
		if err != nil {
			return patch, &ValidationError{Message: "entry_date must be formatted as YYYY-MM-DD"}
		}
		if date.After(time.Now()) {
			return patch, &ValidationError{Message: "entry date cannot be in the future"}
		}
		patch.EntryDate = &date
	}

	return patch, nil
}

func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	identity := mustIdentity(r.Context())

	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	fields, err := req.validate(true)
	if err != nil {
		h.respondError(w, err)
		return
	}

	// The owner is always the authenticated caller; it is set here, once,
	// and no update path can change it.
	expense := Expense{
		UserId:      identity.UserID,
		Description: *fields.Description,
		AmountCents: *fields.AmountCents,
		EntryDate:   *fields.EntryDate,
	}

	created, err := h.store.CreateExpense(r.Context(), expense)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.checkWeeklyLimit(r, identity.UserID)

	writeJSON(w, http.StatusCreated, created)
}

// checkWeeklyLimit compares this week's total against the user's limit and
// publishes a notification when it is close or over. Failures here are
// logged and never fail the request that triggered the check.
func (h *Handler) checkWeeklyLimit(r *http.Request, userID int64) {
	currentExpenses, err := h.store.GetWeeklyExpenses(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to calculate weekly expenses", "error", err)
		return
	}

	limit, err := h.store.GetUserWeeklyLimit(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to retrieve weekly limit", "error", err)
		return
	}
	if limit <= 0 {
		return
	}

	var message string
	if currentExpenses > limit {
		message = "You have exceeded your weekly expense limit!"
	} else if currentExpenses > int64(0.8*float64(limit)) {
		message = "You are nearing your weekly expense limit!"
	}

	if message == "" {
		return
	}

	notification := Notification{
		UserID:            userID,
		Message:           message,
		CurrentCentsSpent: currentExpenses,
		LimitCents:        limit,
	}
	if err := h.publisher.Publish(notification); err != nil {
		h.logger.Error("failed to publish notification", "error", err)
	}
}

func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	identity := mustIdentity(r.Context())

	expenseID, err := expenseIDFromURL(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	expense, err := h.store.GetExpenseByIDAndOwner(r.Context(), expenseID, identity.UserID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, expense)
}

type expensePage struct {
	Content       []Expense `json:"content"`
	Page          int       `json:"page"`
	Size          int       `json:"size"`
	TotalElements int64     `json:"total_elements"`
	TotalPages    int64     `json:"total_pages"`
}

func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	identity := mustIdentity(r.Context())

	page, err := parsePageRequest(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	expenses, total, err := h.store.ListExpenses(r.Context(), identity.UserID, page)
	if err != nil {
		h.respondError(w, err)
		return
	}

	totalPages := total / int64(page.Size)
	if total%int64(page.Size) != 0 {
		totalPages++
	}

	writeJSON(w, http.StatusOK, expensePage{
		Content:       expenses,
		Page:          page.Page,
		Size:          page.Size,
		TotalElements: total,
		TotalPages:    totalPages,
	})
}

func (h *Handler) PatchExpense(w http.ResponseWriter, r *http.Request) {
	identity := mustIdentity(r.Context())

	expenseID, err := expenseIDFromURL(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	patch, err := req.validate(false)
	if err != nil {
		h.respondError(w, err)
		return
	}

	updated, err := h.store.UpdateExpense(r.Context(), expenseID, identity.UserID, patch)
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	identity := mustIdentity(r.Context())

	expenseID, err := expenseIDFromURL(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	if err := h.store.DeleteExpense(r.Context(), expenseID, identity.UserID); err != nil {
		h.respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetUserWeeklyLimit(w http.ResponseWriter, r *http.Request) {
	identity := mustIdentity(r.Context())

	weeklyLimit, err := h.store.GetUserWeeklyLimit(r.Context(), identity.UserID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"weekly_limit_cents": weeklyLimit})
}

func (h *Handler) SetUserWeeklyLimit(w http.ResponseWriter, r *http.Request) {
	identity := mustIdentity(r.Context())

	var payload struct {
		NewLimitCents int64 `json:"new_limit_cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if payload.NewLimitCents < 0 {
		writeError(w, http.StatusBadRequest, "limit must not be negative")
		return
	}

	if err := h.store.SetUserWeeklyLimit(r.Context(), identity.UserID, payload.NewLimitCents); err != nil {
		h.respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func expenseIDFromURL(r *http.Request) (int64, error) {
	expenseID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || expenseID <= 0 {
		return 0, &ValidationError{Message: "invalid expense id"}
	}
	return expenseID, nil
}

// sortColumns whitelists the sortable fields and maps them to column names.
// The listing query interpolates the column, so nothing outside this map may
// ever reach it.
var sortColumns = map[string]string{
	"entryDate":  "entry_date",
	"entry_date": "entry_date",
	"amount":     "amount_cents",
	"createdAt":  "created_at",
	"created_at": "created_at",
}

const (
	defaultPageSize = 5
	maxPageSize     = 100
)

func parsePageRequest(r *http.Request) (PageRequest, error) {
	page := PageRequest{
		Page:      0,
		Size:      defaultPageSize,
		SortField: "entry_date",
		Desc:      true,
	}

	q := r.URL.Query()

	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return page, &ValidationError{Message: "page must be a non-negative integer"}
		}
		page.Page = n
	}

	if raw := q.Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPageSize {
			return page, &ValidationError{Message: "size must be between 1 and 100"}
		}
		page.Size = n
	}

	if raw := q.Get("sort"); raw != "" {
		column, ok := sortColumns[raw]
		if !ok {
			return page, &ValidationError{Message: "unsupported sort field"}
		}
		page.SortField = column
	}

	if raw := q.Get("direction"); raw != "" {
		switch strings.ToUpper(raw) {
		case "ASC":
			page.Desc = false
		case "DESC":
			page.Desc = true
		default:
			return page, &ValidationError{Message: "direction must be ASC or DESC"}
		}
	}

	return page, nil
}
