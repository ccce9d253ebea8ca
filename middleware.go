package main

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Identity is the per-request authenticated identity resolved from a bearer
// token. It lives only in the request context and is gone when the request
// completes.
type Identity struct {
	UserID int64
	Email  string
}

// identityKey is an unexported context key type to avoid collisions.
type identityKey struct{}

func identityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// mustIdentity returns the identity attached to ctx. Handlers registered
// behind requireUser always have one; reaching the panic means a protected
// handler was wired onto a public route by mistake.
func mustIdentity(ctx context.Context) Identity {
	id, ok := identityFrom(ctx)
	if !ok {
		panic("no authenticated identity in request context")
	}
	return id
}

// authenticate resolves the Authorization header into an Identity, exactly
// once per request, before any route handler runs. A missing or invalid
// token leaves the request anonymous instead of failing it: deciding whether
// anonymous is acceptable belongs to requireUser, so public routes keep
// working without a header.
func authenticate(codec *TokenCodec, store Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := codec.Validate(token, time.Now())
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			// The token only proves the id existed when it was minted. The
			// user may have been deleted since, so re-check the store.
			user, err := store.GetUserByID(r.Context(), userID)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey{}, Identity{UserID: user.Id, Email: user.Email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requireUser rejects requests that resolved no identity. Every route hangs
// behind it except the explicitly public ones (register, login, healthz), so
// a newly added route is protected unless someone moves it out on purpose.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := identityFrom(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
