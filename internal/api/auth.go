package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rohitkal/rubi/internal/storage"
)

// sessionCookie is the HttpOnly cookie carrying the caller's codeword.
const sessionCookie = "rubi_sid"

type callerKey struct{}

// UserStore resolves codeword credentials.
type UserStore interface {
	GetUser(codeword string) (storage.User, error)
}

// CodewordAuth authenticates requests by codeword, read from the session
// cookie or an Authorization bearer header, and stores the resolved user in
// the request context.
func CodewordAuth(users UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			codeword := credentialFrom(r)
			if codeword == "" {
				httpError(w, http.StatusUnauthorized, "authentication_error", "missing codeword")
				return
			}

			user, err := users.GetUser(codeword)
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid codeword")
				return
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "resolving credential: %v", err)
				return
			}

			ctx := context.WithValue(r.Context(), callerKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func credentialFrom(r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	const prefix = "Bearer "
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, prefix) {
		return auth[len(prefix):]
	}
	return ""
}

// callerFrom returns the authenticated user placed by CodewordAuth.
func callerFrom(r *http.Request) storage.User {
	user, _ := r.Context().Value(callerKey{}).(storage.User)
	return user
}

type loginRequest struct {
	Codeword string `json:"codeword"`
}

// handleLogin validates a codeword and sets the session cookie.
func handleLogin(users UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Codeword == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "codeword is required")
			return
		}

		if _, err := users.GetUser(req.Codeword); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusUnauthorized, "authentication_error", "invalid codeword")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "resolving credential: %v", err)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    req.Codeword,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

func handleWhoami(w http.ResponseWriter, r *http.Request) {
	user := callerFrom(r)
	writeJSON(w, map[string]string{
		"user":       user.Name,
		"created_at": user.CreatedAt.Format(time.RFC3339),
	})
}
