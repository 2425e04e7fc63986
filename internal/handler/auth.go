package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/autograde/internal/i18n"
)

const authRealm = `Basic realm="autograde"`

// requireOperator guards operator endpoints with HTTP Basic auth checked
// against the seeded bcrypt hash.
func (h *Handler) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			h.unauthorized(w, r)
			return
		}

		hash, err := h.store.OperatorPasswordHash(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if hash == "" {
			slog.Warn("operator login attempted but no password is configured")
			h.unauthorized(w, r)
			return
		}

		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(h.config.OperatorUser)) == 1
		passErr := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass))
		if !userOK || passErr != nil {
			slog.Warn("operator login failed", "user", user, "remote", r.RemoteAddr)
			h.unauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", authRealm)
	writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: appI18n.T(r.Context(), "ErrUnauthorized")})
}

// HashPassword returns the bcrypt hash stored for the operator.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
