package handlers

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/username/portfoliodesk/backend/src/logger"
)

const csrfCookieName = "_csrf"

// GetCSRFToken issues a double-submit CSRF token: the same value goes into a
// cookie and the response body, and mutating requests must echo it back in
// the X-CSRF-Token header.
func GetCSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := generateRandomToken()
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to generate CSRF token", "error", err)
		http.Error(w, "Failed to generate CSRF token", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		HttpOnly: true,
		Secure:   false, // set to true behind HTTPS
		MaxAge:   3600,
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-CSRF-Token", token)
	json.NewEncoder(w).Encode(map[string]string{
		"csrfToken": token,
	})
}

func generateRandomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// CSRFMiddleware compares the token from the X-CSRF-Token header with the
// one from the cookie for every non-safe method.
func CSRFMiddleware(authKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			headerToken := r.Header.Get("X-CSRF-Token")
			cookie, err := r.Cookie(csrfCookieName)
			if headerToken != "" && err == nil && tokensEqual(authKey, headerToken, cookie.Value) {
				next.ServeHTTP(w, r)
				return
			}

			logger.FromContext(r.Context()).Warn("CSRF token validation failed",
				"method", r.Method, "path", r.URL.Path, "origin", r.Header.Get("Origin"))
			http.Error(w, "CSRF token validation failed", http.StatusForbidden)
		})
	}
}

// tokensEqual compares HMACs of the two tokens rather than the raw values,
// keeping the comparison constant-time.
func tokensEqual(authKey []byte, a, b string) bool {
	macA := hmac.New(sha256.New, authKey)
	macA.Write([]byte(a))
	macB := hmac.New(sha256.New, authKey)
	macB.Write([]byte(b))
	return hmac.Equal(macA.Sum(nil), macB.Sum(nil))
}
