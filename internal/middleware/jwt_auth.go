package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"resetd/internal/models"
)

type subjectKey struct{}

type subject struct {
	id    string
	email string
}

// accessClaims mirrors the claims the login handler signs.
type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// JWTAuth admits requests carrying a valid HS256 bearer token and stores the
// token subject in the request context. Failures get a JSON 401.
func JWTAuth(secret string) func(http.Handler) http.Handler {
	keyFunc := func(*jwt.Token) (interface{}, error) { return []byte(secret), nil }
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30*time.Second),
		jwt.WithExpirationRequired(),
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, msg := bearerToken(r)
			if msg != "" {
				writeUnauthorized(w, msg)
				return
			}

			var claims accessClaims
			token, err := parser.ParseWithClaims(raw, &claims, keyFunc)
			if err != nil || !token.Valid {
				writeUnauthorized(w, "Invalid or expired token.")
				return
			}
			if claims.Subject == "" {
				writeUnauthorized(w, "Token has no subject.")
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey{}, subject{id: claims.Subject, email: claims.Email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (token, problem string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "Missing Authorization header."
	}
	scheme, token, found := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", "Authorization header must use the Bearer scheme."
	}
	return token, ""
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="resetd"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: msg})
}

// Subject returns the account id and email placed in ctx by JWTAuth.
func Subject(ctx context.Context) (id, email string, ok bool) {
	s, ok := ctx.Value(subjectKey{}).(subject)
	return s.id, s.email, ok && s.id != ""
}
