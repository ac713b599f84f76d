package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-0123456789"

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// signToken подписывает токен с указанными claims.
func signToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("ошибка подписи токена: %v", err)
	}
	return s
}

func validClaims(sub, role string) jwt.MapClaims {
	c := jwt.MapClaims{
		"sub": sub,
		"iss": "vjplayer-bot",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if role != "" {
		c["role"] = role
	}
	return c
}

// newProtectedRouter собирает роутер с JWT и проверкой владельца.
func newProtectedRouter() http.Handler {
	auth := NewJWTAuth(testSecret, "vjplayer-bot", 0, testLogger())
	r := chi.NewRouter()
	r.With(auth.Middleware(), RequireSelfOrAdmin("user_id")).
		Get("/api/v1/users/{user_id}/stats", func(w http.ResponseWriter, r *http.Request) {
			if ClaimsFromContext(r.Context()) == nil {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
	return r
}

// TestJWTAuth проверяет аутентификацию и авторизацию.
func TestJWTAuth(t *testing.T) {
	hs := jwt.SigningMethodHS256
	expired := validClaims("42", "")
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	noExp := validClaims("42", "")
	delete(noExp, "exp")
	wrongIssuer := validClaims("42", "")
	wrongIssuer["iss"] = "someone-else"

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"свой пользователь", "/api/v1/users/42/stats", "Bearer " + signToken(t, hs, []byte(testSecret), validClaims("42", "")), http.StatusOK},
		{"чужой пользователь", "/api/v1/users/43/stats", "Bearer " + signToken(t, hs, []byte(testSecret), validClaims("42", "")), http.StatusForbidden},
		{"администратор", "/api/v1/users/43/stats", "Bearer " + signToken(t, hs, []byte(testSecret), validClaims("1", RoleAdmin)), http.StatusOK},
		{"без заголовка", "/api/v1/users/42/stats", "", http.StatusUnauthorized},
		{"не Bearer", "/api/v1/users/42/stats", "Basic abc", http.StatusUnauthorized},
		{"пустой токен", "/api/v1/users/42/stats", "Bearer ", http.StatusUnauthorized},
		{"чужой секрет", "/api/v1/users/42/stats", "Bearer " + signToken(t, hs, []byte("other"), validClaims("42", "")), http.StatusUnauthorized},
		{"просроченный", "/api/v1/users/42/stats", "Bearer " + signToken(t, hs, []byte(testSecret), expired), http.StatusUnauthorized},
		{"без exp", "/api/v1/users/42/stats", "Bearer " + signToken(t, hs, []byte(testSecret), noExp), http.StatusUnauthorized},
		{"чужой issuer", "/api/v1/users/42/stats", "Bearer " + signToken(t, hs, []byte(testSecret), wrongIssuer), http.StatusUnauthorized},
		{"алгоритм HS512", "/api/v1/users/42/stats", "Bearer " + signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims("42", "")), http.StatusUnauthorized},
	}

	router := newProtectedRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, ожидался %d (тело: %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}
