// auth.go — JWT middleware для API статистики.
// Токены HS256 выпускает бот при запросе пользователем ссылки на статистику:
// sub — Telegram ID пользователя, role — "user" или "admin".
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/Sihagjaat/VJ-Video-Player/internal/api/errors"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyClaims — извлечённые claims в контексте запроса.
	ContextKeyClaims contextKey = "jwt_claims"
)

// Роли.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// AuthClaims — извлечённые claims JWT, помещаются в контекст запроса.
type AuthClaims struct {
	// Subject — sub из JWT (Telegram ID пользователя).
	Subject string
	// Role — роль субъекта; пустая трактуется как user.
	Role string
}

// IsAdmin проверяет роль администратора.
func (c *AuthClaims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// tokenClaims — raw claims JWT для парсинга.
type tokenClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// JWTAuth — middleware для JWT-аутентификации с общим секретом.
type JWTAuth struct {
	secret    []byte
	issuer    string
	jwtLeeway time.Duration
	logger    *slog.Logger
}

// NewJWTAuth создаёт JWT middleware.
// issuer — ожидаемый issuer JWT (может быть пустым — issuer не проверяется).
// jwtLeeway — допустимое отклонение времени при проверке JWT.
func NewJWTAuth(secret, issuer string, jwtLeeway time.Duration, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		secret:    []byte(secret),
		issuer:    issuer,
		jwtLeeway: jwtLeeway,
		logger:    logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Извлекает Bearer token, проверяет подпись HS256 и срок действия,
// помещает AuthClaims в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}
			tokenString = strings.TrimSpace(tokenString)
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			rawClaims := &tokenClaims{}
			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.jwtLeeway),
			}
			if j.issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
			}

			token, err := jwt.ParseWithClaims(tokenString, rawClaims, j.keyFunc, parserOpts...)
			if err != nil || !token.Valid {
				j.logger.Debug("JWT валидация не пройдена",
					slog.Any("error", err),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			subject, err := rawClaims.GetSubject()
			if err != nil || subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			role := rawClaims.Role
			if role == "" {
				role = RoleUser
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, &AuthClaims{Subject: subject, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (j *JWTAuth) keyFunc(_ *jwt.Token) (any, error) {
	return j.secret, nil
}

// --- RBAC middleware helpers ---

// RequireSelfOrAdmin пропускает запрос, если sub совпадает с URL-параметром
// param или субъект — администратор.
// Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireSelfOrAdmin(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}

			if claims.IsAdmin() || claims.Subject == chi.URLParam(r, param) {
				next.ServeHTTP(w, r)
				return
			}
			apierrors.Forbidden(w, "Недостаточно прав: доступна только собственная статистика")
		})
	}
}

// --- Context helpers ---

// ClaimsFromContext извлекает AuthClaims из контекста запроса.
// Возвращает nil, если claims не найдены.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}
