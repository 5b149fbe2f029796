// auth.go — JWT-аутентификация мутирующих операций операторского API.
// Подпись проверяется по JWKS IdP (keyfunc + jwkset), роли берутся из
// claim, путь к которому задан через точку (realm_access.roles).
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/campus-directory/internal/api/errors"
)

type contextKey string

// ContextKeyClaims — claims аутентифицированного оператора в контексте запроса.
const ContextKeyClaims contextKey = "jwt_claims"

// AuthClaims — извлечённые claims оператора.
type AuthClaims struct {
	Subject           string
	PreferredUsername string
	Roles             []string
}

// HasAnyRole проверяет наличие хотя бы одной из ролей.
func (c *AuthClaims) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(c.Roles, r) {
			return true
		}
	}
	return false
}

// AuthOptions — параметры проверки токена.
type AuthOptions struct {
	// Issuer — ожидаемый iss ("" — не проверяется)
	Issuer string
	// RolesClaim — путь к массиву ролей, сегменты через точку
	RolesClaim string
	// AdminRoles — роли, допускающие мутирующие операции
	AdminRoles []string
	Leeway     time.Duration
}

// JWTAuth — middleware JWT-аутентификации.
type JWTAuth struct {
	jwks   keyfunc.Keyfunc
	opts   AuthOptions
	logger *slog.Logger
}

// NewJWTAuth создаёт middleware с JWKS, обновляемым в фоне.
// Старт не блокируется недоступностью IdP.
func NewJWTAuth(jwksURL string, opts AuthOptions, logger *slog.Logger) (*JWTAuth, error) {
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: 10 * time.Second},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           time.Hour,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}
	return NewJWTAuthWithKeyfunc(k, opts, logger), nil
}

// NewJWTAuthWithKeyfunc создаёт middleware с готовым keyfunc (статический JWKS в тестах).
func NewJWTAuthWithKeyfunc(k keyfunc.Keyfunc, opts AuthOptions, logger *slog.Logger) *JWTAuth {
	if opts.RolesClaim == "" {
		opts.RolesClaim = "realm_access.roles"
	}
	return &JWTAuth{
		jwks:   k,
		opts:   opts,
		logger: logger.With(slog.String("component", "jwt_auth")),
	}
}

// Middleware проверяет Bearer token и помещает AuthClaims в контекст.
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
			if tokenString == "" {
				apierrors.Unauthorized(w, "Пустой Bearer token")
				return
			}

			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.opts.Leeway),
			}
			if j.opts.Issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.opts.Issuer))
			}

			raw := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenString, raw, j.jwks.KeyfuncCtx(r.Context()), parserOpts...)
			if err != nil || !token.Valid {
				j.logger.Debug("JWT валидация не пройдена",
					slog.Any("error", err),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			subject, err := raw.GetSubject()
			if err != nil || subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			claims := &AuthClaims{
				Subject: subject,
				Roles:   claimStrings(raw, j.opts.RolesClaim),
			}
			if name, ok := raw["preferred_username"].(string); ok {
				claims.PreferredUsername = name
			}

			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin пропускает только операторов с одной из ролей AdminRoles.
// Должен использоваться после Middleware().
func (j *JWTAuth) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}
			if !claims.HasAnyRole(j.opts.AdminRoles...) {
				apierrors.Forbidden(w, fmt.Sprintf("Недостаточно прав: требуется роль %s", strings.Join(j.opts.AdminRoles, " или ")))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext извлекает AuthClaims из контекста или возвращает nil.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// SubjectFromContext возвращает sub оператора или "".
func SubjectFromContext(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.Subject
	}
	return ""
}

// claimStrings извлекает массив строк по пути вида "realm_access.roles".
func claimStrings(claims jwt.MapClaims, path string) []string {
	var cur any = map[string]any(claims)
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[seg]
	}

	items, ok := cur.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
