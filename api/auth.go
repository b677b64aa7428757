package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"geargrid/listing"
	"geargrid/models"
)

const (
	AccessTokenCookie = "access_token"
	DefaultTokenTTL   = 3 * time.Hour
)

var ErrInvalidToken = errors.New("token is invalid")

type JWT struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// TokenIssuer 簽發與驗證本服務的 HS256 access token
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, &listing.ConfigurationError{Setting: "auth-jwt-secret"}
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

func (t *TokenIssuer) Issue(user *models.User) (string, error) {
	const op = "Issue"
	now := t.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, JWT{
		Name: user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    t.issuer,
			Subject:   user.ID.String(),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to sign JWT, err=%w", op, err)
	}
	return signed, nil
}

func (t *TokenIssuer) Parse(tokenString string) (*JWT, error) {
	const op = "ParseJWT"
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &JWT{}, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, ok := token.Claims.(*JWT)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	return claims, nil
}

func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

type claimsKey struct{}

func withClaims(ctx context.Context, claims *JWT) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

type actorKey struct{}

// withActor 保存已驗證的操作者，同一個請求內不再重新查詢
func withActor(ctx context.Context, actor listing.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func actorFrom(ctx context.Context) (listing.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(listing.Actor)
	return actor, ok
}

func claimsFrom(ctx context.Context) (*JWT, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*JWT)
	return claims, ok
}

// bearerToken 優先使用 Authorization header，其次是 access_token cookie
func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil {
		return cookie
	}
	return ""
}

// AuthMiddleware 解析 access token 並放進 request context；
// 沒有或無效的 token 不會中斷請求，由需要身份的操作自行回傳 401。
func (impl *ServerImpl) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.Next()
			return
		}
		claims, err := impl.tokens.Parse(tokenString)
		if err != nil {
			impl.logger.Debug("Ignore invalid access token", slog.Any("error", err))
			c.Next()
			return
		}
		c.Request = c.Request.WithContext(withClaims(c.Request.Context(), claims))
		c.Next()
	}
}

// RequireUser 在解析路徑參數與請求內容之前確認已登入
func (impl *ServerImpl) RequireUser() gin.HandlerFunc {
	return impl.requireRole("", false)
}

// RequireAdmin 在解析路徑參數與請求內容之前確認為管理員
func (impl *ServerImpl) RequireAdmin() gin.HandlerFunc {
	return impl.requireRole("access admin routes", true)
}

func (impl *ServerImpl) requireRole(action string, admin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		actor, err := impl.auth.Authenticate(ctx)
		if err == nil && admin && !actor.IsAdmin() {
			err = &listing.ForbiddenError{Action: action}
		}
		if err != nil {
			impl.respondError(c, "RequireRole", err)
			c.Abort()
			return
		}
		c.Request = c.Request.WithContext(withActor(ctx, actor))
		c.Next()
	}
}

type UserStore interface {
	UpsertUser(ctx context.Context, user *models.User) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TokenAuthenticator 由 request context 中的 token 解析操作者，
// 角色每次都從資料庫讀取，權限變更不需要重新簽發 token。
type TokenAuthenticator struct {
	users UserStore
}

var _ listing.Authenticator = (*TokenAuthenticator)(nil)

func NewTokenAuthenticator(users UserStore) *TokenAuthenticator {
	return &TokenAuthenticator{users: users}
}

func (a *TokenAuthenticator) Authenticate(ctx context.Context) (listing.Actor, error) {
	if actor, ok := actorFrom(ctx); ok {
		return actor, nil
	}
	claims, ok := claimsFrom(ctx)
	if !ok {
		return listing.Actor{}, &listing.UnauthorizedError{Reason: "missing access token"}
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return listing.Actor{}, &listing.UnauthorizedError{Reason: "malformed token subject"}
	}
	user, err := a.users.GetUser(ctx, userID)
	if errors.Is(err, listing.ErrNotFound) {
		return listing.Actor{}, &listing.UnauthorizedError{Reason: "unknown user"}
	}
	if err != nil {
		return listing.Actor{}, fmt.Errorf("[Authenticate] Fail to load user, err=%w", err)
	}
	return listing.Actor{ID: user.ID, Name: user.Name, Role: user.Role}, nil
}
