package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	DefaultSessionKeyForContext = "geargrid-default-session-context"
)

var ErrSessionNotFound = fmt.Errorf("session not found")

// MiddlewareOptions 包含所有 session middleware 的設定選項
type MiddlewareOptions struct {
	sessionKeyForCookie  string        // session 在 cookie 中的 key
	sessionKeyForContext string        // session 在 context 中的 key
	cookieMaxAge         time.Duration // cookie 的過期時間
	cookiePath           string
	cookieDomain         string
	cookieSecure         bool
	cookieHTTPOnly       bool
	cookieSameSite       http.SameSite
	logger               *slog.Logger
}

// MiddlewareOption 定義設定選項的函數類型
type MiddlewareOption func(*MiddlewareOptions)

func WithSessionKeyForCookie(key string) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.sessionKeyForCookie = key
	}
}

func WithSessionKeyForContext(key string) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.sessionKeyForContext = key
	}
}

// WithCookieMaxAge 設定 cookie 的過期時間
func WithCookieMaxAge(maxAge time.Duration) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.cookieMaxAge = maxAge
	}
}

func WithCookiePath(path string) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.cookiePath = path
	}
}

func WithCookieDomain(domain string) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.cookieDomain = domain
	}
}

// WithCookieSecure 設定是否只在 HTTPS 連線中傳送 cookie
func WithCookieSecure(secure bool) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.cookieSecure = secure
	}
}

func WithCookieHTTPOnly(httpOnly bool) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.cookieHTTPOnly = httpOnly
	}
}

// WithCookieSameSite 設定 cookie 的 SameSite 屬性，可用值為 lax、strict、none
func WithCookieSameSite(sameSite string) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.cookieSameSite = ParseSameSite(sameSite)
	}
}

func WithLogger(logger *slog.Logger) MiddlewareOption {
	return func(options *MiddlewareOptions) {
		options.logger = logger
	}
}

func ParseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	}
	return http.SameSiteDefaultMode
}

// GinMiddleware 建立 gin 的 session middleware；
// 處理完請求後若 session 被修改過會自動寫回儲存層。
func GinMiddleware(store IStore, opts ...MiddlewareOption) gin.HandlerFunc {
	options := MiddlewareOptions{
		sessionKeyForCookie:  "session",
		sessionKeyForContext: DefaultSessionKeyForContext,
		cookieMaxAge:         24 * time.Hour,
		cookiePath:           "/",
		cookieSecure:         true,
		cookieHTTPOnly:       true,
		cookieSameSite:       http.SameSiteLaxMode,
		logger:               slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	logger := options.logger.With(slog.String("caller", "SessionMiddleware"))

	return func(c *gin.Context) {
		sessionID, err := c.Cookie(options.sessionKeyForCookie)
		if err != nil || sessionID == "" {
			sessionID = uuid.NewString()
		}

		session := NewSession(c.Request.Context(), sessionID, store)
		c.Set(options.sessionKeyForContext, session)

		// cookie 必須在回應寫出前設定
		c.SetSameSite(options.cookieSameSite)
		c.SetCookie(
			options.sessionKeyForCookie,
			sessionID,
			int(options.cookieMaxAge/time.Second),
			options.cookiePath,
			options.cookieDomain,
			options.cookieSecure,
			options.cookieHTTPOnly,
		)

		c.Next()

		if session.Dirty() {
			if err := session.Save(); err != nil {
				logger.Error("Fail to save session", slog.Any("error", err))
			}
		}
	}
}

// GetSession 從 context 中取得 session 並載入資料
func GetSession(ctx context.Context, opts ...MiddlewareOption) (ISession, error) {
	const op = "session.GetSession"
	options := MiddlewareOptions{
		sessionKeyForContext: DefaultSessionKeyForContext,
	}
	for _, opt := range opts {
		opt(&options)
	}
	v := ctx.Value(options.sessionKeyForContext)
	if v == nil {
		return nil, ErrSessionNotFound
	}
	session, ok := v.(ISession)
	if !ok {
		return nil, fmt.Errorf("%s: invalid session type in context", op)
	}
	if err := session.Load(); err != nil {
		return nil, fmt.Errorf("%s: failed to load session: %w", op, err)
	}
	return session, nil
}
