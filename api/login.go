package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"geargrid/adapters/oidc"
	"geargrid/adapters/session"
	"geargrid/listing"
	"geargrid/models"
)

const (
	sessionKeyState        = "oidc_state"
	sessionKeyNonce        = "oidc_nonce"
	sessionKeyCodeVerifier = "oidc_code_verifier"
)

// Obtain authentication url
// (GET /auth/login)
func (impl *ServerImpl) login(c *gin.Context) {
	const op = "Login"
	if impl.provider == nil {
		impl.respondError(c, op, &listing.ConfigurationError{Setting: "oidc-issuer-url"})
		return
	}
	sess, err := session.GetSession(c)
	if err != nil {
		impl.respondError(c, op, fmt.Errorf("[%s] Fail to get session, err=%w", op, err))
		return
	}
	state, err := generateID("st")
	if err != nil {
		impl.respondError(c, op, fmt.Errorf("[%s] Unable to generate state, err=%w", op, err))
		return
	}
	nonce, err := generateID("n")
	if err != nil {
		impl.respondError(c, op, fmt.Errorf("[%s] Unable to generate nonce, err=%w", op, err))
		return
	}
	codeVerifier := oauth2.GenerateVerifier()
	sess.Set(sessionKeyState, state)
	sess.Set(sessionKeyNonce, nonce)
	sess.Set(sessionKeyCodeVerifier, codeVerifier)
	// 導向前先寫回，避免回呼早於 session 儲存
	if err := sess.Save(); err != nil {
		impl.respondError(c, op, fmt.Errorf("[%s] Fail to save session, err=%w", op, err))
		return
	}
	c.Redirect(http.StatusFound, impl.provider.AuthURL(state, nonce, codeVerifier))
}

// Exchange authorization code
// (GET /auth/callback)
func (impl *ServerImpl) callback(c *gin.Context) {
	const op = "Callback"
	ctx := c.Request.Context()
	if impl.provider == nil {
		impl.respondError(c, op, &listing.ConfigurationError{Setting: "oidc-issuer-url"})
		return
	}
	if reason := c.Query("error"); reason != "" {
		impl.respondError(c, op, &listing.UnauthorizedError{Reason: reason})
		return
	}
	sess, err := session.GetSession(c)
	if err != nil {
		impl.respondError(c, op, fmt.Errorf("[%s] Fail to get session, err=%w", op, err))
		return
	}
	// state、nonce 只能使用一次
	verifier := impl.provider.NewExchangeVerifier(
		sess.Pop(sessionKeyState),
		sess.Pop(sessionKeyNonce),
		sess.Pop(sessionKeyCodeVerifier),
	)
	token, err := impl.provider.Exchange(ctx, verifier, c.Query("code"), c.Query("state"))
	if errors.Is(err, oidc.ErrStateMismatch) || errors.Is(err, oidc.ErrNonceMismatch) {
		badRequest(c, err.Error())
		return
	}
	if err != nil {
		impl.respondError(c, op, &listing.UpstreamError{Service: "oidc", Err: err})
		return
	}
	// 如果使用者不存在，會建立新的使用者
	role := models.RoleUser
	if token.IDToken.EmailVerified && impl.isAdminEmail(token.IDToken.Email.Email) {
		role = models.RoleAdmin
	}
	user, err := impl.users.UpsertUser(ctx, &models.User{
		Subject: token.IDToken.Sub,
		Email:   token.IDToken.Email.Email,
		Name:    token.IDToken.DisplayName(),
		Role:    role,
	})
	if err != nil {
		impl.respondError(c, op, fmt.Errorf("[%s] Fail to upsert user, err=%w", op, err))
		return
	}
	signed, err := impl.tokens.Issue(user)
	if err != nil {
		impl.respondError(c, op, fmt.Errorf("[%s] Fail to issue token, err=%w", op, err))
		return
	}
	impl.setAccessToken(c, signed, int(impl.tokens.TTL().Seconds()))
	if impl.config.Auth.RedirectURL != "" {
		c.Redirect(http.StatusFound, impl.config.Auth.RedirectURL)
		return
	}
	respondData(c, http.StatusOK, user)
}

// Clear the access token
// (GET /auth/logout)
func (impl *ServerImpl) logout(c *gin.Context) {
	// 只清除 cookie，不撤銷 token
	impl.setAccessToken(c, "", -1)
	respondData(c, http.StatusOK, nil)
}

func (impl *ServerImpl) setAccessToken(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessTokenCookie, value, maxAge, "/", "", impl.config.Session.Secure, true)
}

func (impl *ServerImpl) isAdminEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	for _, admin := range impl.config.Auth.AdminEmails {
		if strings.EqualFold(strings.TrimSpace(admin), email) {
			return true
		}
	}
	return false
}
