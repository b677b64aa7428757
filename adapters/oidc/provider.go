package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var (
	ErrStateMismatch  = errors.New("state mismatch")
	ErrNonceMismatch  = errors.New("nonce mismatch")
	ErrMissingIDToken = errors.New("no id_token field in oauth2 token")
)

// DefaultScopes 是登入時請求的 scope
var DefaultScopes = []string{oidc.ScopeOpenID, "profile", "email"}

type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

type Provider struct {
	*oidc.Provider

	oauth2Config oauth2.Config
}

func NewProvider(ctx context.Context, config Config) (*Provider, error) {
	const op = "NewProvider"
	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create provider, err=%w", op, err)
	}
	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &Provider{
		Provider: provider,
		oauth2Config: oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  config.RedirectURL,
			Scopes:       scopes,
		},
	}, nil
}

// AuthURL 產生授權網址；codeVerifier 為 PKCE verifier，需保存到回呼時使用
func (p *Provider) AuthURL(state, nonce, codeVerifier string) string {
	return p.oauth2Config.AuthCodeURL(state, oidc.Nonce(nonce), oauth2.S256ChallengeOption(codeVerifier))
}

// Exchange 以授權碼換取 token，並驗證 state、ID token 簽章與 nonce
func (p *Provider) Exchange(ctx context.Context, verifier *ExchangeVerifier, code, state string) (*ExchangeToken, error) {
	const op = "Exchange"
	if !verifier.VerifyState(state) {
		return nil, ErrStateMismatch
	}
	oauth2Token, err := p.oauth2Config.Exchange(ctx, code, oauth2.VerifierOption(verifier.codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("[%s] Failed to exchange token, err=%w", op, err)
	}
	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("[%s] %w", op, ErrMissingIDToken)
	}
	idToken, err := verifier.VerifyIDToken(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("[%s] Failed to verify ID Token, err=%w", op, err)
	}
	if !verifier.VerifyNonce(idToken.Nonce) {
		return nil, ErrNonceMismatch
	}
	token := &ExchangeToken{
		OAuth2Token: oauth2Token,
		IDToken:     IDToken{internal: idToken},
	}
	if err := idToken.Claims(&token.IDToken); err != nil {
		return nil, fmt.Errorf("[%s] Failed to parse ID Token claims, err=%w", op, err)
	}
	return token, nil
}

func (p *Provider) NewExchangeVerifier(reqState, reqNonce, codeVerifier string) *ExchangeVerifier {
	return &ExchangeVerifier{
		idTokenVerifier: p.Verifier(&oidc.Config{ClientID: p.oauth2Config.ClientID}),
		reqState:        reqState,
		reqNonce:        reqNonce,
		codeVerifier:    codeVerifier,
	}
}

type ExchangeToken struct {
	OAuth2Token *oauth2.Token
	IDToken     IDToken
}
