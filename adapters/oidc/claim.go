// 參考https://auth0.com/docs/get-started/apis/scopes/openid-connect-scopes
package oidc

import (
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

type OpenID struct {
	Sub string `json:"sub"`
	Iss string `json:"iss"`
	Exp int64  `json:"exp"`
	Iat int64  `json:"iat"`
}

type Email struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

type Profile struct {
	Name              string `json:"name"`
	GivenName         string `json:"given_name"`
	FamilyName        string `json:"family_name"`
	Nickname          string `json:"nickname"`
	PreferredUsername string `json:"preferred_username"`
}

type IDToken struct {
	OpenID
	Email
	Profile

	internal *oidc.IDToken
}

func (i *IDToken) Claims(v any) error {
	return i.internal.Claims(v)
}

// DisplayName 依序使用 name、given/family name、nickname、preferred_username、email
func (i *IDToken) DisplayName() string {
	if name := strings.TrimSpace(i.Name); name != "" {
		return name
	}
	if name := strings.TrimSpace(i.GivenName + " " + i.FamilyName); name != "" {
		return name
	}
	for _, candidate := range []string{i.Nickname, i.PreferredUsername, i.Email.Email} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return candidate
		}
	}
	return i.Sub
}
