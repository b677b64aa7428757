package oidc

import (
	"context"
	"crypto/subtle"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// ExchangeVerifier 保存登入請求時產生的 state、nonce 與 PKCE verifier
type ExchangeVerifier struct {
	idTokenVerifier *oidc.IDTokenVerifier
	reqState        string
	reqNonce        string
	codeVerifier    string
}

func (v *ExchangeVerifier) VerifyIDToken(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
	const op = "VerifyIDToken"
	idToken, err := v.idTokenVerifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("[%s] err=%w", op, err)
	}
	return idToken, nil
}

// VerifyState 空字串一律視為不相符
func (v *ExchangeVerifier) VerifyState(state string) bool {
	return equalNonEmpty(state, v.reqState)
}

func (v *ExchangeVerifier) VerifyNonce(nonce string) bool {
	return equalNonEmpty(nonce, v.reqNonce)
}

func equalNonEmpty(a, b string) bool {
	return a != "" && b != "" && subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
