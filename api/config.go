package api

import (
	"time"

	"geargrid/adapters/database"
)

type ServerConfig struct {
	OIDC    OIDCConfig
	S3      S3Config
	DB      database.Config
	Redis   RedisConfig
	Gemini  GeminiConfig
	Auth    AuthConfig
	Session SessionConfig

	// SeatsRequired 要求 AI 回應必須包含座位數
	SeatsRequired bool
}

type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	Bucket          string
	PublicBaseURL   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	EventStream string
	CachePrefix string
	CacheTTL    time.Duration
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type AuthConfig struct {
	Issuer    string
	JWTSecret string
	TokenTTL  time.Duration
	// AdminEmails 在首次登入時取得管理員角色
	AdminEmails []string
	// RedirectURL 登入完成後導向的前端頁面
	RedirectURL string
}

type SessionConfig struct {
	Prefix   string
	TTL      time.Duration
	Secure   bool
	SameSite string
}

// DefaultSessionTTL 是登入流程中 state/nonce 的保存時間
const DefaultSessionTTL = 10 * time.Minute

func (c SessionConfig) MaxAge() time.Duration {
	if c.TTL > 0 {
		return c.TTL
	}
	return DefaultSessionTTL
}
