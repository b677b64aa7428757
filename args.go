package main

import (
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"geargrid/adapters/database"
	"geargrid/api"
)

func ParseArgs() Args {
	// server config
	pflag.String("server-url", "0.0.0.0:8080", "")
	pflag.String("log-level", "info", "debug, info, warn or error")
	pflag.Bool("seats-required", false, "reject AI responses without a seat count")

	// oidc config
	pflag.String("oidc-issuer-url", "", "")
	pflag.String("oidc-client-id", "", "")
	pflag.String("oidc-client-secret", "", "")
	pflag.String("oidc-redirect-url", "", "")
	pflag.StringSlice("oidc-scopes", nil, "")

	// auth config
	pflag.String("auth-issuer", "geargrid", "")
	pflag.String("auth-jwt-secret", "", "")
	pflag.Duration("auth-token-ttl", api.DefaultTokenTTL, "")
	pflag.StringSlice("auth-admin-emails", nil, "")
	pflag.String("auth-redirect-url", "", "")

	// session config
	pflag.String("session-prefix", "geargrid:session:", "")
	pflag.Duration("session-ttl", api.DefaultSessionTTL, "")
	pflag.Bool("session-secure", true, "")
	pflag.String("session-same-site", "lax", "")

	// s3 config
	pflag.String("s3-endpoint", "", "")
	pflag.String("s3-bucket", "", "")
	pflag.String("s3-public-base-url", "", "")
	pflag.String("s3-access-key-id", "", "")
	pflag.String("s3-secret-access-key", "", "")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "public", "")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 15, "")
	pflag.String("redis-event-stream", "geargrid-listing-events", "")
	pflag.String("redis-cache-prefix", "geargrid:listing:", "")
	pflag.Duration("redis-cache-ttl", time.Minute, "")

	// gemini config
	pflag.String("gemini-api-key", "", "")
	pflag.String("gemini-model", "", "")

	// bind pflag to viper
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("GEARGRID")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// initial arguments
	return Args{
		ServerURL: viper.GetString("server-url"),
		LogLevel:  parseLogLevel(viper.GetString("log-level")),
		ServerConfig: api.ServerConfig{
			SeatsRequired: viper.GetBool("seats-required"),
			OIDC: api.OIDCConfig{
				IssuerURL:    viper.GetString("oidc-issuer-url"),
				ClientID:     viper.GetString("oidc-client-id"),
				ClientSecret: viper.GetString("oidc-client-secret"),
				RedirectURL:  viper.GetString("oidc-redirect-url"),
				Scopes:       viper.GetStringSlice("oidc-scopes"),
			},
			Auth: api.AuthConfig{
				Issuer:      viper.GetString("auth-issuer"),
				JWTSecret:   viper.GetString("auth-jwt-secret"),
				TokenTTL:    viper.GetDuration("auth-token-ttl"),
				AdminEmails: viper.GetStringSlice("auth-admin-emails"),
				RedirectURL: viper.GetString("auth-redirect-url"),
			},
			Session: api.SessionConfig{
				Prefix:   viper.GetString("session-prefix"),
				TTL:      viper.GetDuration("session-ttl"),
				Secure:   viper.GetBool("session-secure"),
				SameSite: viper.GetString("session-same-site"),
			},
			S3: api.S3Config{
				Endpoint:        viper.GetString("s3-endpoint"),
				Bucket:          viper.GetString("s3-bucket"),
				PublicBaseURL:   viper.GetString("s3-public-base-url"),
				AccessKeyID:     viper.GetString("s3-access-key-id"),
				SecretAccessKey: viper.GetString("s3-secret-access-key"),
			},
			DB: database.Config{
				User:     viper.GetString("db-user"),
				Password: viper.GetString("db-password"),
				Host:     viper.GetString("db-host"),
				Port:     viper.GetInt("db-port"),
				Database: viper.GetString("db-database"),
				Schema:   viper.GetString("db-schema"),
			},
			Redis: api.RedisConfig{
				Addr:        viper.GetString("redis-addr"),
				Password:    viper.GetString("redis-password"),
				DB:          viper.GetInt("redis-db"),
				EventStream: viper.GetString("redis-event-stream"),
				CachePrefix: viper.GetString("redis-cache-prefix"),
				CacheTTL:    viper.GetDuration("redis-cache-ttl"),
			},
			Gemini: api.GeminiConfig{
				APIKey: viper.GetString("gemini-api-key"),
				Model:  viper.GetString("gemini-model"),
			},
		},
	}
}

type Args struct {
	ServerURL    string
	LogLevel     slog.Level
	ServerConfig api.ServerConfig
}

func parseLogLevel(value string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Validate 只檢查啟動必需的設定，OIDC 與 Gemini 可以缺少
func (args Args) Validate() bool {
	config := args.ServerConfig
	return args.ServerURL != "" &&
		config.Auth.JWTSecret != "" &&
		config.S3.Bucket != "" &&
		config.DB.Host != "" &&
		config.Redis.Addr != ""
}
