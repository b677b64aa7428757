package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"geargrid/adapters/database"
	"geargrid/adapters/gemini"
	"geargrid/adapters/oidc"
	redisAdapter "geargrid/adapters/redis"
	internalS3 "geargrid/adapters/s3"
	"geargrid/adapters/session"
	"geargrid/adapters/sse"
	"geargrid/listing"
)

// components 是組裝 ServerImpl 所需的外部依賴
type components struct {
	users     UserStore
	cars      listing.CarRepository
	bookings  listing.BookingRepository
	store     listing.ObjectStore
	generator listing.Generator
	cache     listing.IndexCache
	publisher listing.EventPublisher
	sessions  session.IStore
	events    sse.IConnectionManager[listing.Event]
	provider  *oidc.Provider
	tokens    *TokenIssuer
}

type ServerImpl struct {
	listings     *listing.Service
	reservations *listing.Reservations
	classifier   *listing.Classifier
	auth         listing.Authenticator
	users        UserStore
	tokens       *TokenIssuer
	provider     *oidc.Provider
	sessions     session.IStore
	events       sse.IConnectionManager[listing.Event]

	db          *gorm.DB
	redisClient *redis.Client
	producer    *redisAdapter.Producer[listing.Event]
	reader      *redisAdapter.StreamReader[listing.Event]
	logger      *slog.Logger

	config ServerConfig
}

func NewServer(ctx context.Context, config ServerConfig) (*ServerImpl, error) {
	const op = "NewServer"
	logger := slog.Default()

	// 初始化OIDC提供者
	var provider *oidc.Provider
	if config.OIDC.IssuerURL != "" {
		p, err := oidc.NewProvider(ctx, oidc.Config{
			IssuerURL:    config.OIDC.IssuerURL,
			ClientID:     config.OIDC.ClientID,
			ClientSecret: config.OIDC.ClientSecret,
			RedirectURL:  config.OIDC.RedirectURL,
			Scopes:       config.OIDC.Scopes,
		})
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to initial OIDC provider, err=%w", op, err)
		}
		provider = p
	} else {
		logger.Warn("OIDC issuer is not configured, login is disabled")
	}

	tokens, err := NewTokenIssuer(config.Auth.JWTSecret, config.Auth.Issuer, config.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create token issuer, err=%w", op, err)
	}

	// 初始化S3客戶端
	s3Client, err := internalS3.NewClient(ctx, internalS3.ClientConfig{
		Endpoint:        config.S3.Endpoint,
		AccessKeyID:     config.S3.AccessKeyID,
		SecretAccessKey: config.S3.SecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create S3 client, err=%w", op, err)
	}
	s3Operator, err := internalS3.NewS3Operator(s3Client, config.S3.Bucket, config.S3.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create S3 operator, err=%w", op, err)
	}

	// 初始化資料庫連線
	db, err := database.Open(config.DB)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to open database, err=%w", op, err)
	}
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("[%s] Fail to migrate database, err=%w", op, err)
	}
	repo := database.NewRepository(db)

	// 初始化Redis連線
	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
	cacheOpts := []redisAdapter.IndexCacheOption{}
	if config.Redis.CachePrefix != "" {
		cacheOpts = append(cacheOpts, redisAdapter.WithIndexCachePrefix(config.Redis.CachePrefix))
	}
	if config.Redis.CacheTTL > 0 {
		cacheOpts = append(cacheOpts, redisAdapter.WithIndexCacheTTL(config.Redis.CacheTTL))
	}
	sessionStore := redisAdapter.NewStore(redisClient,
		redisAdapter.WithStorePrefix(config.Session.Prefix),
		redisAdapter.WithStoreTTL(config.Session.MaxAge()),
	)

	deps := components{
		users:    repo,
		cars:     repo,
		bookings: repo,
		store:    s3Operator,
		cache:    redisAdapter.NewIndexCache(redisClient, cacheOpts...),
		sessions: sessionStore,
		provider: provider,
		tokens:   tokens,
	}

	// 刊登異動通知，同一個 stream 也作為 SSE 的來源
	var producer *redisAdapter.Producer[listing.Event]
	var reader *redisAdapter.StreamReader[listing.Event]
	if config.Redis.EventStream != "" {
		producer, err = redisAdapter.NewProducer[listing.Event](
			redisClient,
			config.Redis.EventStream,
			redisAdapter.WithProducerLogger[listing.Event](logger),
			redisAdapter.WithProducerMaxLen[listing.Event](10000),
		)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create producer, err=%w", op, err)
		}
		deps.publisher = producer

		reader, err = redisAdapter.NewStreamReader[listing.Event](
			redisClient,
			config.Redis.EventStream,
			redisAdapter.WithReaderLogger[listing.Event](logger),
		)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create stream reader, err=%w", op, err)
		}
		events, err := sse.NewConnectionManager[listing.Event](reader,
			sse.WithLogger[listing.Event](logger),
			sse.WithChannelFunc(eventChannels),
		)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create sse connection manager, err=%w", op, err)
		}
		deps.events = events
	}

	// 未設定金鑰時分析功能回傳設定錯誤，不影響其他功能
	if config.Gemini.APIKey != "" {
		var geminiOpts []gemini.Option
		if config.Gemini.Model != "" {
			geminiOpts = append(geminiOpts, gemini.WithModel(config.Gemini.Model))
		}
		generator, err := gemini.NewGenerator(ctx, config.Gemini.APIKey, geminiOpts...)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create gemini client, err=%w", op, err)
		}
		deps.generator = generator
	} else {
		logger.Warn("Gemini API key is not configured, image analysis is disabled")
	}

	impl := newServerImpl(config, deps, logger)
	impl.db = db
	impl.redisClient = redisClient
	impl.producer = producer
	impl.reader = reader
	return impl, nil
}

func newServerImpl(config ServerConfig, deps components, logger *slog.Logger) *ServerImpl {
	auth := NewTokenAuthenticator(deps.users)
	serviceOpts := []listing.ServiceOption{listing.WithServiceLogger(logger)}
	if deps.cache != nil {
		serviceOpts = append(serviceOpts, listing.WithServiceCache(deps.cache))
	}
	if deps.publisher != nil {
		serviceOpts = append(serviceOpts, listing.WithServicePublisher(deps.publisher))
	}
	return &ServerImpl{
		listings:     listing.NewService(auth, deps.cars, deps.store, serviceOpts...),
		reservations: listing.NewReservations(auth, deps.cars, deps.bookings, logger),
		classifier: listing.NewClassifier(deps.generator,
			listing.WithSeatsRequired(config.SeatsRequired),
			listing.WithClassifierLogger(logger),
		),
		auth:     auth,
		users:    deps.users,
		tokens:   deps.tokens,
		provider: deps.provider,
		sessions: deps.sessions,
		events:   deps.events,
		logger:   logger.With(slog.String("caller", "Server")),
		config:   config,
	}
}

func (impl *ServerImpl) Start() {
	if impl.producer != nil {
		impl.producer.Start()
	}
	if impl.reader != nil {
		impl.reader.Start()
	}
	if impl.events != nil {
		impl.events.Start()
	}
}

func (impl *ServerImpl) Close() {
	// 關閉producer，等待已排入的通知送出
	if impl.producer != nil {
		impl.producer.Close()
	}
	// 關閉sse connection manager，結束所有串流
	if impl.events != nil {
		impl.events.Done()
	}
	if impl.reader != nil {
		impl.reader.Close()
	}
	if impl.redisClient != nil {
		if err := impl.redisClient.Close(); err != nil {
			impl.logger.Error("Fail to close redis client", slog.Any("error", err))
		}
	}
	if impl.db != nil {
		if sqlDB, err := impl.db.DB(); err == nil {
			sqlDB.Close()
		}
	}
}

// RegisterHandlers 註冊所有路由
func (impl *ServerImpl) RegisterHandlers(router gin.IRouter) {
	router.GET("/healthz", impl.healthz)

	auth := router.Group("/auth")
	auth.Use(session.GinMiddleware(impl.sessions,
		session.WithSessionKeyForCookie("geargrid_session"),
		session.WithCookieMaxAge(impl.config.Session.MaxAge()),
		session.WithCookieSecure(impl.config.Session.Secure),
		session.WithCookieSameSite(impl.config.Session.SameSite),
		session.WithLogger(impl.logger),
	))
	auth.GET("/login", impl.login)
	auth.GET("/callback", impl.callback)
	auth.GET("/logout", impl.logout)

	public := router.Group("")
	public.Use(impl.AuthMiddleware())
	public.GET("/cars", impl.searchCars)
	public.GET("/cars/:id", impl.getCar)

	// 需要登入的路由先驗證身份，再檢查參數
	user := public.Group("", impl.RequireUser())
	user.POST("/cars/:id/test-drives", impl.bookTestDrive)
	user.GET("/reservations", impl.listReservations)
	user.POST("/reservations/:id/cancel", impl.cancelReservation)

	admin := public.Group("/admin", impl.RequireAdmin())
	admin.POST("/cars/analyze", impl.analyzeImage)
	admin.POST("/cars", impl.createCar)
	admin.PATCH("/cars/:id", impl.patchCar)
	admin.DELETE("/cars/:id", impl.deleteCar)
	admin.PATCH("/test-drives/:id", impl.updateTestDrive)
	admin.GET("/events", impl.streamEvents)
}

func (impl *ServerImpl) healthz(c *gin.Context) {
	if impl.db != nil {
		sqlDB, err := impl.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			impl.logger.Error("Database is unreachable", slog.Any("error", err))
			c.JSON(http.StatusServiceUnavailable, envelope{Success: false, Error: "database unavailable"})
			return
		}
	}
	respondData(c, http.StatusOK, gin.H{"status": "ok"})
}

func generateID(prefix string) (string, error) {
	const op = "generateID"
	bytes := make([]byte, 20)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("[%s] Fail to generate unique id, err=%w", op, err)
	}
	return prefix + "_" + base64.URLEncoding.EncodeToString(bytes), nil
}
