package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"geargrid/models"
)

type serviceOptions struct {
	logger          *slog.Logger
	cache           IndexCache
	publisher       EventPublisher
	newID           func() (uuid.UUID, error)
	uploaderOptions []UploaderOption
}

type ServiceOption func(*serviceOptions)

// WithServiceLogger 設置日誌記錄器
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithServiceCache 設置列表快取
func WithServiceCache(cache IndexCache) ServiceOption {
	return func(o *serviceOptions) {
		o.cache = cache
	}
}

// WithServicePublisher 設置異動通知的發布者
func WithServicePublisher(publisher EventPublisher) ServiceOption {
	return func(o *serviceOptions) {
		o.publisher = publisher
	}
}

// WithServiceIDGenerator 設置刊登 ID 的產生方式
func WithServiceIDGenerator(newID func() (uuid.UUID, error)) ServiceOption {
	return func(o *serviceOptions) {
		o.newID = newID
	}
}

// WithServiceUploaderOptions 傳遞給內部 Uploader 的選項
func WithServiceUploaderOptions(opts ...UploaderOption) ServiceOption {
	return func(o *serviceOptions) {
		o.uploaderOptions = append(o.uploaderOptions, opts...)
	}
}

// CreateResult 是新增刊登的結果，Failures 列出被略過或上傳失敗的圖片
type CreateResult struct {
	Car      *models.Car
	Failures []UploadFailure
}

// Service 提供刊登的查詢與異動操作
type Service struct {
	auth     Authenticator
	repo     CarRepository
	store    ObjectStore
	uploader *Uploader
	writer   *Writer
	cache    IndexCache
	newID    func() (uuid.UUID, error)
	logger   *slog.Logger
}

func NewService(auth Authenticator, repo CarRepository, store ObjectStore, opts ...ServiceOption) *Service {
	options := serviceOptions{
		logger: slog.Default(),
		newID:  uuid.NewV7,
	}
	for _, opt := range opts {
		opt(&options)
	}
	uploaderOptions := append([]UploaderOption{WithUploaderLogger(options.logger)}, options.uploaderOptions...)
	return &Service{
		auth:     auth,
		repo:     repo,
		store:    store,
		uploader: NewUploader(store, uploaderOptions...),
		writer:   NewWriter(repo, options.cache, options.publisher, options.logger),
		cache:    options.cache,
		newID:    options.newID,
		logger:   options.logger.With(slog.String("caller", "ListingService")),
	}
}

// requireActor 解析操作者；只有本身屬於 ErrUnauthorized 的錯誤回傳 401，
// 其他錯誤 (例如資料庫無法連線) 視為內部錯誤往上傳。
func requireActor(ctx context.Context, auth Authenticator) (Actor, error) {
	if auth == nil {
		return Actor{}, &UnauthorizedError{Reason: "no authenticator"}
	}
	actor, err := auth.Authenticate(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return Actor{}, err
		}
		return Actor{}, fmt.Errorf("[requireActor] Fail to authenticate, err=%w", err)
	}
	return actor, nil
}

func requireAdmin(ctx context.Context, auth Authenticator, action string) (Actor, error) {
	actor, err := requireActor(ctx, auth)
	if err != nil {
		return Actor{}, err
	}
	if !actor.IsAdmin() {
		return Actor{}, &ForbiddenError{Action: action}
	}
	return actor, nil
}

// Create 驗證欄位、上傳圖片後寫入刊登；欄位不合法時不會有任何上傳或寫入
func (s *Service) Create(ctx context.Context, fields Fields, images []string) (*CreateResult, error) {
	const op = "Create"
	actor, err := requireAdmin(ctx, s.auth, "create listings")
	if err != nil {
		return nil, err
	}
	draft, err := s.writer.Prepare(fields)
	if err != nil {
		return nil, err
	}
	// 同一個 ID 同時作為儲存資料夾與資料庫主鍵
	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to generate listing id, err=%w", op, err)
	}
	report, err := s.uploader.Upload(ctx, id, images)
	if err != nil {
		return nil, err
	}
	car, err := s.writer.Persist(ctx, id, actor, draft, report.URLs)
	if err != nil {
		// 圖片已上傳但寫入失敗時不做補償，留下孤兒物件
		s.logger.Error("Fail to persist listing after upload", slog.String("listingID", id.String()), slog.Any("error", err))
		return nil, err
	}
	s.logger.Info("Listing created", slog.String("listingID", id.String()), slog.Int("images", len(report.URLs)), slog.String("actor", actor.ID.String()))
	return &CreateResult{Car: car, Failures: report.Failures}, nil
}

// Search 以不分大小寫的子字串比對 make/model/color，空字串回傳全部，依建立時間新到舊
func (s *Service) Search(ctx context.Context, query string) ([]models.Car, error) {
	const op = "Search"
	// 比對不分大小寫，快取鍵也一併正規化
	query = strings.ToLower(strings.TrimSpace(query))
	var version int64
	cacheable := false
	if s.cache != nil {
		cars, v, ok, err := s.cache.Load(ctx, query)
		switch {
		case err != nil:
			s.logger.Warn("Fail to load listing cache", slog.Any("error", err))
		case ok:
			return cars, nil
		default:
			version, cacheable = v, true
		}
	}
	cars, err := s.repo.SearchCars(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to search cars, err=%w", op, err)
	}
	if cars == nil {
		cars = []models.Car{}
	}
	if cacheable {
		if err := s.cache.Store(ctx, query, version, cars); err != nil {
			s.logger.Warn("Fail to store listing cache", slog.Any("error", err))
		}
	}
	return cars, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Car, error) {
	return s.repo.GetCar(ctx, id)
}

// UpdateStatus 只更新 patch 中有提供的欄位
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, patch Patch) error {
	const op = "UpdateStatus"
	actor, err := requireAdmin(ctx, s.auth, "update listings")
	if err != nil {
		return err
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return &ValidationError{Fields: []string{"status"}, Message: fmt.Sprintf("unknown status %q", *patch.Status)}
	}
	if patch.Empty() {
		_, err := s.repo.GetCar(ctx, id)
		return err
	}
	fields := make(map[string]any, 2)
	if patch.Status != nil {
		fields["status"] = *patch.Status
	}
	if patch.Featured != nil {
		fields["featured"] = *patch.Featured
	}
	if err := s.repo.UpdateCar(ctx, id, fields); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("[%s] Fail to update car, err=%w", op, err)
	}
	s.writer.changed(ctx, EventUpdated, id, actor)
	return nil
}

// Delete 刪除資料庫紀錄後盡力清除儲存空間中的圖片；
// 清除失敗只記錄，不會回復已刪除的紀錄。
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	const op = "Delete"
	actor, err := requireAdmin(ctx, s.auth, "delete listings")
	if err != nil {
		return err
	}
	imageURLs, err := s.repo.DeleteCar(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("[%s] Fail to delete car, err=%w", op, err)
	}
	s.writer.changed(ctx, EventDeleted, id, actor)
	s.removeImages(ctx, id, imageURLs)
	return nil
}

func (s *Service) removeImages(ctx context.Context, id uuid.UUID, imageURLs []string) {
	keys := lo.FilterMap(imageURLs, func(u string, _ int) (string, bool) {
		return s.store.ExtractKey(u)
	})
	if len(keys) < len(imageURLs) {
		s.logger.Warn("Some image URLs could not be mapped to storage keys",
			slog.String("listingID", id.String()),
			slog.Int("urls", len(imageURLs)),
			slog.Int("keys", len(keys)))
	}
	if len(keys) == 0 {
		return
	}
	if err := s.store.Remove(ctx, keys); err != nil {
		s.logger.Error("Fail to delete images from storage", slog.String("listingID", id.String()), slog.Any("error", err))
	}
}
