package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc/iter"
	"github.com/vincent-petithory/dataurl"

	"geargrid/adapters/s3"
)

// MaxImageBytes 是單張圖片解碼後的大小上限
const MaxImageBytes = 5 << 20

var (
	errNotDataURL  = errors.New("not a valid image data URL")
	errEmptyImage  = errors.New("image is empty")
	errInsecureExt = errors.New("image type is not allowed")
)

// UploadFailure 記錄單張圖片失敗的原因
type UploadFailure struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// UploadReport 是整批上傳的結果，URLs 依輸入順序排列
type UploadReport struct {
	Submitted int
	URLs      []string
	Failures  []UploadFailure
}

type pendingUpload struct {
	index       int
	contentType string
	ext         string
	data        []byte
}

// uploadOutcome 是單張圖片的上傳結果，成功時 url 不為空
type uploadOutcome struct {
	index int
	url   string
	err   error
}

type uploaderOptions struct {
	logger   *slog.Logger
	maxBytes int
	now      func() time.Time
	suffix   func() string
}

type UploaderOption func(*uploaderOptions)

// WithUploaderLogger 設置日誌記錄器
func WithUploaderLogger(logger *slog.Logger) UploaderOption {
	return func(o *uploaderOptions) {
		o.logger = logger
	}
}

// WithUploaderMaxBytes 設置單張圖片大小上限
func WithUploaderMaxBytes(n int) UploaderOption {
	return func(o *uploaderOptions) {
		o.maxBytes = n
	}
}

// WithUploaderClock 設置產生檔名用的時間來源
func WithUploaderClock(now func() time.Time) UploaderOption {
	return func(o *uploaderOptions) {
		o.now = now
	}
}

// WithUploaderSuffix 設置產生檔名用的隨機字尾
func WithUploaderSuffix(suffix func() string) UploaderOption {
	return func(o *uploaderOptions) {
		o.suffix = suffix
	}
}

// Uploader 將同一筆刊登的多張圖片並行上傳到物件儲存
type Uploader struct {
	store   ObjectStore
	options uploaderOptions
	logger  *slog.Logger
}

func NewUploader(store ObjectStore, opts ...UploaderOption) *Uploader {
	options := uploaderOptions{
		logger:   slog.Default(),
		maxBytes: MaxImageBytes,
		now:      time.Now,
		suffix: func() string {
			return lo.RandomString(6, lo.LowerCaseLettersCharset)
		},
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Uploader{
		store:   store,
		options: options,
		logger:  options.logger.With(slog.String("caller", "Uploader")),
	}
}

// ObjectKey 組出圖片在儲存空間中的路徑
func ObjectKey(listingID uuid.UUID, timestamp int64, index int, suffix, ext string) string {
	return fmt.Sprintf("cars/%s/image-%d-%d-%s.%s", listingID, timestamp, index, suffix, ext)
}

// Upload 驗證並上傳所有圖片；至少一張成功才算成功，否則回傳 NoValidUploadsError。
// 每張圖片都會等到有結果才返回，單張失敗不會中斷其他上傳。
func (u *Uploader) Upload(ctx context.Context, listingID uuid.UUID, images []string) (*UploadReport, error) {
	report := &UploadReport{Submitted: len(images)}

	accepted := make([]pendingUpload, 0, len(images))
	for i, raw := range images {
		item, err := u.decode(i, raw)
		if err != nil {
			u.logger.Warn("Skipping invalid image data", slog.Int("index", i), slog.Any("error", err))
			report.Failures = append(report.Failures, UploadFailure{Index: i, Reason: err.Error()})
			continue
		}
		accepted = append(accepted, item)
	}

	// 每張圖片各用一個 goroutine，不受 GOMAXPROCS 限制
	mapper := iter.Mapper[pendingUpload, uploadOutcome]{MaxGoroutines: max(len(accepted), 1)}
	outcomes := mapper.Map(accepted, func(item *pendingUpload) uploadOutcome {
		return u.uploadOne(ctx, listingID, item)
	})

	report.URLs = lo.FilterMap(outcomes, func(o uploadOutcome, _ int) (string, bool) {
		return o.url, o.err == nil
	})
	report.Failures = append(report.Failures, lo.FilterMap(outcomes, func(o uploadOutcome, _ int) (UploadFailure, bool) {
		if o.err == nil {
			return UploadFailure{}, false
		}
		return UploadFailure{Index: o.index, Reason: o.err.Error()}, true
	})...)
	slices.SortFunc(report.Failures, func(a, b UploadFailure) int {
		return a.Index - b.Index
	})

	if len(report.URLs) == 0 {
		return nil, &NoValidUploadsError{Submitted: report.Submitted, Failures: report.Failures}
	}
	if len(report.Failures) > 0 {
		u.logger.Warn("Some images failed to upload",
			slog.String("listingID", listingID.String()),
			slog.Int("uploaded", len(report.URLs)),
			slog.Int("failed", len(report.Failures)))
	}
	return report, nil
}

func (u *Uploader) decode(index int, raw string) (pendingUpload, error) {
	parsed, err := dataurl.DecodeString(raw)
	if err != nil || parsed.MediaType.Type != "image" {
		return pendingUpload{}, errNotDataURL
	}
	contentType := parsed.MediaType.ContentType()
	secure, ext := s3.CheckSecureImageAndGetExtension(contentType)
	if !secure {
		return pendingUpload{}, fmt.Errorf("%w: %s", errInsecureExt, contentType)
	}
	if len(parsed.Data) == 0 {
		return pendingUpload{}, errEmptyImage
	}
	if len(parsed.Data) > u.options.maxBytes {
		return pendingUpload{}, &s3.ReachLimitError{MaxBytes: int64(u.options.maxBytes)}
	}
	return pendingUpload{
		index:       index,
		contentType: contentType,
		ext:         ext,
		data:        parsed.Data,
	}, nil
}

func (u *Uploader) uploadOne(ctx context.Context, listingID uuid.UUID, item *pendingUpload) uploadOutcome {
	const op = "uploadOne"
	key := ObjectKey(listingID, u.options.now().UnixMilli(), item.index, u.options.suffix(), item.ext)
	if err := u.store.Upload(ctx, key, item.contentType, item.data); err != nil {
		u.logger.Error("Fail to upload image", slog.String("key", key), slog.Any("error", err))
		return uploadOutcome{index: item.index, err: fmt.Errorf("[%s] Fail to upload image, err=%w", op, err)}
	}
	url, err := u.store.PublicURL(ctx, key)
	if err != nil {
		u.logger.Error("Fail to resolve public URL", slog.String("key", key), slog.Any("error", err))
		return uploadOutcome{index: item.index, err: fmt.Errorf("[%s] Fail to resolve public URL, err=%w", op, err)}
	}
	return uploadOutcome{index: item.index, url: url}
}
