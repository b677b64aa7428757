package listing

import (
	"context"

	"github.com/google/uuid"

	"geargrid/models"
)

// ObjectStore 是物件儲存服務的最小介面
type ObjectStore interface {
	// Upload 將內容寫入指定的 key
	Upload(ctx context.Context, key, contentType string, data []byte) error
	// PublicURL 解析 key 對應的公開網址
	PublicURL(ctx context.Context, key string) (string, error)
	// ExtractKey 從公開網址反推 key，無法辨識時回傳 false
	ExtractKey(rawURL string) (string, bool)
	// Remove 批次刪除物件
	Remove(ctx context.Context, keys []string) error
}

// Generator 將一張圖片與一段指示送往生成式 AI，回傳原始文字
type Generator interface {
	GenerateFromImage(ctx context.Context, image Image, prompt string) (string, error)
}

// ImageClassifier 從車輛照片產生待審核的刊登草稿
type ImageClassifier interface {
	Classify(ctx context.Context, image Image) (*Candidate, error)
}

// Authenticator 解析目前請求的操作者
type Authenticator interface {
	Authenticate(ctx context.Context) (Actor, error)
}

// CarRepository 是車輛刊登的持久層
type CarRepository interface {
	CreateCar(ctx context.Context, car *models.Car) error
	GetCar(ctx context.Context, id uuid.UUID) (*models.Car, error)
	SearchCars(ctx context.Context, query string) ([]models.Car, error)
	// UpdateCar 只更新 fields 中列出的欄位，目標不存在時回傳 ErrNotFound
	UpdateCar(ctx context.Context, id uuid.UUID, fields map[string]any) error
	// DeleteCar 先刪除相關試駕預約再刪除車輛，回傳被刪除車輛的圖片網址
	DeleteCar(ctx context.Context, id uuid.UUID) ([]string, error)
}

// BookingRepository 是試駕預約的持久層
type BookingRepository interface {
	// CreateBooking 在時段已有有效預約時回傳 ConflictError
	CreateBooking(ctx context.Context, booking *models.TestDriveBooking) error
	GetBooking(ctx context.Context, id uuid.UUID) (*models.TestDriveBooking, error)
	// SlotTaken 檢查同一台車在同一天同一時段是否已有有效預約
	SlotTaken(ctx context.Context, carID uuid.UUID, date string, startTime string) (bool, error)
	ListBookingsByUser(ctx context.Context, userID uuid.UUID) ([]models.TestDriveBooking, error)
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, status models.BookingStatus) error
}

// IndexCache 快取刊登列表查詢結果，任何異動後都需要失效。
// Load 同時回傳讀取時的版本，Store 必須寫回同一個版本；
// 查詢期間發生的失效會讓這筆結果落在舊版本上。
type IndexCache interface {
	Load(ctx context.Context, query string) (cars []models.Car, version int64, ok bool, err error)
	Store(ctx context.Context, query string, version int64, cars []models.Car) error
	Invalidate(ctx context.Context) error
}

// EventPublisher 將刊登異動通知送往下游
type EventPublisher interface {
	Publish(event Event) error
}
