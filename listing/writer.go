package listing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/samber/lo"

	"geargrid/models"
)

const (
	// DefaultYear 取代無法解析的年份
	DefaultYear = 2024
	MinYear     = 1900
	MinSeats    = 1
	MaxSeats    = 12
)

// Draft 是已轉型並驗證過的刊登欄位，尚未寫入資料庫
type Draft struct {
	Make         string
	Model        string
	Year         int
	Price        float64
	Mileage      string
	Color        string
	FuelType     string
	Transmission string
	BodyType     string
	Seats        *int
	Description  string
	Status       models.CarStatus
	Featured     bool
}

// Writer 負責刊登欄位的轉型、驗證與寫入
type Writer struct {
	repo        CarRepository
	cache       IndexCache
	publisher   EventPublisher
	htmlChecker *bluemonday.Policy
	now         func() time.Time
	logger      *slog.Logger
}

func NewWriter(repo CarRepository, cache IndexCache, publisher EventPublisher, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		repo:        repo,
		cache:       cache,
		publisher:   publisher,
		htmlChecker: bluemonday.UGCPolicy(),
		now:         time.Now,
		logger:      logger.With(slog.String("caller", "Writer")),
	}
}

// Prepare 轉型欄位並檢查必填欄位，不做任何 I/O。
// 次要數值欄位格式錯誤時使用預設值，不會因此拒絕刊登。
func (w *Writer) Prepare(fields Fields) (Draft, error) {
	fields.Make = strings.TrimSpace(fields.Make)
	fields.Model = strings.TrimSpace(fields.Model)
	fields.Status = strings.ToUpper(strings.TrimSpace(fields.Status))

	invalid, err := invalidFields(fields)
	if err != nil {
		return Draft{}, fmt.Errorf("[Prepare] Fail to validate fields, err=%w", err)
	}
	price, ok := parsePrice(fields.Price)
	if (!ok || price <= 0) && !lo.Contains(invalid, "price") {
		invalid = append(invalid, "price")
	}
	if len(invalid) > 0 {
		return Draft{}, &ValidationError{Fields: invalid, Message: "invalid listing fields"}
	}

	status := models.CarStatus(fields.Status)
	if status == "" {
		status = models.CarStatusAvailable
	}
	return Draft{
		Make:         fields.Make,
		Model:        fields.Model,
		Year:         w.coerceYear(fields.Year),
		Price:        price,
		Mileage:      coerceMileage(fields.Mileage),
		Color:        strings.TrimSpace(fields.Color),
		FuelType:     strings.TrimSpace(fields.FuelType),
		Transmission: strings.TrimSpace(fields.Transmission),
		BodyType:     strings.TrimSpace(fields.BodyType),
		Seats:        coerceSeats(fields.Seats),
		Description:  strings.TrimSpace(w.htmlChecker.Sanitize(fields.Description)),
		Status:       status,
		Featured:     fields.Featured,
	}, nil
}

// Persist 以預先產生的 ID 寫入一筆刊登，並通知列表快取失效
func (w *Writer) Persist(ctx context.Context, id uuid.UUID, actor Actor, draft Draft, imageURLs []string) (*models.Car, error) {
	const op = "Persist"
	if len(imageURLs) == 0 {
		return nil, &NoValidUploadsError{}
	}
	car := &models.Car{
		ID:           id,
		Make:         draft.Make,
		Model:        draft.Model,
		Year:         draft.Year,
		Price:        draft.Price,
		Mileage:      draft.Mileage,
		Color:        draft.Color,
		FuelType:     draft.FuelType,
		Transmission: draft.Transmission,
		BodyType:     draft.BodyType,
		Seats:        draft.Seats,
		Description:  draft.Description,
		Status:       draft.Status,
		Featured:     draft.Featured,
		Images:       append([]string(nil), imageURLs...),
	}
	if err := w.repo.CreateCar(ctx, car); err != nil {
		return nil, fmt.Errorf("[%s] Fail to create car, err=%w", op, err)
	}
	w.changed(ctx, EventCreated, id, actor)
	return car, nil
}

// changed 讓列表快取失效並發布異動通知，失敗只記錄不回傳
func (w *Writer) changed(ctx context.Context, eventType EventType, carID uuid.UUID, actor Actor) {
	if w.cache != nil {
		if err := w.cache.Invalidate(ctx); err != nil {
			w.logger.Warn("Fail to invalidate listing cache", slog.Any("error", err))
		}
	}
	if w.publisher != nil {
		event := Event{Type: eventType, CarID: carID, Actor: actor.ID, At: w.now()}
		if err := w.publisher.Publish(event); err != nil {
			w.logger.Warn("Fail to publish listing event", slog.String("type", string(eventType)), slog.Any("error", err))
		}
	}
}

func (w *Writer) coerceYear(raw string) int {
	year, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || year < MinYear || year > w.now().Year()+1 {
		return DefaultYear
	}
	return year
}

func parsePrice(raw string) (float64, bool) {
	if strings.HasPrefix(strings.TrimSpace(raw), "-") {
		return 0, false
	}
	price, err := strconv.ParseFloat(NormalizePrice(raw), 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

// coerceMileage 保留帶單位的字串；空值視為 0
func coerceMileage(raw string) string {
	mileage := strings.TrimSpace(raw)
	if mileage == "" {
		return "0"
	}
	return mileage
}

func coerceSeats(raw string) *int {
	seats, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || seats < MinSeats || seats > MaxSeats {
		return nil
	}
	return &seats
}
