package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"geargrid/listing"
	"geargrid/models"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Repository 以 gorm 實作刊登、試駕預約與使用者的持久層
type Repository struct {
	db *gorm.DB
}

var (
	_ listing.CarRepository     = (*Repository)(nil)
	_ listing.BookingRepository = (*Repository)(nil)
)

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func notFound(kind string, id uuid.UUID) error {
	return &listing.NotFoundError{Kind: kind, ID: id.String()}
}

func (r *Repository) CreateCar(ctx context.Context, car *models.Car) error {
	if result := r.db.WithContext(ctx).Create(car); result.Error != nil {
		return fmt.Errorf("[CreateCar] Fail to insert car, err=%w", result.Error)
	}
	return nil
}

func (r *Repository) GetCar(ctx context.Context, id uuid.UUID) (*models.Car, error) {
	var car models.Car
	if result := r.db.WithContext(ctx).First(&car, "id = ?", id); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, notFound("car", id)
		}
		return nil, fmt.Errorf("[GetCar] Fail to query car, err=%w", result.Error)
	}
	return &car, nil
}

// SearchCars 對 make/model/color 做不分大小寫的子字串比對，空字串回傳全部
func (r *Repository) SearchCars(ctx context.Context, query string) ([]models.Car, error) {
	tx := r.db.WithContext(ctx).Model(&models.Car{})
	if query = strings.TrimSpace(query); query != "" {
		pattern := "%" + likeEscaper.Replace(strings.ToLower(query)) + "%"
		tx = tx.Where(
			`LOWER(make) LIKE ? ESCAPE '\' OR LOWER(model) LIKE ? ESCAPE '\' OR LOWER(color) LIKE ? ESCAPE '\'`,
			pattern, pattern, pattern,
		)
	}
	cars := []models.Car{}
	result := tx.Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: "created_at"}, Desc: true},
		{Column: clause.Column{Name: "id"}, Desc: false},
	}}).Find(&cars)
	if result.Error != nil {
		return nil, fmt.Errorf("[SearchCars] Fail to query cars, err=%w", result.Error)
	}
	return cars, nil
}

func (r *Repository) UpdateCar(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	result := r.db.WithContext(ctx).Model(&models.Car{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("[UpdateCar] Fail to update car, err=%w", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound("car", id)
	}
	return nil
}

// DeleteCar 在同一個交易中刪除試駕預約與車輛，回傳車輛原本的圖片網址
func (r *Repository) DeleteCar(ctx context.Context, id uuid.UUID) ([]string, error) {
	const op = "DeleteCar"
	var images []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var car models.Car
		if result := tx.Select("id", "images").First(&car, "id = ?", id); result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return notFound("car", id)
			}
			return fmt.Errorf("fail to query car, err=%w", result.Error)
		}
		if result := tx.Where("car_id = ?", id).Delete(&models.TestDriveBooking{}); result.Error != nil {
			return fmt.Errorf("fail to delete bookings, err=%w", result.Error)
		}
		if result := tx.Delete(&models.Car{}, "id = ?", id); result.Error != nil {
			return fmt.Errorf("fail to delete car, err=%w", result.Error)
		}
		images = car.Images
		return nil
	})
	if err != nil {
		if errors.Is(err, listing.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("[%s] Fail to delete car, err=%w", op, err)
	}
	return images, nil
}

// CreateBooking 寫入預約；時段已被有效預約佔用時由唯一索引擋下，回傳 ConflictError
func (r *Repository) CreateBooking(ctx context.Context, booking *models.TestDriveBooking) error {
	if result := r.db.WithContext(ctx).Create(booking); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return &listing.ConflictError{Message: "this time slot is already booked"}
		}
		return fmt.Errorf("[CreateBooking] Fail to insert booking, err=%w", result.Error)
	}
	return nil
}

func (r *Repository) GetBooking(ctx context.Context, id uuid.UUID) (*models.TestDriveBooking, error) {
	var booking models.TestDriveBooking
	if result := r.db.WithContext(ctx).First(&booking, "id = ?", id); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, notFound("booking", id)
		}
		return nil, fmt.Errorf("[GetBooking] Fail to query booking, err=%w", result.Error)
	}
	return &booking, nil
}

func (r *Repository) SlotTaken(ctx context.Context, carID uuid.UUID, date string, startTime string) (bool, error) {
	const op = "SlotTaken"
	day, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return false, fmt.Errorf("[%s] Fail to parse date, err=%w", op, err)
	}
	var count int64
	result := r.db.WithContext(ctx).Model(&models.TestDriveBooking{}).
		Where("car_id = ? AND booking_date = ? AND start_time = ?", carID, day, startTime).
		Where("status IN ?", []models.BookingStatus{models.BookingStatusPending, models.BookingStatusConfirmed}).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("[%s] Fail to count bookings, err=%w", op, result.Error)
	}
	return count > 0, nil
}

// ListBookingsByUser 依日期新到舊列出預約，並帶出車輛資料
func (r *Repository) ListBookingsByUser(ctx context.Context, userID uuid.UUID) ([]models.TestDriveBooking, error) {
	bookings := []models.TestDriveBooking{}
	result := r.db.WithContext(ctx).Preload("Car").
		Where("user_id = ?", userID).
		Order("booking_date DESC").
		Order("start_time DESC").
		Find(&bookings)
	if result.Error != nil {
		return nil, fmt.Errorf("[ListBookingsByUser] Fail to query bookings, err=%w", result.Error)
	}
	return bookings, nil
}

func (r *Repository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, status models.BookingStatus) error {
	result := r.db.WithContext(ctx).Model(&models.TestDriveBooking{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("[UpdateBookingStatus] Fail to update booking, err=%w", result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound("booking", id)
	}
	return nil
}

// UpsertUser 依 OIDC subject 建立或更新使用者；角色只在首次建立時決定
func (r *Repository) UpsertUser(ctx context.Context, user *models.User) (*models.User, error) {
	const op = "UpsertUser"
	if user.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to generate user id, err=%w", op, err)
		}
		user.ID = id
	}
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subject"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "updated_at"}),
	}).Create(user)
	if result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to upsert user, err=%w", op, result.Error)
	}
	var stored models.User
	if result := r.db.WithContext(ctx).First(&stored, "subject = ?", user.Subject); result.Error != nil {
		return nil, fmt.Errorf("[%s] Fail to reload user, err=%w", op, result.Error)
	}
	return &stored, nil
}

func (r *Repository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if result := r.db.WithContext(ctx).First(&user, "id = ?", id); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, notFound("user", id)
		}
		return nil, fmt.Errorf("[GetUser] Fail to query user, err=%w", result.Error)
	}
	return &user, nil
}
