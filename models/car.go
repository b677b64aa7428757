package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CarStatus 代表車輛刊登的販售狀態
type CarStatus string

const (
	CarStatusAvailable   CarStatus = "AVAILABLE"
	CarStatusUnavailable CarStatus = "UNAVAILABLE"
	CarStatusSold        CarStatus = "SOLD"
)

// Valid 檢查狀態是否為已知的列舉值
func (s CarStatus) Valid() bool {
	switch s {
	case CarStatusAvailable, CarStatusUnavailable, CarStatusSold:
		return true
	}
	return false
}

// Car 代表市集中的一筆車輛刊登
// ID 在上傳圖片前產生，同時作為物件儲存的資料夾名稱
type Car struct {
	ID           uuid.UUID                   `gorm:"type:uuid;primaryKey;<-:create" json:"id"`
	Make         string                      `gorm:"type:varchar(255);not null;index" json:"make"`
	Model        string                      `gorm:"type:varchar(255);not null;index" json:"model"`
	Year         int                         `gorm:"type:integer;not null" json:"year"`
	Price        float64                     `gorm:"type:numeric(12,2);not null" json:"price"`
	Mileage      string                      `gorm:"type:varchar(64);not null" json:"mileage"`
	Color        string                      `gorm:"type:varchar(64);not null;index" json:"color"`
	FuelType     string                      `gorm:"type:varchar(64);not null" json:"fuelType"`
	Transmission string                      `gorm:"type:varchar(64);not null" json:"transmission"`
	BodyType     string                      `gorm:"type:varchar(64);not null" json:"bodyType"`
	Seats        *int                        `gorm:"type:integer" json:"seats,omitempty"`
	Description  string                      `gorm:"type:text;not null" json:"description"`
	Status       CarStatus                   `gorm:"type:varchar(16);not null;default:AVAILABLE;index" json:"status"`
	Featured     bool                        `gorm:"not null;default:false;index" json:"featured"`
	Images       datatypes.JSONSlice[string] `gorm:"not null" json:"images"`
	CreatedAt    time.Time                   `gorm:"index" json:"createdAt"`
	UpdatedAt    time.Time                   `json:"updatedAt"`

	// 外鍵關聯
	Bookings []TestDriveBooking `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
