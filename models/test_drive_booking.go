package models

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCompleted BookingStatus = "COMPLETED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
	BookingStatusNoShow    BookingStatus = "NO_SHOW"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCompleted, BookingStatusCancelled, BookingStatusNoShow:
		return true
	}
	return false
}

// Active 表示預約仍佔用時段
func (s BookingStatus) Active() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

// TestDriveBooking 代表使用者對某台車的試駕預約
type TestDriveBooking struct {
	ID          uuid.UUID     `gorm:"type:uuid;primaryKey;<-:create" json:"id"`
	// 同一台車同一天同一開始時間只能有一筆有效預約
	CarID       uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_booking_active_slot,where:status = 'PENDING' OR status = 'CONFIRMED';<-:create" json:"carId"`
	UserID      uuid.UUID     `gorm:"type:uuid;not null;index;<-:create" json:"userId"`
	BookingDate time.Time     `gorm:"type:date;not null;uniqueIndex:idx_booking_active_slot" json:"bookingDate"`
	StartTime   string        `gorm:"type:varchar(5);not null;uniqueIndex:idx_booking_active_slot" json:"startTime"`
	EndTime     string        `gorm:"type:varchar(5);not null" json:"endTime"`
	Status      BookingStatus `gorm:"type:varchar(16);not null;default:PENDING" json:"status"`
	Notes       string        `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`

	// 外鍵關聯
	Car  *Car  `gorm:"foreignKey:CarID" json:"car,omitempty"`
	User *User `gorm:"foreignKey:UserID" json:"-"`
}
