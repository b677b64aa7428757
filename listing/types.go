package listing

import (
	"time"

	"github.com/google/uuid"

	"geargrid/models"
)

// Actor 是已通過驗證的操作者
type Actor struct {
	ID   uuid.UUID
	Name string
	Role models.Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// Image 是一張待辨識的圖片
type Image struct {
	Data      []byte
	MediaType string
}

// Fields 是刊登中可由操作者編輯的欄位，AI 草稿與表單共用同一份結構；
// 數值欄位以字串表示，由 Writer 負責轉型。
type Fields struct {
	Make         string `json:"make" validate:"required"`
	Model        string `json:"model" validate:"required"`
	Year         string `json:"year"`
	Price        string `json:"price" validate:"required"`
	Mileage      string `json:"mileage"`
	Color        string `json:"color"`
	FuelType     string `json:"fuelType"`
	Transmission string `json:"transmission"`
	BodyType     string `json:"bodyType"`
	Seats        string `json:"seats"`
	Description  string `json:"description"`
	Status       string `json:"status" validate:"omitempty,oneof=AVAILABLE UNAVAILABLE SOLD"`
	Featured     bool   `json:"featured"`
}

// Candidate 是 AI 從照片推測的刊登草稿，必須經操作者確認後才會寫入
type Candidate struct {
	Fields
	Confidence float64 `json:"confidence"`
}

// Patch 是部分更新，nil 欄位維持原值
type Patch struct {
	Status   *models.CarStatus `json:"status"`
	Featured *bool             `json:"featured"`
}

func (p Patch) Empty() bool {
	return p.Status == nil && p.Featured == nil
}

// BookingRequest 是試駕預約的輸入
type BookingRequest struct {
	Date      string `json:"bookingDate"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Notes     string `json:"notes"`
}

type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// Event 是刊登異動通知
type Event struct {
	Type  EventType `msgpack:"type"`
	CarID uuid.UUID `msgpack:"car_id"`
	Actor uuid.UUID `msgpack:"actor"`
	At    time.Time `msgpack:"at"`
}
