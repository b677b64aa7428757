package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User 代表市集中的使用者
// Subject 為 OIDC 提供者回傳的 sub，用來關聯登入身份
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;<-:create" json:"id"`
	Subject   string    `gorm:"type:text;not null;uniqueIndex;<-:create" json:"-"`
	Email     string    `gorm:"type:varchar(255)" json:"email"`
	Name      string    `gorm:"type:varchar(255)" json:"name"`
	Role      Role      `gorm:"type:varchar(16);not null;default:USER" json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
