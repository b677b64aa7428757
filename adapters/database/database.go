package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"geargrid/models"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Schema   string
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s", c.User, c.Password, c.Host, c.Port, c.Database, c.Schema)
}

// Open 建立 PostgreSQL 連線，資料表名稱會加上 schema 前綴
func Open(config Config) (*gorm.DB, error) {
	const op = "Open"
	db, err := gorm.Open(postgres.Open(config.DSN()), &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: config.Schema + ".",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}
	return db, nil
}

// Migrate 建立或更新所有模型的資料表
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("[Migrate] Fail to migrate models, err=%w", err)
	}
	return nil
}
