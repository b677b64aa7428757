package models

// All 列出所有需要建立資料表的模型，供 AutoMigrate 與 atlas loader 共用
func All() []any {
	return []any{
		&User{},
		&Car{},
		&TestDriveBooking{},
	}
}
