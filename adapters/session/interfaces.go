//go:generate mockgen -package=session -destination=mock.go -source=interfaces.go

package session

import "context"

type IStore interface {
	Load(ctx context.Context, name string) (map[string]string, error)
	Save(ctx context.Context, name string, data map[string]string) error
}

type ISession interface {
	ID() string
	Load() error
	Get(key string) string
	// Pop 取出並刪除 key，用於只能使用一次的值
	Pop(key string) string
	Set(key, value string)
	Delete(key string)
	Clear()
	// Dirty 表示資料在載入後被修改過
	Dirty() bool
	Save() error
}
