package redis

// IProducer 定義了 Producer 的操作介面
type IProducer[T any] interface {
	Start()
	Publish(data T) error
	Close()
}

// IReader 定義了 StreamReader 的操作介面
type IReader[T any] interface {
	Start()
	Subscribe() <-chan T
	Close()
}
