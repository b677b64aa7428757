package sse

// IChannel 定義了 SSE 頻道的介面
type IChannel[T any] interface {
	// Subscribe 建立一個新的訂閱並返回接收訊息的通道
	Subscribe() <-chan T
	// Unsubscribe 取消指定通道的訂閱
	Unsubscribe(ch <-chan T)
	// UnsubscribeAll 取消所有訂閱
	UnsubscribeAll()
	// Broadcast 將訊息廣播給所有訂閱者，回傳因緩衝區已滿而被略過的數量
	Broadcast(message T) int
	// IsIdle 檢查是否沒有訂閱者
	IsIdle() bool
}

// ISource 是 ConnectionManager 的訊息來源
type ISource[T any] interface {
	Subscribe() <-chan T
}

// IConnectionManager 定義了 SSE 連線管理員的介面
type IConnectionManager[T any] interface {
	// Start 啟動 ConnectionManager，開始從來源接收並廣播訊息。
	Start()
	// Done 停止 ConnectionManager，關閉所有訂閱。
	Done()
	// Subscribe 訂閱指定頻道，返回一個新的唯讀通道。
	Subscribe(channelName string) (<-chan T, error)
	// Unsubscribe 取消訂閱指定頻道。
	Unsubscribe(channelName string, ch <-chan T)
}
