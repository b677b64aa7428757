package sse

import (
	"errors"
	"log/slog"
	"sync"
)

var ErrManagerClosed = errors.New("connection manager is closed")

type managerOptions[T any] struct {
	logger      *slog.Logger
	bufferSize  int
	channelFunc func(T) []string
}

type ManagerOption[T any] func(*managerOptions[T])

// WithLogger 設置日誌記錄器
func WithLogger[T any](logger *slog.Logger) ManagerOption[T] {
	return func(o *managerOptions[T]) {
		o.logger = logger
	}
}

// WithBufferSize 設置每個訂閱者的緩衝區大小
func WithBufferSize[T any](size int) ManagerOption[T] {
	return func(o *managerOptions[T]) {
		o.bufferSize = size
	}
}

// WithChannelFunc 決定一則訊息要送往哪些頻道
func WithChannelFunc[T any](fn func(T) []string) ManagerOption[T] {
	return func(o *managerOptions[T]) {
		o.channelFunc = fn
	}
}

// ConnectionManager 將來源的訊息依頻道分送給本機的 SSE 連線。
// 來源通常是 Redis Stream，讓每個服務實例都能收到所有異動。
type ConnectionManager[T any] struct {
	source  ISource[T]
	options managerOptions[T]
	logger  *slog.Logger

	mu       sync.RWMutex
	wg       sync.WaitGroup
	started  bool
	active   bool
	done     chan struct{}
	channels map[string]*Channel[T]
}

var _ IConnectionManager[struct{}] = (*ConnectionManager[struct{}])(nil)

func NewConnectionManager[T any](source ISource[T], opts ...ManagerOption[T]) (*ConnectionManager[T], error) {
	if source == nil {
		return nil, errors.New("source cannot be nil")
	}
	options := managerOptions[T]{
		logger:      slog.Default(),
		bufferSize:  16,
		channelFunc: func(T) []string { return []string{""} },
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &ConnectionManager[T]{
		source:   source,
		options:  options,
		logger:   options.logger.With(slog.String("caller", "ConnectionManager")),
		active:   true,
		done:     make(chan struct{}),
		channels: make(map[string]*Channel[T]),
	}, nil
}

// Start 應在呼叫其他方法前先呼叫
func (cm *ConnectionManager[T]) Start() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.started || !cm.active {
		return
	}
	cm.started = true

	cm.wg.Add(1)
	go func() {
		defer cm.wg.Done()
		messages := cm.source.Subscribe()
		for {
			select {
			case <-cm.done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				cm.dispatch(msg)
			}
		}
	}()
}

func (cm *ConnectionManager[T]) dispatch(msg T) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for _, name := range cm.options.channelFunc(msg) {
		channel, ok := cm.channels[name]
		if !ok {
			continue
		}
		if dropped := channel.Broadcast(msg); dropped > 0 {
			cm.logger.Warn("Drop message for slow subscribers", slog.String("channel", name), slog.Int("dropped", dropped))
		}
	}
}

// Done 停止接收訊息並關閉所有訂閱者的通道
func (cm *ConnectionManager[T]) Done() {
	cm.mu.Lock()
	if !cm.active {
		cm.mu.Unlock()
		return
	}
	cm.active = false
	close(cm.done)
	cm.mu.Unlock()

	cm.wg.Wait()

	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, channel := range cm.channels {
		channel.UnsubscribeAll()
	}
	clear(cm.channels)
}

func (cm *ConnectionManager[T]) Subscribe(channelName string) (<-chan T, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if !cm.active {
		return nil, ErrManagerClosed
	}
	c, ok := cm.channels[channelName]
	if !ok {
		c = NewChannel[T](cm.options.bufferSize)
		cm.channels[channelName] = c
	}
	return c.Subscribe(), nil
}

// Unsubscribe 取消訂閱，頻道沒有訂閱者時一併移除
func (cm *ConnectionManager[T]) Unsubscribe(channelName string, ch <-chan T) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	c, ok := cm.channels[channelName]
	if !ok {
		return
	}
	c.Unsubscribe(ch)
	if c.IsIdle() {
		delete(cm.channels, channelName)
	}
}
