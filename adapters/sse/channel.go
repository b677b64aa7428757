package sse

import (
	"sync"
)

// Channel 管理同一個頻道的所有訂閱者；
// 訂閱者的緩衝區已滿時會略過該則訊息，不會阻塞其他訂閱者。
type Channel[T any] struct {
	subscribers map[<-chan T]chan T
	bufferSize  int
	mu          sync.RWMutex
}

var _ IChannel[struct{}] = (*Channel[struct{}])(nil)

func NewChannel[T any](bufferSize int) *Channel[T] {
	return &Channel[T]{
		subscribers: make(map[<-chan T]chan T),
		bufferSize:  bufferSize,
	}
}

func (c *Channel[T]) Subscribe() <-chan T {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan T, c.bufferSize)
	c.subscribers[ch] = ch
	return ch
}

// Unsubscribe 移除並關閉指定的通道
func (c *Channel[T]) Unsubscribe(ch <-chan T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if writeCh, exists := c.subscribers[ch]; exists {
		delete(c.subscribers, ch)
		close(writeCh)
	}
}

func (c *Channel[T]) UnsubscribeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, writeCh := range c.subscribers {
		close(writeCh)
	}
	clear(c.subscribers)
}

func (c *Channel[T]) Broadcast(message T) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	dropped := 0
	for _, writeCh := range c.subscribers {
		select {
		case writeCh <- message:
		default:
			dropped++
		}
	}
	return dropped
}

func (c *Channel[T]) IsIdle() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscribers) == 0
}
