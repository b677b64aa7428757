package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallnest/chanx"
)

var ErrProducerClosed = errors.New("producer is closed")

type producerOptions[T any] struct {
	logger     *slog.Logger
	bufferSize int
	maxLen     int64
	parseFunc  func(T) (map[string]any, error)

	// Close 等待緩衝訊息送出的上限
	drainTimeout time.Duration
}

type ProducerOption[T any] func(*producerOptions[T])

// WithProducerLogger 設置日誌記錄器
func WithProducerLogger[T any](logger *slog.Logger) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.logger = logger
	}
}

// WithProducerBufferSize 設置緩衝大小
func WithProducerBufferSize[T any](size int) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.bufferSize = size
	}
}

// WithProducerMaxLen 以近似方式將 stream 修剪到指定長度，0 表示不修剪
func WithProducerMaxLen[T any](maxLen int64) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.maxLen = maxLen
	}
}

// WithProducerDrainTimeout 設置 Close 時等待緩衝訊息寫入的時間上限，逾時後剩餘訊息會被丟棄
func WithProducerDrainTimeout[T any](timeout time.Duration) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.drainTimeout = timeout
	}
}

// WithProducerParseFunc 設置消息序列化函數
func WithProducerParseFunc[T any](fn func(T) (map[string]any, error)) ProducerOption[T] {
	return func(o *producerOptions[T]) {
		o.parseFunc = fn
	}
}

// Producer 將訊息非同步寫入 Redis stream；Publish 不會等待寫入完成
type Producer[T any] struct {
	client     *redis.Client
	stream     string
	upstream   *chanx.UnboundedChan[map[string]any]
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
	logger     *slog.Logger
	options    producerOptions[T]
}

var _ IProducer[struct{}] = (*Producer[struct{}])(nil)

func NewProducer[T any](client *redis.Client, stream string, opts ...ProducerOption[T]) (*Producer[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}

	options := producerOptions[T]{
		logger:     slog.Default(),
		bufferSize:   100,
		parseFunc:    DefaultParseToMessage[T],
		drainTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}

	return &Producer[T]{
		client:  client,
		stream:  stream,
		closed:  true,
		logger:  options.logger.With(slog.String("caller", "Producer"), slog.String("stream", stream)),
		options: options,
	}, nil
}

func (p *Producer[T]) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.upstream = chanx.NewUnboundedChan[map[string]any](ctx, p.options.bufferSize)
	p.cancelFunc = cancel
	p.closed = false
	p.logger.Info("starting stream producer")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.logger.Info("producer goroutine stopped")

		for {
			select {
			case <-ctx.Done():
				return
			case message, ok := <-p.upstream.Out:
				if !ok {
					return
				}
				p.send(ctx, message)
			}
		}
	}()
}

func (p *Producer[T]) send(ctx context.Context, message map[string]any) {
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.options.maxLen,
		Approx: p.options.maxLen > 0,
		Values: message,
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.logger.Error("publish message error", slog.Any("error", err))
		}
		return
	}
	p.logger.Debug("message published", slog.String("messageId", id))
}

func (p *Producer[T]) Publish(data T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}

	message, err := p.options.parseFunc(data)
	if err != nil {
		return fmt.Errorf("parse message error: %w", err)
	}

	p.upstream.In <- message
	return nil
}

// Close 停止接收新訊息，並在 drainTimeout 內把已排入的訊息寫完
func (p *Producer[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.logger.Info("closing stream producer")
	p.closed = true
	// Publish 持有讀鎖才會寫入 In，此處關閉不會與寫入競爭
	close(p.upstream.In)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(p.options.drainTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		p.logger.Warn("drain timeout, dropping pending messages",
			slog.Int("pending", p.upstream.Len()))
		p.cancelFunc()
		<-done
	}
	p.cancelFunc()
	p.logger.Info("stream producer closed")
}
