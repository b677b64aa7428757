package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type readerOptions[T any] struct {
	logger     *slog.Logger
	bufferSize int
	block      time.Duration
	retryDelay time.Duration
	parseFunc  func(map[string]any) (T, error)
}

type ReaderOption[T any] func(*readerOptions[T])

// WithReaderLogger 設置日誌記錄器
func WithReaderLogger[T any](logger *slog.Logger) ReaderOption[T] {
	return func(o *readerOptions[T]) {
		o.logger = logger
	}
}

// WithReaderBlock 設置每次 XREAD 的最長等待時間
func WithReaderBlock[T any](block time.Duration) ReaderOption[T] {
	return func(o *readerOptions[T]) {
		o.block = block
	}
}

// WithReaderRetryDelay 設置讀取失敗後的等待時間
func WithReaderRetryDelay[T any](delay time.Duration) ReaderOption[T] {
	return func(o *readerOptions[T]) {
		o.retryDelay = delay
	}
}

// WithReaderParseFunc 設置訊息解析函數
func WithReaderParseFunc[T any](fn func(map[string]any) (T, error)) ReaderOption[T] {
	return func(o *readerOptions[T]) {
		o.parseFunc = fn
	}
}

// StreamReader 以 XREAD 追蹤 stream 的最新訊息，每個實例都會收到全部訊息；
// 啟動前已存在的訊息不會被讀取。
type StreamReader[T any] struct {
	client     *redis.Client
	stream     string
	downstream chan T
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	started    bool
	closed     bool
	logger     *slog.Logger
	options    readerOptions[T]
}

var _ IReader[struct{}] = (*StreamReader[struct{}])(nil)

func NewStreamReader[T any](client *redis.Client, stream string, opts ...ReaderOption[T]) (*StreamReader[T], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream cannot be empty")
	}
	options := readerOptions[T]{
		logger:     slog.Default(),
		bufferSize: 100,
		block:      time.Second,
		retryDelay: 100 * time.Millisecond,
		parseFunc:  DefaultParseFromMessage[T],
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &StreamReader[T]{
		client:     client,
		stream:     stream,
		downstream: make(chan T, options.bufferSize),
		logger:     options.logger.With(slog.String("caller", "StreamReader"), slog.String("stream", stream)),
		options:    options,
	}, nil
}

func (r *StreamReader[T]) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true
	ctx, cancel := context.WithCancel(context.Background())
	r.cancelFunc = cancel
	r.logger.Info("starting stream reader")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.logger.Info("reader goroutine stopped")

		// $ 代表只讀取啟動之後的訊息
		lastID := "$"
		for {
			if ctx.Err() != nil {
				return
			}
			streams, err := r.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{r.stream, lastID},
				Count:   10,
				Block:   r.options.block,
			}).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				r.logger.Error("read stream error", slog.Any("error", err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(r.options.retryDelay):
				}
				continue
			}
			for _, stream := range streams {
				for _, message := range stream.Messages {
					lastID = message.ID
					data, err := r.options.parseFunc(message.Values)
					if err != nil {
						r.logger.Error("parse message error", slog.String("messageId", message.ID), slog.Any("error", err))
						continue
					}
					select {
					case <-ctx.Done():
						return
					case r.downstream <- data:
					}
				}
			}
		}
	}()
}

// Subscribe 回傳解析後的訊息，Close 後通道會被關閉
func (r *StreamReader[T]) Subscribe() <-chan T {
	return r.downstream
}

func (r *StreamReader[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.logger.Info("closing stream reader")
	if r.cancelFunc != nil {
		r.cancelFunc()
	}
	r.wg.Wait()
	close(r.downstream)
	r.logger.Info("stream reader closed")
}
