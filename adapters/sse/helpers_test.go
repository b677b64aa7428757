package sse_test

import (
	"io"
	"log/slog"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Message 表示一個測試用的 SSE 訊息
type Message struct {
	Topic string
	Data  string
}

type chanSource[T any] struct {
	ch chan T
}

func (s chanSource[T]) Subscribe() <-chan T {
	return s.ch
}
