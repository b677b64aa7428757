package listing

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration      = errors.New("configuration error")
	ErrValidation         = errors.New("validation error")
	ErrResponseFormat     = errors.New("ai response format error")
	ErrIncompleteResponse = errors.New("ai response incomplete")
	ErrUpstream           = errors.New("upstream error")
	ErrNoValidUploads     = errors.New("no valid images were uploaded")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
)

// ConfigurationError 表示缺少必要設定，應在任何網路呼叫前回報
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not configured", e.Setting)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// ValidationError 列出不合法的欄位
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "invalid input"
	}
	if len(e.Fields) == 0 {
		return msg
	}
	return fmt.Sprintf("%s: %s", msg, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ResponseFormatError 表示 AI 回應無法解析為 JSON，Raw 保留原始文字供除錯
type ResponseFormatError struct {
	Raw string
	Err error
}

func (e *ResponseFormatError) Error() string {
	return fmt.Sprintf("failed to parse AI response: %v", e.Err)
}

func (e *ResponseFormatError) Unwrap() []error { return []error{ErrResponseFormat, e.Err} }

// IncompleteResponseError 表示 AI 回應缺少必要欄位
type IncompleteResponseError struct {
	Missing []string
}

func (e *IncompleteResponseError) Error() string {
	return fmt.Sprintf("AI response missing required fields: %s", strings.Join(e.Missing, ", "))
}

func (e *IncompleteResponseError) Unwrap() error { return ErrIncompleteResponse }

// UpstreamError 包裝外部服務回傳的錯誤，不會自動重試
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() []error { return []error{ErrUpstream, e.Err} }

// NoValidUploadsError 表示整批圖片都沒有上傳成功
type NoValidUploadsError struct {
	Submitted int
	Failures  []UploadFailure
}

func (e *NoValidUploadsError) Error() string {
	return fmt.Sprintf("no valid images were uploaded (submitted=%d, failed=%d)", e.Submitted, len(e.Failures))
}

func (e *NoValidUploadsError) Unwrap() error { return ErrNoValidUploads }

type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	if e.Reason == "" {
		return "unauthorized"
	}
	return "unauthorized: " + e.Reason
}

func (e *UnauthorizedError) Unwrap() error { return ErrUnauthorized }

type ForbiddenError struct {
	Action string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("not allowed to %s", e.Action)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// NotFoundError 表示操作目標不存在
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Unwrap() error { return ErrConflict }
