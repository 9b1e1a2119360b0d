// Package provider 提供外部媒体生成服务的 HTTP 适配层
package provider

import "fmt"

// ErrorKind 生成服务错误分类
type ErrorKind int

const (
	// KindUnavailable 服务不可用（连接失败 / 5xx）
	KindUnavailable ErrorKind = iota
	// KindRateLimited 被上游限流（429）
	KindRateLimited
	// KindInvalidOutput 响应格式非法或缺少产物，重试无意义
	KindInvalidOutput
)

// Error 生成服务调用错误
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider error (status=%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable 判断错误是否可重试
func (e *Error) Retryable() bool {
	return e.Kind == KindUnavailable || e.Kind == KindRateLimited
}

// AsError 提取 *Error，非 provider 错误返回 nil
func AsError(err error) *Error {
	for err != nil {
		if pe, ok := err.(*Error); ok {
			return pe
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil
		}
		err = u.Unwrap()
	}
	return nil
}
