package internal

import "errors"

// 错误分类。调用方使用 errors.Is 判断，具体错误通过 fmt.Errorf("%w: ...") 包装。
var (
	ErrValidation        = errors.New("validation error")
	ErrUpstreamFetch     = errors.New("upstream fetch error")
	ErrSourceNotFound    = errors.New("source not found")
	ErrEngineUnavailable = errors.New("audit engine unavailable")
	ErrMalformedResponse = errors.New("malformed engine response")
	ErrConfiguration     = errors.New("configuration error")
)

// ValidationError 输入校验失败，Message 直接展示给用户
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError 构造校验错误
func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}
