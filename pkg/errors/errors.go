package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error представляет кастомную ошибку с дополнительной информацией
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// ErrorCode представляет код ошибки
type ErrorCode string

// Определение кодов ошибок
const (
	ErrConfig   ErrorCode = "CONFIG_ERROR"
	ErrBind     ErrorCode = "BIND_ERROR"
	ErrServe    ErrorCode = "SERVE_ERROR"
	ErrNotFound ErrorCode = "NOT_FOUND"
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// Коды завершения процесса
const (
	ExitOK     = 0
	ExitError  = 1
	ExitConfig = 2
)

// Error возвращает сообщение об ошибке
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap возвращает причину ошибки
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is проверяет, является ли ошибка указанного типа
func (e *Error) Is(target error) bool {
	if targetError, ok := target.(*Error); ok {
		return e.Code == targetError.Code
	}
	return false
}

// New создает новую кастомную ошибку
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap оборачивает существующую ошибку в кастомную
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// WithDetails добавляет детали к ошибке
func (e *Error) WithDetails(details string) *Error {
	if e == nil {
		return nil
	}
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// CodeOf возвращает код первой кастомной ошибки в цепочке или ErrInternal
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ErrInternal
}

// HasCode проверяет, есть ли в цепочке ошибка с заданным кодом
func HasCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, &Error{Code: code})
}

// ExitCode возвращает код завершения процесса для ошибки
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if CodeOf(err) == ErrConfig {
		return ExitConfig
	}
	return ExitError
}

// HTTPStatus возвращает соответствующий HTTP статус для ошибки
func (e *Error) HTTPStatus() int {
	if e == nil {
		return http.StatusOK
	}

	switch e.Code {
	case ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON отправляет JSON ответ с ошибкой
func WriteJSON(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus())

	response := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    err.Code,
			"message": err.Message,
			"details": err.Details,
		},
	}

	jsonData, jsonErr := json.Marshal(response)
	if jsonErr != nil {
		w.Write([]byte(`{"error":{"code":"INTERNAL_ERROR","message":"Internal server error"}}`))
		return
	}

	w.Write(jsonData)
}

// Middleware перехватывает панику в обработчике и отвечает JSON ошибкой 500
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}
				err := New(ErrInternal, "Internal server error").
					WithDetails(fmt.Sprintf("panic: %v", recovered))
				WriteJSON(w, err)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
