// Package apperr 定義訊息服務的錯誤分類.
//
// 每種錯誤同時對應 gRPC 狀態碼與 HTTP 狀態碼，處理器只需呼叫
// httputil.RespondError 即可轉換為 {success:false, message} 回應。
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind 錯誤類型
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindForbidden:
		return "Forbidden"
	case KindInvalidArgument:
		return "InvalidArgument"
	default:
		return "Internal"
	}
}

// Error 帶分類的應用錯誤
type Error struct {
	Kind    Kind
	Message string // 可向用戶顯示的訊息
	Err     error  // 內部原因，不對外顯示
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// GRPCStatus 讓 status.FromError 能直接轉換
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Code(), e.Message)
}

// Code 對應的 gRPC 狀態碼
func (e *Error) Code() codes.Code {
	switch e.Kind {
	case KindNotFound:
		return codes.NotFound
	case KindForbidden:
		return codes.PermissionDenied
	case KindInvalidArgument:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// HTTPStatus 對應的 HTTP 狀態碼
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// NotFound 資源不存在或無權訪問
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Forbidden 已認證但無權執行
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// InvalidArgument 參數錯誤
func InvalidArgument(message string) *Error {
	return &Error{Kind: KindInvalidArgument, Message: message}
}

// Internal 包裝非預期錯誤
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf 取得錯誤類型，非 *Error 一律視為 Internal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is 判斷錯誤是否為指定類型
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
