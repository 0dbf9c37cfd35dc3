package httputil

import "groupchat-gateway/internal/apperr"

// API 錯誤代碼常數.
const (
	// 1000-1999: 認證相關錯誤 (401 Unauthorized).
	ErrorCodeUnauthenticated = 1001

	// 2000-2999: 參數相關錯誤 (400 Bad Request).
	ErrorCodeInvalidParameter = 2001

	// 3000-3999: 權限相關錯誤 (403 Forbidden).
	ErrorCodeForbidden = 3001

	// 4000-4999: 資源相關錯誤 (404 Not Found).
	ErrorCodeRecordNotFound = 4001

	// 5000-5999: 處理相關錯誤 (500 Internal Server Error).
	ErrorCodeProcessingFailed = 5001
)

// codeForKind 錯誤類型對應的 API 錯誤代碼.
func codeForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidArgument:
		return ErrorCodeInvalidParameter
	case apperr.KindForbidden:
		return ErrorCodeForbidden
	case apperr.KindNotFound:
		return ErrorCodeRecordNotFound
	default:
		return ErrorCodeProcessingFailed
	}
}
