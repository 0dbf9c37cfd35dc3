package httputil

import (
	"errors"
	"net/http"
	"strings"

	"groupchat-gateway/internal/apperr"
	"groupchat-gateway/internal/platform/logger"
	"groupchat-gateway/internal/platform/middleware"

	"github.com/gin-gonic/gin"
)

// 預設的用戶可見訊息
const (
	msgInternal       = "Erreur interne du serveur"
	msgInvalidRequest = "Requête invalide"
)

// RespondError 將服務層錯誤轉換為 {success:false, message, code, request_id}
func RespondError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		appErr = apperr.Internal(msgInternal, err)
	}

	status := appErr.HTTPStatus()
	message := appErr.Message
	if status >= http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "API 錯誤",
			logger.WithError(err),
			logger.WithUserID(middleware.GetUserID(c)),
			logger.WithDetails(map[string]interface{}{
				"request_id": middleware.GetRequestID(c),
				"path":       c.Request.URL.Path,
				"method":     c.Request.Method,
				"status":     status,
			}))
		if message == "" || !shouldShowError(errors.New(message)) {
			message = msgInternal
		}
	}

	c.JSON(status, gin.H{
		"success":    false,
		"message":    message,
		"code":       codeForKind(appErr.Kind),
		"request_id": middleware.GetRequestID(c),
	})
}

// shouldShowError 判斷是否可以向用戶顯示錯誤詳情
func shouldShowError(err error) bool {
	if err == nil {
		return false
	}

	// 不應顯示的錯誤關鍵字（可能洩露敏感信息）
	dangerousKeywords := []string{
		"mongo",
		"database",
		"connection",
		"password",
		"token",
		"secret",
		"credential",
		"redis",
		"grpc",
		"stack",
		"panic",
	}

	lowerMsg := strings.ToLower(err.Error())
	for _, keyword := range dangerousKeywords {
		if strings.Contains(lowerMsg, keyword) {
			return false
		}
	}

	return true
}

// BadRequest 請求格式錯誤（綁定失敗等）
func BadRequest(c *gin.Context, message string) {
	if message == "" {
		message = msgInvalidRequest
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"success":    false,
		"message":    message,
		"code":       ErrorCodeInvalidParameter,
		"request_id": middleware.GetRequestID(c),
	})
}
