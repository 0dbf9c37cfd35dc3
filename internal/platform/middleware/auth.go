package middleware

import (
	"context"
	"net/http"
	"strings"

	"groupchat-gateway/internal/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// UserIDKey gin.Context 中的用戶 ID
	UserIDKey = "user_id"
	// DevUserHeader 未啟用 JWT 時（本地開發）用來指定用戶
	DevUserHeader = "X-User-ID"
)

type userIDCtxKey struct{}

// Claims JWT 內容。用戶 ID 取 userId，缺少時使用 sub。
type Claims struct {
	UserID string `json:"userId,omitempty"`
	jwt.RegisteredClaims
}

// Identity 返回 token 代表的用戶
func (c *Claims) Identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}

// JWTMiddleware JWT 驗證中間件
type JWTMiddleware struct {
	secret     []byte
	cookieName string
	issuer     string
	enabled    bool
}

// NewJWTMiddleware 創建 JWT 中間件
func NewJWTMiddleware(secret, cookieName, issuer string, enabled bool) *JWTMiddleware {
	if cookieName == "" {
		cookieName = "token"
	}
	return &JWTMiddleware{
		secret:     []byte(secret),
		cookieName: cookieName,
		issuer:     issuer,
		enabled:    enabled,
	}
}

// GinMiddleware 驗證 token 並將用戶 ID 存入 context。
// allowQuery 為 true 時也接受 ?token=（瀏覽器的 websocket 無法設定 header）。
func (m *JWTMiddleware) GinMiddleware(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.enabled {
			userID := strings.TrimSpace(c.GetHeader(DevUserHeader))
			if userID == "" {
				userID = c.Query("user_id")
			}
			if ValidateUserID(userID) != nil {
				unauthorized(c, "Authentification requise")
				return
			}
			setUserID(c, userID)
			c.Next()
			return
		}

		token, ok := m.extractToken(c, allowQuery)
		if !ok {
			unauthorized(c, "Authentification requise")
			return
		}

		userID, err := m.Validate(token)
		if err != nil {
			logger.Debug(c.Request.Context(), "token 驗證失敗", logger.WithError(err))
			unauthorized(c, "Jeton invalide ou expiré")
			return
		}

		setUserID(c, userID)
		c.Next()
	}
}

// Validate 驗證 token 並返回用戶 ID
func (m *JWTMiddleware) Validate(tokenString string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}

	userID := claims.Identity()
	if err := ValidateUserID(userID); err != nil {
		return "", jwt.ErrTokenInvalidSubject
	}
	return userID, nil
}

func (m *JWTMiddleware) extractToken(c *gin.Context, allowQuery bool) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if cookie, err := c.Cookie(m.cookieName); err == nil && cookie != "" {
		return cookie, true
	}
	if allowQuery {
		if token := c.Query("token"); token != "" {
			return token, true
		}
	}
	return "", false
}

func setUserID(c *gin.Context, userID string) {
	c.Set(UserIDKey, userID)
	ctx := context.WithValue(c.Request.Context(), userIDCtxKey{}, userID)
	c.Request = c.Request.WithContext(ctx)
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success":    false,
		"message":    message,
		"request_id": GetRequestID(c),
	})
}

// GetUserID 從 gin.Context 取得已認證的用戶 ID
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// UserIDFromContext 從 context.Context 取得已認證的用戶 ID
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDCtxKey{}).(string)
	return id
}
