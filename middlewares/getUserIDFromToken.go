package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const userIDKey = "userID"

// Authorizationヘッダーからトークンを取り出します。Bearerプレフィックスは任意です。
// ブラウザのWebSocketはヘッダーを付けられないため、クエリのtokenも受け付けます。
func tokenFromHeader(c *gin.Context) string {
	tokenString := c.GetHeader("Authorization")
	if tokenString == "" {
		tokenString = c.Query("token")
	}
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	return strings.TrimSpace(tokenString)
}

// AuthMiddlewareがセットしたユーザーIDを返します。
func UserIDFromContext(c *gin.Context) (uint, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	userID, ok := v.(uint)
	return userID, ok && userID != 0
}
