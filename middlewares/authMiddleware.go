package middlewares

import (
	"context"
	"errors"
	"net/http"

	"liveserver/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenResolver はトークンをユーザーIDに解決します。
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (uint, error)
}

// トークン検証を行い、ユーザーIDをコンテキストにセットするミドルウェア
func AuthMiddleware(resolver TokenResolver, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromHeader(c)
		if token == "" {
			logger.Warn("トークンが指定されていません", zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token is required"})
			return
		}

		userID, err := resolver.ResolveToken(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				logger.Warn("認証失敗", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
				return
			}
			logger.Error("トークンの検証中にエラー発生", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}
