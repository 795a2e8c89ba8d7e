package screens

import (
	"net/http"

	"liveserver/lobby"
	"liveserver/middlewares"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor はlobbyのエラー分類をHTTPステータスに対応付けます。
func statusFor(kind lobby.Kind) int {
	switch kind {
	case lobby.KindNotFound:
		return http.StatusNotFound
	case lobby.KindConflict, lobby.KindInvalidState:
		return http.StatusConflict
	case lobby.KindPermissionDenied:
		return http.StatusForbidden
	case lobby.KindInvalidArgument:
		return http.StatusBadRequest
	case lobby.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, logger *zap.Logger, err error) {
	kind := lobby.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.Error("リクエスト処理中にエラー発生", zap.String("path", c.Request.URL.Path), zap.Error(err))
	} else {
		logger.Info("リクエストを拒否しました", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": kind.String()})
}

func badRequest(c *gin.Context, logger *zap.Logger, err error) {
	logger.Info("不正なリクエスト", zap.String("path", c.Request.URL.Path), zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "kind": lobby.KindInvalidArgument.String()})
}

// requireUser はAuthMiddleware通過後のユーザーIDを返します。
func requireUser(c *gin.Context) (uint, bool) {
	userID, ok := middlewares.UserIDFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	}
	return userID, ok
}
