package screens

import (
	"net/http"
	"strconv"

	"liveserver/broadcast"
	"liveserver/lobby"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ルーム状態の変更をWebSocketで購読するハンドラー。メンバーのみ購読できます。
func RoomSubscribe(c *gin.Context, coord *lobby.Coordinator, hub *broadcast.Hub, logger *zap.Logger) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	roomID, err := strconv.ParseUint(c.Param("roomID"), 10, 64)
	if err != nil {
		badRequest(c, logger, err)
		return
	}

	view, err := coord.GetRoomState(uint(roomID))
	if err != nil {
		respondError(c, logger, err)
		return
	}
	if !view.HasMember(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "ルームのメンバーではありません", "kind": lobby.KindPermissionDenied.String()})
		return
	}

	current := func() (lobby.RoomView, error) { return coord.GetRoomState(view.RoomID) }
	if err := hub.Serve(c.Writer, c.Request, view.RoomID, userID, current); err != nil {
		logger.Warn("購読を開始できませんでした", zap.Uint("roomID", view.RoomID), zap.Error(err))
	}
}
