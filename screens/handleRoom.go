package screens

import (
	"net/http"

	"liveserver/lobby"
	"liveserver/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ルームを作成し、作成者をホストとして入室させるハンドラー
func RoomCreate(c *gin.Context, coord *lobby.Coordinator, defaultCapacity int, logger *zap.Logger) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req models.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, logger, err)
		return
	}

	capacity := defaultCapacity
	if req.Capacity != nil {
		capacity = *req.Capacity
	}
	roomID, err := coord.CreateRoom(c.Request.Context(), userID, req.LiveID, req.SelectDifficulty, capacity)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": roomID})
}

// ライブごとのルーム一覧を返すハンドラー
func RoomList(c *gin.Context, coord *lobby.Coordinator, logger *zap.Logger) {
	var req models.RoomListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_info_list": coord.ListRooms(req.LiveID)})
}

// 入室ハンドラー。満室や解散済みはエラーではなく結果コードで返します。
func RoomJoin(c *gin.Context, coord *lobby.Coordinator, logger *zap.Logger) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req models.JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, logger, err)
		return
	}

	result, err := coord.JoinRoom(c.Request.Context(), req.RoomID, userID, req.SelectDifficulty)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, models.JoinRoomResponse{JoinRoomResult: result})
}

// 待機画面のポーリング用ハンドラー。ルームの状態とメンバー一覧を返します。
func RoomWait(c *gin.Context, coord *lobby.Coordinator, users UserService, logger *zap.Logger) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req models.RoomIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, logger, err)
		return
	}

	view, err := coord.GetRoomState(req.RoomID)
	if err != nil {
		respondError(c, logger, err)
		return
	}

	profiles, err := users.GetUsers(c.Request.Context(), view.MemberIDs())
	if err != nil {
		logger.Error("メンバー情報の取得に失敗しました", zap.Uint("roomID", req.RoomID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "メンバー情報の取得に失敗しました"})
		return
	}

	list := make([]models.RoomUser, 0, len(view.Members))
	for _, m := range view.Members {
		profile := profiles[m.UserID]
		list = append(list, models.RoomUser{
			UserID:           m.UserID,
			Name:             profile.Name,
			LeaderCardID:     profile.LeaderCardID,
			SelectDifficulty: m.Diff,
			IsMe:             m.UserID == userID,
			IsHost:           m.IsHost,
		})
	}
	c.JSON(http.StatusOK, models.WaitRoomResponse{Status: view.Status, RoomUserList: list})
}

// ホストがライブを開始するハンドラー
func RoomStart(c *gin.Context, coord *lobby.Coordinator, logger *zap.Logger) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req models.RoomIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, logger, err)
		return
	}

	if err := coord.StartSession(c.Request.Context(), req.RoomID, userID); err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// ライブ終了時にスコアと判定数を記録するハンドラー
func RoomEnd(c *gin.Context, coord *lobby.Coordinator, logger *zap.Logger) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req models.EndRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, logger, err)
		return
	}
	judges, err := models.JudgeCountsFromList(req.JudgeCountList)
	if err != nil {
		badRequest(c, logger, err)
		return
	}

	// 難易度は入室時に選んだものをそのまま使う
	if err := coord.RecordResult(c.Request.Context(), req.RoomID, userID, 0, req.Score, judges); err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// 記録済みの結果をスコア順に返すハンドラー
func RoomResult(c *gin.Context, coord *lobby.Coordinator, logger *zap.Logger) {
	if _, ok := requireUser(c); !ok {
		return
	}
	var req models.RoomIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, logger, err)
		return
	}

	results, err := coord.AggregateRoomResults(req.RoomID)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	list := make([]models.ResultUser, 0, len(results))
	for _, r := range results {
		list = append(list, models.ResultUser{UserID: r.UserID, JudgeCountList: r.Judges.List(), Score: r.Score})
	}
	c.JSON(http.StatusOK, models.ResultRoomResponse{ResultUserList: list})
}

// 退室ハンドラー。ホストが抜けた場合は次のメンバーにホストが移ります。
func RoomLeave(c *gin.Context, coord *lobby.Coordinator, logger *zap.Logger) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req models.RoomIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, logger, err)
		return
	}

	if err := coord.LeaveRoom(c.Request.Context(), req.RoomID, userID); err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// ホストがルームを解散するハンドラー
func RoomDisband(c *gin.Context, coord *lobby.Coordinator, logger *zap.Logger) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req models.RoomIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, logger, err)
		return
	}

	if err := coord.DisbandRoom(c.Request.Context(), req.RoomID, userID); err != nil {
		respondError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}
