package screens

import (
	"context"
	"errors"
	"net/http"

	"liveserver/auth"
	"liveserver/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserService はハンドラーが使うユーザー操作です。auth.Serviceが実装します。
type UserService interface {
	CreateUser(ctx context.Context, name string, leaderCardID int) (string, error)
	GetUser(ctx context.Context, userID uint) (models.User, error)
	GetUsers(ctx context.Context, userIDs []uint) (map[uint]models.User, error)
	UpdateUser(ctx context.Context, userID uint, name string, leaderCardID int) error
}

// ユーザーを登録してトークンを返すハンドラー (認証不要)
func UserCreate(c *gin.Context, users UserService, logger *zap.Logger) {
	var req models.UserCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, logger, err)
		return
	}

	token, err := users.CreateUser(c.Request.Context(), req.UserName, req.LeaderCardID)
	if err != nil {
		logger.Error("ユーザーの作成に失敗しました", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ユーザーの作成に失敗しました"})
		return
	}
	c.JSON(http.StatusOK, models.UserCreateResponse{UserToken: token})
}

// 自分のユーザー情報 (トークンを除く) を返すハンドラー
func UserMe(c *gin.Context, users UserService, logger *zap.Logger) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	user, err := users.GetUser(c.Request.Context(), userID)
	if errors.Is(err, auth.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
		return
	}
	if err != nil {
		logger.Error("ユーザー情報の取得に失敗しました", zap.Uint("userID", userID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ユーザー情報の取得に失敗しました"})
		return
	}
	c.JSON(http.StatusOK, user.Safe())
}

// 名前とリーダーカードを更新するハンドラー
func UserUpdate(c *gin.Context, users UserService, logger *zap.Logger) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req models.UserCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, logger, err)
		return
	}

	err := users.UpdateUser(c.Request.Context(), userID, req.UserName, req.LeaderCardID)
	if errors.Is(err, auth.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
		return
	}
	if err != nil {
		logger.Error("ユーザー情報の更新に失敗しました", zap.Uint("userID", userID), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ユーザー情報の更新に失敗しました"})
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}
