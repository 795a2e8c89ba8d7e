package utils

import (
	"context"
	"time"

	"liveserver/lobby"
	"liveserver/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const cronJobTimeout = 5 * time.Minute

// RoomJanitor はcronから呼ばれるルームの後片付けです。lobby.Coordinatorが実装します。
type RoomJanitor interface {
	ExpireIdleRooms(ctx context.Context, idleFor time.Duration) (int, error)
	PurgeDisbanded(ctx context.Context, retention time.Duration) (int, error)
}

var _ RoomJanitor = (*lobby.Coordinator)(nil)

// CronCleaner はルームの定期クリーンナップを登録して開始します。停止は呼び出し元で行います。
func CronCleaner(janitor RoomJanitor, config models.Config, logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New()

	// 一定時間動きのない待機中ルームを解散するジョブ（毎時）
	idleFor := time.Duration(config.IdleRoomHours) * time.Hour
	if _, err := c.AddFunc("@hourly", func() {
		expireIdleRooms(janitor, idleFor, logger)
	}); err != nil {
		return nil, err
	}

	// 解散済みのルームを削除するジョブ（"分 時 日 月 曜日"）
	retention := time.Duration(config.DisbandedRetentionHours) * time.Hour
	if _, err := c.AddFunc("0 3 * * *", func() {
		purgeDisbanded(janitor, retention, logger)
	}); err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}

func expireIdleRooms(janitor RoomJanitor, idleFor time.Duration, logger *zap.Logger) {
	if idleFor <= 0 {
		return
	}
	logger.Info("放置されたルームを解散する処理を開始")
	ctx, cancel := context.WithTimeout(context.Background(), cronJobTimeout)
	defer cancel()
	n, err := janitor.ExpireIdleRooms(ctx, idleFor)
	if err != nil {
		logger.Error("放置されたルームの解散に失敗しました", zap.Int("rooms_expired", n), zap.Error(err))
		return
	}
	logger.Info("放置されたルームの解散完了", zap.Int("rooms_expired", n))
}

func purgeDisbanded(janitor RoomJanitor, retention time.Duration, logger *zap.Logger) {
	if retention <= 0 {
		return
	}
	logger.Info("解散済みのルームを削除する処理を開始")
	ctx, cancel := context.WithTimeout(context.Background(), cronJobTimeout)
	defer cancel()
	n, err := janitor.PurgeDisbanded(ctx, retention)
	if err != nil {
		logger.Error("解散済みのルーム削除に失敗しました", zap.Error(err))
		return
	}
	logger.Info("解散済みのルーム削除完了", zap.Int("rooms_deleted", n))
}
