package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"liveserver/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service はユーザーの登録・更新とトークンからユーザーIDへの解決を行います。
// 解決結果はRedisにキャッシュします (rdbがnilならキャッシュしない)。
type Service struct {
	db     *gorm.DB
	rdb    *redis.Client
	tokens *Tokens
	ttl    time.Duration
	logger *zap.Logger
}

func NewService(db *gorm.DB, rdb *redis.Client, tokens *Tokens, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{db: db, rdb: rdb, tokens: tokens, ttl: ttl, logger: logger}
}

func tokenCacheKey(jti string) string {
	return "token:" + jti
}

// CreateUser はユーザーを登録し、発行したトークンを返します。
func (s *Service) CreateUser(ctx context.Context, name string, leaderCardID int) (string, error) {
	var token string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// IDが採番されるまでは一意な仮トークンを入れておく
		user := models.User{Name: name, LeaderCardID: leaderCardID, Token: "pending:" + uuid.NewString()}
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		var err error
		token, err = s.tokens.Issue(user.ID)
		if err != nil {
			return err
		}
		return tx.Model(&user).Update("token", token).Error
	})
	if err != nil {
		s.logger.Error("ユーザー作成中にエラー発生", zap.Error(err))
		return "", fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}
	return token, nil
}

// ResolveToken はトークンに対応するユーザーIDを返します。
// 署名が不正・未登録のトークンはErrInvalidTokenです。
func (s *Service) ResolveToken(ctx context.Context, token string) (uint, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return 0, err
	}

	key := tokenCacheKey(claims.Id)
	if s.rdb != nil {
		cached, err := s.rdb.Get(ctx, key).Result()
		switch {
		case err == nil:
			if id, perr := strconv.ParseUint(cached, 10, 64); perr == nil && uint(id) == claims.UserID {
				return claims.UserID, nil
			}
		case errors.Is(err, redis.Nil):
		default:
			// キャッシュが使えなくてもデータベースで解決する
			s.logger.Warn("Redisからトークン情報を取得できませんでした", zap.Error(err))
		}
	}

	var user models.User
	err = s.db.WithContext(ctx).Select("id").Where("token = ?", token).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrInvalidToken
	}
	if err != nil {
		return 0, fmt.Errorf("トークンの照会に失敗しました: %w", err)
	}
	if user.ID != claims.UserID {
		s.logger.Warn("トークンのユーザーIDが一致しません", zap.Uint("userID", user.ID))
		return 0, ErrInvalidToken
	}

	if s.rdb != nil {
		if err := s.rdb.Set(ctx, key, strconv.FormatUint(uint64(user.ID), 10), s.ttl).Err(); err != nil {
			s.logger.Warn("トークン情報をRedisに保存できませんでした", zap.Error(err))
		}
	}
	return user.ID, nil
}

func (s *Service) GetUser(ctx context.Context, userID uint) (models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return user, ErrUserNotFound
	}
	return user, err
}

// GetUsers はIDをキーにしたユーザーのマップを返します。存在しないIDは含まれません。
func (s *Service) GetUsers(ctx context.Context, userIDs []uint) (map[uint]models.User, error) {
	users := make(map[uint]models.User, len(userIDs))
	if len(userIDs) == 0 {
		return users, nil
	}
	var found []models.User
	if err := s.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&found).Error; err != nil {
		return nil, err
	}
	for _, u := range found {
		users[u.ID] = u
	}
	return users, nil
}

// UpdateUser は名前とリーダーカードを更新します。トークンは変更しません。
func (s *Service) UpdateUser(ctx context.Context, userID uint, name string, leaderCardID int) error {
	result := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{"name": name, "leader_card_id": leaderCardID})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
