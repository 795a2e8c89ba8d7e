package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"liveserver/lobby"
	"liveserver/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoomStore は room / room_member テーブルに対する lobby.Store の実装です。
type RoomStore struct {
	db *gorm.DB
}

var _ lobby.Store = (*RoomStore)(nil)

func NewRoomStore(db *gorm.DB) *RoomStore {
	return &RoomStore{db: db}
}

// updateRoom はルーム行のホスト・状態・更新時刻を書き換えます。
func updateRoom(tx *gorm.DB, u lobby.RoomUpdate) error {
	fields := map[string]interface{}{
		"host_id":    u.HostID,
		"status":     int(u.Status),
		"updated_at": u.At,
	}
	if u.Status == models.RoomDisbanded {
		fields["disbanded_at"] = u.At
	}
	result := tx.Model(&models.Room{}).Where("room_id = ?", u.RoomID).Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("room %d が見つかりません", u.RoomID)
	}
	return nil
}

func (s *RoomStore) CreateRoom(ctx context.Context, room *models.Room, host *models.RoomMember) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(room).Error; err != nil {
			return fmt.Errorf("ルームの作成に失敗しました: %w", err)
		}
		host.RoomID = room.RoomID
		if err := tx.Create(host).Error; err != nil {
			return fmt.Errorf("ホストの登録に失敗しました: %w", err)
		}
		return nil
	})
}

func (s *RoomStore) AddMember(ctx context.Context, member *models.RoomMember, u lobby.RoomUpdate) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(member).Error; err != nil {
			return fmt.Errorf("メンバーの登録に失敗しました: %w", err)
		}
		return updateRoom(tx, u)
	})
}

func (s *RoomStore) RemoveMember(ctx context.Context, memberID uint, u lobby.RoomUpdate) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("room_id = ? AND member_id = ?", u.RoomID, memberID).Delete(&models.RoomMember{})
		if result.Error != nil {
			return fmt.Errorf("メンバーの削除に失敗しました: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("room %d にメンバー %d がいません", u.RoomID, memberID)
		}
		return updateRoom(tx, u)
	})
}

func (s *RoomStore) DisbandRoom(ctx context.Context, u lobby.RoomUpdate) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", u.RoomID).Delete(&models.RoomMember{}).Error; err != nil {
			return fmt.Errorf("メンバーの削除に失敗しました: %w", err)
		}
		return updateRoom(tx, u)
	})
}

func (s *RoomStore) StartSession(ctx context.Context, u lobby.RoomUpdate) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// この時点で在室しているメンバーだけが参加者になる
		err := tx.Model(&models.RoomMember{}).Where("room_id = ?", u.RoomID).Updates(map[string]interface{}{
			"score":      0,
			"perfect":    0,
			"great":      0,
			"good":       0,
			"bad":        0,
			"miss":       0,
			"in_session": true,
			"recorded":   false,
		}).Error
		if err != nil {
			return fmt.Errorf("結果のリセットに失敗しました: %w", err)
		}
		return updateRoom(tx, u)
	})
}

func (s *RoomStore) UpdateRoom(ctx context.Context, u lobby.RoomUpdate) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return updateRoom(tx, u)
	})
}

func (s *RoomStore) RecordResult(ctx context.Context, member *models.RoomMember, u lobby.RoomUpdate) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// recorded = false の行だけを更新することで二重記録を防ぐ
		result := tx.Model(&models.RoomMember{}).
			Where("room_id = ? AND member_id = ? AND recorded = ?", member.RoomID, member.MemberID, false).
			Updates(map[string]interface{}{
				"diff":     int(member.Diff),
				"score":    member.Score,
				"perfect":  member.Judges.Perfect,
				"great":    member.Judges.Great,
				"good":     member.Judges.Good,
				"bad":      member.Judges.Bad,
				"miss":     member.Judges.Miss,
				"recorded": true,
			})
		if result.Error != nil {
			return fmt.Errorf("結果の保存に失敗しました: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			var existing models.RoomMember
			err := tx.Where("room_id = ? AND member_id = ?", member.RoomID, member.MemberID).First(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("room %d にメンバー %d がいません", member.RoomID, member.MemberID)
			}
			if err != nil {
				return err
			}
			return lobby.ErrAlreadyRecorded
		}

		result = tx.Model(&models.User{}).Where("id = ?", member.MemberID).
			Update("score_sum", gorm.Expr("score_sum + ?", member.Score))
		if result.Error != nil {
			return fmt.Errorf("累計スコアの更新に失敗しました: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("user %d が見つかりません", member.MemberID)
		}
		return updateRoom(tx, u)
	})
}

func (s *RoomStore) LoadActiveRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	err := s.db.WithContext(ctx).
		Preload("Members").
		Where("status <> ?", int(models.RoomDisbanded)).
		Order("room_id").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("ルームの読み込みに失敗しました: %w", err)
	}
	return rooms, nil
}

func (s *RoomStore) PurgeDisbanded(ctx context.Context, before time.Time) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Room{}).
			Where("status = ? AND disbanded_at < ?", int(models.RoomDisbanded), before).
			Pluck("room_id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("room_id IN ?", ids).Delete(&models.RoomMember{}).Error; err != nil {
			return err
		}
		return tx.Where("room_id IN ?", ids).Delete(&models.Room{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("解散済みルームの削除に失敗しました: %w", err)
	}
	return ids, nil
}
