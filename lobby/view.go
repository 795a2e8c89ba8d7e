package lobby

import (
	"time"

	"liveserver/models"
)

// MemberView はRoomView内のメンバー情報。参加順に並びます。
type MemberView struct {
	UserID    uint                  `json:"user_id"`
	Diff      models.LiveDifficulty `json:"select_difficulty"`
	JoinSeq   uint64                `json:"join_seq"`
	IsHost    bool                  `json:"is_host"`
	InSession bool                  `json:"in_session"`
	Recorded  bool                  `json:"recorded"`
}

// RoomView はルーム状態のスナップショットです。ロック外で自由に使えます。
type RoomView struct {
	RoomID    uint              `json:"room_id"`
	LiveID    int               `json:"live_id"`
	HostID    uint              `json:"host_id"`
	Capacity  int               `json:"max_user_count"`
	Status    models.RoomStatus `json:"status"`
	Members   []MemberView      `json:"members"`
	Quorum    []uint            `json:"quorum,omitempty"`
	Version   uint64            `json:"version"` // ルームごとに単調増加
	UpdatedAt time.Time         `json:"updated_at"`
}

func (v RoomView) MemberCount() int { return len(v.Members) }

func (v RoomView) HasMember(userID uint) bool {
	for _, m := range v.Members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

func (v RoomView) MemberIDs() []uint {
	ids := make([]uint, len(v.Members))
	for i, m := range v.Members {
		ids[i] = m.UserID
	}
	return ids
}

// Info はルーム一覧用の要約を返します。
func (v RoomView) Info() models.RoomInfo {
	return models.RoomInfo{
		RoomID:          v.RoomID,
		LiveID:          v.LiveID,
		JoinedUserCount: len(v.Members),
		MaxUserCount:    v.Capacity,
	}
}

// Notifier はルーム状態が変わるたびに呼ばれます。
// ルームのロックを保持したまま呼び出すので、ブロックせず、Coordinatorを呼び返さないこと。
type Notifier interface {
	RoomChanged(view RoomView)
}

type nopNotifier struct{}

func (nopNotifier) RoomChanged(RoomView) {}
