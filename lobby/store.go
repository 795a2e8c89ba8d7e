package lobby

import (
	"context"
	"time"

	"liveserver/models"
)

// RoomUpdate は1つの操作が確定させるルーム行の状態です。
type RoomUpdate struct {
	RoomID uint
	HostID uint
	Status models.RoomStatus
	At     time.Time
}

// Store はルームとメンバーの永続化先です。
// 各メソッドは1トランザクションで完結し、失敗時は何も書き込まないこと。
type Store interface {
	// CreateRoom はroom.RoomIDとhost.RoomIDを採番して保存します。
	CreateRoom(ctx context.Context, room *models.Room, host *models.RoomMember) error
	AddMember(ctx context.Context, member *models.RoomMember, update RoomUpdate) error
	RemoveMember(ctx context.Context, memberID uint, update RoomUpdate) error
	// DisbandRoom は全メンバーを削除し、ルームを解散状態にします。
	DisbandRoom(ctx context.Context, update RoomUpdate) error
	// StartSession はメンバー全員の結果をリセットし、参加者 (in_session) として記録します。
	// 後から入室したメンバーは次のStartSessionまで参加者になりません。
	StartSession(ctx context.Context, update RoomUpdate) error
	// RecordResult はメンバー行を更新し、user.score_sumにスコアを加算します。
	// 既に記録済みならErrAlreadyRecordedを返します。
	RecordResult(ctx context.Context, member *models.RoomMember, update RoomUpdate) error
	// UpdateRoom はルーム行だけを書き換えます。
	UpdateRoom(ctx context.Context, update RoomUpdate) error
	// LoadActiveRooms は解散していないルームをメンバー付きで返します。
	LoadActiveRooms(ctx context.Context) ([]models.Room, error)
	// PurgeDisbanded はbefore以前に解散したルームを削除し、そのIDを返します。
	PurgeDisbanded(ctx context.Context, before time.Time) ([]uint, error)
}
