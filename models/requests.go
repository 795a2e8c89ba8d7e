package models

// UserCreateRequest は /user/create と /user/update のリクエスト
type UserCreateRequest struct {
	UserName     string `json:"user_name" binding:"required"`
	LeaderCardID int    `json:"leader_card_id"`
}

type UserCreateResponse struct {
	UserToken string `json:"user_token"`
}

type RoomIDRequest struct {
	RoomID uint `json:"room_id" binding:"required"`
}

type CreateRoomRequest struct {
	LiveID           int            `json:"live_id"`
	SelectDifficulty LiveDifficulty `json:"select_difficulty"`
	Capacity         *int           `json:"max_user_count,omitempty"` // 未指定ならデフォルト定員
}

type RoomListRequest struct {
	LiveID int `json:"live_id"` // 0なら全ライブ
}

type RoomInfo struct {
	RoomID          uint `json:"room_id"`
	LiveID          int  `json:"live_id"`
	JoinedUserCount int  `json:"joined_user_count"`
	MaxUserCount    int  `json:"max_user_count"`
}

type JoinRoomRequest struct {
	RoomID           uint           `json:"room_id" binding:"required"`
	SelectDifficulty LiveDifficulty `json:"select_difficulty"`
}

// JoinRoomResult は入室リクエストの結果
type JoinRoomResult int

const (
	JoinOK            JoinRoomResult = 1
	JoinRoomFull      JoinRoomResult = 2
	JoinDisbanded     JoinRoomResult = 3
	JoinOtherError    JoinRoomResult = 4
	JoinRoomNotFound  JoinRoomResult = 5
	JoinAlreadyJoined JoinRoomResult = 6
)

func (r JoinRoomResult) String() string {
	switch r {
	case JoinOK:
		return "OK"
	case JoinRoomFull:
		return "RoomFull"
	case JoinDisbanded:
		return "Disbanded"
	case JoinRoomNotFound:
		return "RoomNotFound"
	case JoinAlreadyJoined:
		return "AlreadyJoined"
	default:
		return "OtherError"
	}
}

type JoinRoomResponse struct {
	JoinRoomResult JoinRoomResult `json:"join_room_result"`
}

type RoomUser struct {
	UserID           uint           `json:"user_id"`
	Name             string         `json:"name"`
	LeaderCardID     int            `json:"leader_card_id"`
	SelectDifficulty LiveDifficulty `json:"select_difficulty"`
	IsMe             bool           `json:"is_me"`
	IsHost           bool           `json:"is_host"`
}

type WaitRoomResponse struct {
	Status       RoomStatus `json:"status"`
	RoomUserList []RoomUser `json:"room_user_list"`
}

type EndRoomRequest struct {
	RoomID         uint  `json:"room_id" binding:"required"`
	JudgeCountList []int `json:"judge_count_list"`
	Score          int64 `json:"score"`
}

type ResultUser struct {
	UserID         uint  `json:"user_id"`
	JudgeCountList []int `json:"judge_count_list"`
	Score          int64 `json:"score"`
}

type ResultRoomResponse struct {
	ResultUserList []ResultUser `json:"result_user_list"`
}
