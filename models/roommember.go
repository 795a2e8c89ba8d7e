package models

import (
	"fmt"
	"math"
	"time"
)

// LiveDifficulty は難易度
type LiveDifficulty int

const (
	DifficultyNormal LiveDifficulty = 1
	DifficultyHard   LiveDifficulty = 2
)

func (d LiveDifficulty) Valid() bool {
	return d == DifficultyNormal || d == DifficultyHard
}

// JudgeCountListLen はjudge_count_listの要素数 (perfect, great, good, bad, miss)
const JudgeCountListLen = 5

// JudgeCounts は判定ごとの回数
type JudgeCounts struct {
	Perfect int `gorm:"not null;default:0"`
	Great   int `gorm:"not null;default:0"`
	Good    int `gorm:"not null;default:0"`
	Bad     int `gorm:"not null;default:0"`
	Miss    int `gorm:"not null;default:0"`
}

// JudgeCountsFromList はクライアントから送られる配列を変換します。
func JudgeCountsFromList(list []int) (JudgeCounts, error) {
	if len(list) != JudgeCountListLen {
		return JudgeCounts{}, fmt.Errorf("judge_count_list must have %d elements, got %d", JudgeCountListLen, len(list))
	}
	for i, n := range list {
		if n < 0 {
			return JudgeCounts{}, fmt.Errorf("judge_count_list[%d] is negative", i)
		}
	}
	return JudgeCounts{Perfect: list[0], Great: list[1], Good: list[2], Bad: list[3], Miss: list[4]}, nil
}

func (j JudgeCounts) List() []int {
	return []int{j.Perfect, j.Great, j.Good, j.Bad, j.Miss}
}

func (j JudgeCounts) Valid() bool {
	return j.Perfect >= 0 && j.Great >= 0 && j.Good >= 0 && j.Bad >= 0 && j.Miss >= 0
}

// RoomMember はルームへの参加とプレイ結果 (room_id, member_id が複合主キー)
type RoomMember struct {
	RoomID    uint           `gorm:"primaryKey;autoIncrement:false"`
	MemberID  uint           `gorm:"primaryKey;autoIncrement:false;index"`
	JoinSeq   uint64         `gorm:"not null"` // ルーム内の参加順
	Diff      LiveDifficulty `gorm:"not null;default:1"`
	Score     int64          `gorm:"not null;default:0"`
	Judges    JudgeCounts    `gorm:"embedded"`
	InSession bool           `gorm:"not null;default:false"` // セッション開始時に在室していた
	Recorded  bool           `gorm:"not null;default:false"` // 今回のセッションで結果送信済み

	CreatedAt time.Time
}

func (RoomMember) TableName() string { return "room_member" }

// MaxScore は1回のプレイで受け付けるスコアの上限
const MaxScore = math.MaxInt32
