package models

import (
	"time"
)

// RoomStatus はルームの状態。値はクライアントのWaitRoomStatusと一致させる
type RoomStatus int

const (
	RoomWaiting    RoomStatus = 1
	RoomInProgress RoomStatus = 2 // LiveStart
	RoomDisbanded  RoomStatus = 3 // Dissolution
)

func (s RoomStatus) String() string {
	switch s {
	case RoomWaiting:
		return "waiting"
	case RoomInProgress:
		return "in_progress"
	case RoomDisbanded:
		return "disbanded"
	default:
		return "unknown"
	}
}

// DefaultCapacity はcapacity未指定時のルーム定員
const DefaultCapacity = 4

// Room モデルの定義
type Room struct {
	RoomID      uint       `gorm:"column:room_id;primaryKey"`
	LiveID      int        `gorm:"not null;index"`
	HostID      uint       `gorm:"not null"`
	Capacity    int        `gorm:"not null;default:4"`
	Status      RoomStatus `gorm:"not null;default:1;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DisbandedAt *time.Time
	Members     []RoomMember `gorm:"foreignKey:RoomID;references:RoomID"`
}

func (Room) TableName() string { return "room" }
