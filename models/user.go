package models

import (
	"gorm.io/gorm"
)

// User モデルの定義
type User struct {
	gorm.Model
	Name         string `gorm:"not null"`
	Token        string `gorm:"uniqueIndex;not null"` // 発行後は変更しない
	LeaderCardID int    `gorm:"not null;default:0"`
	ScoreSum     int64  `gorm:"not null;default:0"` // 累計スコア
}

func (User) TableName() string { return "user" }

// SafeUser はトークンを含まないUser
type SafeUser struct {
	ID           uint   `json:"id"`
	Name         string `json:"name"`
	LeaderCardID int    `json:"leader_card_id"`
	ScoreSum     int64  `json:"score_sum"`
}

func (u User) Safe() SafeUser {
	return SafeUser{ID: u.ID, Name: u.Name, LeaderCardID: u.LeaderCardID, ScoreSum: u.ScoreSum}
}
