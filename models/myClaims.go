package models

import (
	jwt "github.com/dgrijalva/jwt-go"
)

// MyClaims はユーザートークンに内包するクレームです。
// トークンは不変なので有効期限は設定しません。
type MyClaims struct {
	UserID uint `json:"userid"`
	jwt.StandardClaims
}
