package auth

import (
	"errors"
	"fmt"
	"time"

	"liveserver/models"

	jwt "github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrUserNotFound = errors.New("user not found")
)

// Tokens はユーザートークン (HS256で署名したJWT) の発行と検証を行います。
// トークンは一度発行したら変わらないため有効期限を持ちません。
type Tokens struct {
	key []byte
	now func() time.Time
}

func NewTokens(secret string) *Tokens {
	return &Tokens{key: []byte(secret), now: time.Now}
}

// Issue はユーザーIDとランダムなjtiを内包したトークンを発行します。
func (t *Tokens) Issue(userID uint) (string, error) {
	claims := &models.MyClaims{
		UserID: userID,
		StandardClaims: jwt.StandardClaims{
			Id:       uuid.NewString(),
			IssuedAt: t.now().Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.key)
}

// Parse は署名を検証してクレームを返します。データベースは参照しません。
func (t *Tokens) Parse(tokenString string) (*models.MyClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	claims := &models.MyClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.key, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == 0 || claims.Id == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
