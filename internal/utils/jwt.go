package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

var ErrInvalidFileToken = errors.New("invalid file token")

// FileClaims 綁定一個附件 ID，沒有過期時間，讓附件網址在上傳者離線後仍然有效
type FileClaims struct {
	FileID string `json:"fid"`
	jwt.StandardClaims
}

// FileSigner 簽發與驗證附件下載連結
type FileSigner struct {
	secret []byte
}

func NewFileSigner(secret string) *FileSigner {
	return &FileSigner{secret: []byte(secret)}
}

// GenerateFileToken 為附件生成簽名 token
func (s *FileSigner) GenerateFileToken(fileID string) (string, error) {
	claims := FileClaims{
		FileID: fileID,
		StandardClaims: jwt.StandardClaims{
			IssuedAt: time.Now().Unix(),
			Subject:  fileID,
		},
	}

	tokenClaims := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tokenClaims.SignedString(s.secret)
}

// ParseFileToken 解析並驗證附件 token
func (s *FileSigner) ParseFileToken(token string) (*FileClaims, error) {
	tokenClaims, err := jwt.ParseWithClaims(token, &FileClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFileToken, err)
	}

	claims, ok := tokenClaims.Claims.(*FileClaims)
	if !ok || !tokenClaims.Valid || claims.FileID == "" {
		return nil, ErrInvalidFileToken
	}
	return claims, nil
}
