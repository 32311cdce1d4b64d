// Package service file: internal/service/auth_service.go
package service

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var hmacKey = []byte("FrameRelaySecret_ChangeMe")

func init() {
	// 允许通过环境变量覆盖 JWT 密钥，增强安全性
	envKey := os.Getenv("FRAMERELAY_JWT_KEY")
	if envKey != "" {
		hmacKey = []byte(envKey)
		log.Println("信息: auth 使用环境变量 FRAMERELAY_JWT_KEY 设置的JWT密钥。")
	} else {
		log.Println("警告: auth 未找到环境变量 FRAMERELAY_JWT_KEY，将使用默认JWT密钥。强烈建议设置环境变量以增强安全性！")
	}
}

// Claim 定义 JWT 的载荷结构
type Claim struct {
	Subject string `json:"sub_name"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// ErrInvalidToken 表示 JWT 无效、过期或解析失败。
var ErrInvalidToken = errors.New("invalid or expired token")

// Authenticator 负责网关侧的令牌签发与校验。
type Authenticator struct{}

// NewAuthenticator 创建 Authenticator 实例
func NewAuthenticator() *Authenticator {
	return &Authenticator{}
}

// Sign 生成一个新的 JWT (有效期24小时)
func (a *Authenticator) Sign(subject, role string) (string, error) {
	claims := Claim{
		Subject: subject,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "FrameRelay",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(hmacKey)
	if err != nil {
		return "", fmt.Errorf("签名 JWT 失败: %w", err)
	}
	return signedToken, nil
}

// Parse 解析并验证 JWT 字符串
func (a *Authenticator) Parse(tokenString string) (*Claim, error) {
	claims := &Claim{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("非预期的签名方法: %v", token.Header["alg"])
		}
		return hmacKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, jwt.ErrTokenExpired)
		}
		return nil, fmt.Errorf("%w (detail: %v)", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
