package service

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims 访问令牌声明
// 令牌由外部身份系统签发，本服务只校验签名并读取角色。
type JWTClaims struct {
	ActorID uint   `json:"actor_id"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// NormalizedRole 返回小写去空格后的角色名
func (c *JWTClaims) NormalizedRole() string {
	return strings.ToLower(strings.TrimSpace(c.Role))
}

// IssueToken 使用 HS256 签发访问令牌（供种子脚本与测试使用）
func IssueToken(secretKey string, actorID uint, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &JWTClaims{
		ActorID: actorID,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secretKey))
}
