package authz

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid 身份令牌无效
var ErrTokenInvalid = errors.New("actor token invalid")

// ActorClaims 操作者身份令牌载荷，由外部身份服务签发
type ActorClaims struct {
	ActorID uint   `json:"actor_id"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// ParseActorToken 校验 HS256 令牌并返回操作者身份
func ParseActorToken(secret, issuer, tokenString string) (*ActorClaims, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: secret is empty", ErrTokenInvalid)
	}
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if strings.TrimSpace(issuer) != "" {
		options = append(options, jwt.WithIssuer(strings.TrimSpace(issuer)))
	}
	claims := &ActorClaims{}
	token, err := jwt.NewParser(options...).ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid || claims.ActorID == 0 || strings.TrimSpace(claims.Role) == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// IssueActorToken 签发操作者令牌，供种子数据与本地调试使用
func IssueActorToken(secret, issuer string, actorID uint, role string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", fmt.Errorf("%w: secret is empty", ErrTokenInvalid)
	}
	now := time.Now()
	claims := ActorClaims{
		ActorID: actorID,
		Role:    strings.TrimSpace(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    strings.TrimSpace(issuer),
			Subject:   fmt.Sprintf("actor:%d", actorID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
