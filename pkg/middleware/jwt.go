package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims はトークンのクレーム（ペイロード）を表す。
// 本人確認用のメールアドレスのみを持ち、ロールは含めない。
type Claims struct {
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// contextKeyEmail は認証済みメールアドレスをGinコンテキストに格納するキー。
const contextKeyEmail = "email"

// TokenCodec はBearerトークンの発行と検証を行う。
// シークレットはプロセス起動時に決まり、以後変更されない。
type TokenCodec struct {
	// secret はHS256署名用の秘密鍵。
	secret []byte
	// ttl はトークンの有効期間。0の場合は有効期限を設定しない。
	ttl time.Duration
	// now は現在時刻を返す関数。テストで差し替える。
	now func() time.Time
}

// NewTokenCodec は新しいTokenCodecを生成する。
// ttlに0を指定すると、有効期限の無いトークンを発行する。
func NewTokenCodec(secret string, ttl time.Duration) (*TokenCodec, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl < 0 {
		return nil, fmt.Errorf("トークンの有効期間が負の値です: %s", ttl)
	}
	return &TokenCodec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue はメールアドレスを埋め込んだトークンを発行する。
// 有効期間が0の場合、同じメールアドレスからは常に同じトークンが得られる。
func (tc *TokenCodec) Issue(email string) (string, error) {
	if email == "" {
		return "", errors.New("メールアドレスが空です")
	}

	claims := Claims{Email: email}
	if tc.ttl > 0 {
		now := tc.now()
		claims.IssuedAt = jwt.NewNumericDate(now)
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(tc.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tc.secret)
	if err != nil {
		return "", fmt.Errorf("トークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Verify はトークンを検証し、埋め込まれたメールアドレスを返す。
// ストレージには一切アクセスしない。
func (tc *TokenCodec) Verify(tokenString string) (string, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return tc.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(tc.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			return "", fmt.Errorf("%w: %v", ErrTokenExpired, err)
		default:
			return "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	}

	if claims.Email == "" {
		return "", fmt.Errorf("%w: emailクレームがありません", ErrMalformedToken)
	}
	return claims.Email, nil
}

// GetEmail はGinコンテキストから認証済みメールアドレスを取得する。
// Gate.Requireミドルウェアが事前に適用されている必要がある。
func GetEmail(c *gin.Context) string {
	email, _ := c.Get(contextKeyEmail)
	if e, ok := email.(string); ok {
		return e
	}
	return ""
}
