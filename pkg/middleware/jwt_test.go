package middleware

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testSecret はテスト用のトークン署名シークレット。
const testSecret = "test-secret-key-for-unit-tests"

// newTestCodec は有効期限無しのテスト用TokenCodecを生成する。
func newTestCodec(t *testing.T) *TokenCodec {
	t.Helper()

	codec, err := NewTokenCodec(testSecret, 0)
	if err != nil {
		t.Fatalf("NewTokenCodec()でエラーが発生: %v", err)
	}
	return codec
}

// TestNewTokenCodec はTokenCodecの生成時検証を確認する。
func TestNewTokenCodec(t *testing.T) {
	t.Parallel()

	t.Run("空のシークレットはErrEmptySecretになること", func(t *testing.T) {
		t.Parallel()

		_, err := NewTokenCodec("", 0)
		if !errors.Is(err, ErrEmptySecret) {
			t.Errorf("err = %v, want %v", err, ErrEmptySecret)
		}
	})

	t.Run("負の有効期間はエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := NewTokenCodec(testSecret, -time.Minute); err == nil {
			t.Error("負の有効期間でエラーが返るべき")
		}
	})
}

// TestTokenCodecIssue はトークン発行を検証する。
func TestTokenCodecIssue(t *testing.T) {
	t.Parallel()

	t.Run("発行したトークンを検証するとメールアドレスが得られること", func(t *testing.T) {
		t.Parallel()

		codec := newTestCodec(t)
		tokenStr, err := codec.Issue("alice@example.com")
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}

		email, err := codec.Verify(tokenStr)
		if err != nil {
			t.Fatalf("Verify()でエラーが発生: %v", err)
		}
		if email != "alice@example.com" {
			t.Errorf("email = %q, want %q", email, "alice@example.com")
		}
	})

	t.Run("有効期間0では同じメールアドレスから同じトークンが得られること", func(t *testing.T) {
		t.Parallel()

		codec := newTestCodec(t)
		first, err := codec.Issue("alice@example.com")
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}
		second, err := codec.Issue("alice@example.com")
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}
		if first != second {
			t.Errorf("トークンが一致しない: %q != %q", first, second)
		}
	})

	t.Run("有効期間0ではexpとiatが含まれないこと", func(t *testing.T) {
		t.Parallel()

		codec := newTestCodec(t)
		tokenStr, err := codec.Issue("alice@example.com")
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}

		claims := jwt.MapClaims{}
		if _, _, err := new(jwt.Parser).ParseUnverified(tokenStr, claims); err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}
		if len(claims) != 1 {
			t.Errorf("クレーム数 = %d, want 1 (claims=%v)", len(claims), claims)
		}
		if claims["email"] != "alice@example.com" {
			t.Errorf("email = %v, want %q", claims["email"], "alice@example.com")
		}
	})

	t.Run("署名アルゴリズムがHS256であること", func(t *testing.T) {
		t.Parallel()

		codec := newTestCodec(t)
		tokenStr, err := codec.Issue("alg@example.com")
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}

		token, _, err := new(jwt.Parser).ParseUnverified(tokenStr, &Claims{})
		if err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}
		if token.Method.Alg() != "HS256" {
			t.Errorf("署名アルゴリズム = %q, want %q", token.Method.Alg(), "HS256")
		}
	})

	t.Run("有効期間を指定するとexpが設定されること", func(t *testing.T) {
		t.Parallel()

		codec, err := NewTokenCodec(testSecret, 24*time.Hour)
		if err != nil {
			t.Fatalf("NewTokenCodec()でエラーが発生: %v", err)
		}
		before := time.Now()
		tokenStr, err := codec.Issue("ttl@example.com")
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}

		claims := &Claims{}
		if _, _, err := new(jwt.Parser).ParseUnverified(tokenStr, claims); err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}
		if claims.ExpiresAt == nil {
			t.Fatal("ExpiresAtが設定されていない")
		}
		expected := before.Add(24 * time.Hour)
		if claims.ExpiresAt.Time.Before(expected.Add(-time.Minute)) || claims.ExpiresAt.Time.After(expected.Add(time.Minute)) {
			t.Errorf("ExpiresAt = %v, want およそ %v", claims.ExpiresAt.Time, expected)
		}
	})

	t.Run("空のメールアドレスではエラーになること", func(t *testing.T) {
		t.Parallel()

		codec := newTestCodec(t)
		if _, err := codec.Issue(""); err == nil {
			t.Error("空のメールアドレスでエラーが返るべき")
		}
	})
}

// TestTokenCodecVerify はトークン検証の失敗パターンを検証する。
func TestTokenCodecVerify(t *testing.T) {
	t.Parallel()

	t.Run("解析できない文字列はErrMalformedTokenになること", func(t *testing.T) {
		t.Parallel()

		codec := newTestCodec(t)
		_, err := codec.Verify("invalid-token-string")
		if !errors.Is(err, ErrMalformedToken) {
			t.Errorf("err = %v, want %v", err, ErrMalformedToken)
		}
	})

	t.Run("異なるシークレットで署名されたトークンはErrInvalidSignatureになること", func(t *testing.T) {
		t.Parallel()

		other, err := NewTokenCodec("different-secret", 0)
		if err != nil {
			t.Fatalf("NewTokenCodec()でエラーが発生: %v", err)
		}
		tokenStr, err := other.Issue("mallory@example.com")
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}

		_, err = newTestCodec(t).Verify(tokenStr)
		if !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("err = %v, want %v", err, ErrInvalidSignature)
		}
	})

	t.Run("none署名のトークンは拒否されること", func(t *testing.T) {
		t.Parallel()

		token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Email: "none@example.com"})
		tokenStr, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatalf("トークンの生成に失敗: %v", err)
		}

		_, err = newTestCodec(t).Verify(tokenStr)
		if !errors.Is(err, ErrInvalidSignature) {
			t.Errorf("err = %v, want %v", err, ErrInvalidSignature)
		}
	})

	t.Run("emailクレームが無いトークンはErrMalformedTokenになること", func(t *testing.T) {
		t.Parallel()

		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "no-email"})
		tokenStr, err := token.SignedString([]byte(testSecret))
		if err != nil {
			t.Fatalf("トークンの署名に失敗: %v", err)
		}

		_, err = newTestCodec(t).Verify(tokenStr)
		if !errors.Is(err, ErrMalformedToken) {
			t.Errorf("err = %v, want %v", err, ErrMalformedToken)
		}
	})

	t.Run("期限切れトークンはErrTokenExpiredになること", func(t *testing.T) {
		t.Parallel()

		codec, err := NewTokenCodec(testSecret, time.Hour)
		if err != nil {
			t.Fatalf("NewTokenCodec()でエラーが発生: %v", err)
		}
		codec.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		tokenStr, err := codec.Issue("expired@example.com")
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}
		codec.now = time.Now

		_, err = codec.Verify(tokenStr)
		if !errors.Is(err, ErrTokenExpired) {
			t.Errorf("err = %v, want %v", err, ErrTokenExpired)
		}
	})
}

// TestGetEmail はGetEmail関数を検証する。
func TestGetEmail(t *testing.T) {
	t.Parallel()

	t.Run("コンテキストにemailが設定されている場合に取得できること", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set("email", "alice@example.com")

		if got := GetEmail(c); got != "alice@example.com" {
			t.Errorf("GetEmail() = %q, want %q", got, "alice@example.com")
		}
	})

	t.Run("コンテキストにemailが無い場合に空文字列が返ること", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())

		if got := GetEmail(c); got != "" {
			t.Errorf("GetEmail() = %q, want empty string", got)
		}
	})

	t.Run("emailが文字列以外の型の場合に空文字列が返ること", func(t *testing.T) {
		t.Parallel()

		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set("email", 12345)

		if got := GetEmail(c); got != "" {
			t.Errorf("GetEmail() = %q, want empty string", got)
		}
	})
}
