package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
)

// stubResolver はテスト用のRoleResolver。保存値をそのまま文字列で保持する。
type stubResolver struct {
	mu    sync.Mutex
	roles map[string]string
	err   error
	calls atomic.Int64
}

func newStubResolver(roles map[string]string) *stubResolver {
	return &stubResolver{roles: roles}
}

func (r *stubResolver) ResolveRole(_ context.Context, email string) (Role, error) {
	r.calls.Add(1)
	if r.err != nil {
		return RoleUnassigned, r.err
	}

	r.mu.Lock()
	stored, ok := r.roles[email]
	r.mu.Unlock()
	if !ok {
		return RoleUnassigned, ErrPrincipalNotFound
	}
	return ParseRole(stored)
}

func (r *stubResolver) setRole(email, role string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[email] = role
}

// newTestGate はテスト用のGateとトークン発行関数を返す。
func newTestGate(t *testing.T, resolver RoleResolver) (*Gate, func(email string) string) {
	t.Helper()

	codec := newTestCodec(t)
	gate := NewGate(codec, resolver, slog.New(slog.DiscardHandler))
	issue := func(email string) string {
		t.Helper()
		token, err := codec.Issue(email)
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}
		return token
	}
	return gate, issue
}

// newGateRouter は各ポリシーのルートを持つテスト用ルーターを生成する。
// ハンドラーはGetEmailで取得したメールアドレスを返す。
func newGateRouter(gate *Gate) *gin.Engine {
	router := gin.New()
	handler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"email": GetEmail(c)})
	}
	router.GET("/public", gate.Require(PolicyPublic), handler)
	router.GET("/member", gate.Require(PolicyMemberOrAdmin), handler)
	router.GET("/admin", gate.Require(PolicyAdminOnly), handler)
	return router
}

// doGateRequest はAuthorizationヘッダー付きでリクエストを送る。
// authorizationが空の場合はヘッダーを付与しない。
func doGateRequest(router *gin.Engine, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// messageOf はレスポンスボディのmessageフィールドを返す。
func messageOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスボディのパースに失敗: %v, body=%s", err, w.Body.String())
	}
	return body["message"]
}

// TestGateDecide はアクセス判定の状態遷移を検証する。
func TestGateDecide(t *testing.T) {
	t.Parallel()

	resolver := newStubResolver(map[string]string{
		"member@example.com": "member",
		"admin@example.com":  "admin",
		"new@example.com":    "",
		"weird@example.com":  "superuser",
	})
	gate, issue := newTestGate(t, resolver)

	tests := []struct {
		name       string
		header     string
		policy     Policy
		want       Decision
		wantReason error
	}{
		{
			name:       "ヘッダー無しは未認証",
			header:     "",
			policy:     PolicyMemberOrAdmin,
			want:       DecisionUnauthenticated,
			wantReason: ErrMissingCredentials,
		},
		{
			name:       "Bearer接頭辞が無い場合は不正なトークン",
			header:     issue("member@example.com"),
			policy:     PolicyMemberOrAdmin,
			want:       DecisionUnauthenticated,
			wantReason: ErrMalformedToken,
		},
		{
			name:       "解析できないトークンは不正なトークン",
			header:     "Bearer not-a-token",
			policy:     PolicyAdminOnly,
			want:       DecisionUnauthenticated,
			wantReason: ErrMalformedToken,
		},
		{
			name:   "memberはmemberポリシーを通過する",
			header: "Bearer " + issue("member@example.com"),
			policy: PolicyMemberOrAdmin,
			want:   DecisionAllowed,
		},
		{
			name:       "memberはadminポリシーで拒否される",
			header:     "Bearer " + issue("member@example.com"),
			policy:     PolicyAdminOnly,
			want:       DecisionUnauthorized,
			wantReason: ErrRoleNotPermitted,
		},
		{
			name:   "adminはadminポリシーを通過する",
			header: "Bearer " + issue("admin@example.com"),
			policy: PolicyAdminOnly,
			want:   DecisionAllowed,
		},
		{
			name:       "ロール未割り当ては拒否される",
			header:     "Bearer " + issue("new@example.com"),
			policy:     PolicyMemberOrAdmin,
			want:       DecisionUnauthorized,
			wantReason: ErrRoleNotPermitted,
		},
		{
			name:       "未知のロール値は拒否される",
			header:     "Bearer " + issue("weird@example.com"),
			policy:     PolicyMemberOrAdmin,
			want:       DecisionUnauthorized,
			wantReason: ErrInvalidRole,
		},
		{
			name:       "存在しないユーザーは拒否される",
			header:     "Bearer " + issue("ghost@example.com"),
			policy:     PolicyMemberOrAdmin,
			want:       DecisionUnauthorized,
			wantReason: ErrPrincipalNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			verdict, err := gate.Decide(t.Context(), tt.header, tt.policy)
			if err != nil {
				t.Fatalf("Decide()でエラーが発生: %v", err)
			}
			if verdict.Decision != tt.want {
				t.Errorf("Decision = %s, want %s", verdict.Decision, tt.want)
			}
			if tt.wantReason == nil {
				if verdict.Reason != nil {
					t.Errorf("Reason = %v, want nil", verdict.Reason)
				}
				return
			}
			if !errors.Is(verdict.Reason, tt.wantReason) {
				t.Errorf("Reason = %v, want %v", verdict.Reason, tt.wantReason)
			}
		})
	}
}

// TestGateRequire はGinミドルウェアとしての応答を検証する。
func TestGateRequire(t *testing.T) {
	t.Parallel()

	t.Run("ヘッダー無しで保護ルートにアクセスすると401が返ること", func(t *testing.T) {
		t.Parallel()

		gate, _ := newTestGate(t, newStubResolver(map[string]string{}))
		router := newGateRouter(gate)

		for _, path := range []string{"/member", "/admin"} {
			w := doGateRequest(router, path, "")
			if w.Code != http.StatusUnauthorized {
				t.Errorf("%s: ステータスコード = %d, want %d", path, w.Code, http.StatusUnauthorized)
			}
			if got := messageOf(t, w); got != "Unauthorized Access" {
				t.Errorf("%s: message = %q, want %q", path, got, "Unauthorized Access")
			}
		}
	})

	t.Run("不正なトークンでは403とForbidden accessが返ること", func(t *testing.T) {
		t.Parallel()

		other, err := NewTokenCodec("another-secret", 0)
		if err != nil {
			t.Fatalf("NewTokenCodec()でエラーが発生: %v", err)
		}
		forged, err := other.Issue("admin@example.com")
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}

		resolver := newStubResolver(map[string]string{"admin@example.com": "admin"})
		gate, _ := newTestGate(t, resolver)
		router := newGateRouter(gate)

		for _, header := range []string{"Bearer garbage", "Bearer " + forged, "Token abc"} {
			w := doGateRequest(router, "/admin", header)
			if w.Code != http.StatusForbidden {
				t.Errorf("%q: ステータスコード = %d, want %d", header, w.Code, http.StatusForbidden)
			}
			if got := messageOf(t, w); got != "Forbidden access" {
				t.Errorf("%q: message = %q, want %q", header, got, "Forbidden access")
			}
		}
		if got := resolver.calls.Load(); got != 0 {
			t.Errorf("認証失敗時にロール解決が %d 回呼ばれた", got)
		}
	})

	t.Run("memberはmemberルートに通りadminルートで403になること", func(t *testing.T) {
		t.Parallel()

		gate, issue := newTestGate(t, newStubResolver(map[string]string{"member@example.com": "member"}))
		router := newGateRouter(gate)
		header := "Bearer " + issue("member@example.com")

		w := doGateRequest(router, "/member", header)
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}

		w = doGateRequest(router, "/admin", header)
		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
		if got := messageOf(t, w); got != "forbidden access" {
			t.Errorf("message = %q, want %q", got, "forbidden access")
		}
	})

	t.Run("adminは両方のルートに通りハンドラーにメールアドレスが渡ること", func(t *testing.T) {
		t.Parallel()

		gate, issue := newTestGate(t, newStubResolver(map[string]string{"admin@example.com": "admin"}))
		router := newGateRouter(gate)
		header := "Bearer " + issue("admin@example.com")

		for _, path := range []string{"/member", "/admin"} {
			w := doGateRequest(router, path, header)
			if w.Code != http.StatusOK {
				t.Errorf("%s: ステータスコード = %d, want %d", path, w.Code, http.StatusOK)
				continue
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("レスポンスボディのパースに失敗: %v", err)
			}
			if body["email"] != "admin@example.com" {
				t.Errorf("%s: email = %q, want %q", path, body["email"], "admin@example.com")
			}
		}
	})

	t.Run("ユーザーが存在しない場合は500ではなく403になること", func(t *testing.T) {
		t.Parallel()

		gate, issue := newTestGate(t, newStubResolver(map[string]string{}))
		router := newGateRouter(gate)

		w := doGateRequest(router, "/member", "Bearer "+issue("bob@example.com"))
		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
		if got := messageOf(t, w); got != "forbidden access" {
			t.Errorf("message = %q, want %q", got, "forbidden access")
		}
	})

	t.Run("publicルートはヘッダー無しで通りロール解決を行わないこと", func(t *testing.T) {
		t.Parallel()

		resolver := newStubResolver(map[string]string{})
		gate, issue := newTestGate(t, resolver)
		router := newGateRouter(gate)

		w := doGateRequest(router, "/public", "")
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		w = doGateRequest(router, "/public", "Bearer "+issue("someone@example.com"))
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if got := resolver.calls.Load(); got != 0 {
			t.Errorf("publicルートでロール解決が %d 回呼ばれた", got)
		}
	})

	t.Run("ロール変更が同じトークンの次のリクエストに反映されること", func(t *testing.T) {
		t.Parallel()

		resolver := newStubResolver(map[string]string{"alice@example.com": "member"})
		gate, issue := newTestGate(t, resolver)
		router := newGateRouter(gate)
		header := "Bearer " + issue("alice@example.com")

		if w := doGateRequest(router, "/admin", header); w.Code != http.StatusForbidden {
			t.Fatalf("昇格前: ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}

		resolver.setRole("alice@example.com", "admin")

		if w := doGateRequest(router, "/admin", header); w.Code != http.StatusOK {
			t.Errorf("昇格後: ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if got := resolver.calls.Load(); got != 2 {
			t.Errorf("ロール解決回数 = %d, want 2", got)
		}
	})

	t.Run("ストレージ障害は403ではなく500になること", func(t *testing.T) {
		t.Parallel()

		resolver := newStubResolver(map[string]string{})
		resolver.err = errors.New("database is locked")
		gate, issue := newTestGate(t, resolver)
		router := newGateRouter(gate)

		w := doGateRequest(router, "/member", "Bearer "+issue("alice@example.com"))
		if w.Code != http.StatusInternalServerError {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusInternalServerError)
		}
		if got := messageOf(t, w); got != "Internal Server Error" {
			t.Errorf("message = %q, want %q", got, "Internal Server Error")
		}
	})
}
