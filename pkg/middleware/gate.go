package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// 既存クライアントとの互換のため、レスポンスメッセージは大文字小文字も含めて固定する。
const (
	messageUnauthenticated = "Unauthorized Access"
	messageBadCredential   = "Forbidden access"
	messageUnauthorized    = "forbidden access"
	messageInternal        = "Internal Server Error"
)

// RoleResolver はメールアドレスから現在のロールを引く。
// ユーザーが存在しない場合は ErrPrincipalNotFound、保存値が不正な場合は
// ErrInvalidRole を返すこと。それ以外のエラーはインフラ障害として扱われる。
type RoleResolver interface {
	ResolveRole(ctx context.Context, email string) (Role, error)
}

// Decision はリクエストごとのアクセス判定結果。
type Decision int

const (
	// DecisionAllowed はアクセス許可。
	DecisionAllowed Decision = iota
	// DecisionUnauthenticated は認証失敗（トークン無し・不正）。
	DecisionUnauthenticated
	// DecisionUnauthorized は認可失敗（ロール不足・ユーザー不在）。
	DecisionUnauthorized
)

// String は判定結果の名前を返す。
func (d Decision) String() string {
	switch d {
	case DecisionAllowed:
		return "allowed"
	case DecisionUnauthenticated:
		return "unauthenticated"
	case DecisionUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// Verdict は判定結果と、その根拠を表す。
type Verdict struct {
	// Decision は判定結果。
	Decision Decision
	// Email は認証に成功した場合のメールアドレス。
	Email string
	// Reason は拒否理由。許可の場合はnil。
	Reason error
}

// Gate は保護されたルートの前段に置く唯一の認証・認可チェックポイント。
// 内部状態は生成後に変更されないため、並行リクエストから安全に利用できる。
type Gate struct {
	codec    *TokenCodec
	resolver RoleResolver
	logger   *slog.Logger
}

// NewGate は新しいGateを生成する。
func NewGate(codec *TokenCodec, resolver RoleResolver, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		codec:    codec,
		resolver: resolver,
		logger:   logger,
	}
}

// Decide はAuthorizationヘッダーの値とポリシーからアクセス可否を判定する。
// 最初に失敗した段階で判定を確定する。エラーを返すのはロール解決時の
// インフラ障害のみで、その場合のVerdictは意味を持たない。
func (g *Gate) Decide(ctx context.Context, authorization string, policy Policy) (Verdict, error) {
	if policy == PolicyPublic {
		return Verdict{Decision: DecisionAllowed}, nil
	}

	if authorization == "" {
		return Verdict{Decision: DecisionUnauthenticated, Reason: ErrMissingCredentials}, nil
	}

	tokenString, found := strings.CutPrefix(authorization, "Bearer ")
	if !found {
		return Verdict{
			Decision: DecisionUnauthenticated,
			Reason:   fmt.Errorf("%w: Bearer形式ではありません", ErrMalformedToken),
		}, nil
	}

	email, err := g.codec.Verify(tokenString)
	if err != nil {
		return Verdict{Decision: DecisionUnauthenticated, Reason: err}, nil
	}

	role, err := g.resolver.ResolveRole(ctx, email)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) || errors.Is(err, ErrInvalidRole) {
			return Verdict{Decision: DecisionUnauthorized, Email: email, Reason: err}, nil
		}
		return Verdict{}, fmt.Errorf("ロールの解決に失敗: %w", err)
	}

	if !policy.Permits(role) {
		return Verdict{
			Decision: DecisionUnauthorized,
			Email:    email,
			Reason:   fmt.Errorf("%w: role=%s policy=%s", ErrRoleNotPermitted, role, policy),
		}, nil
	}

	return Verdict{Decision: DecisionAllowed, Email: email}, nil
}

// Require は指定ポリシーでリクエストを検査するGinミドルウェアを返す。
// PolicyPublic の場合はヘッダーを読まず、ストレージにもアクセスしない。
// 判定に成功すると、コンテキストに "email" を設定して後続ハンドラへ進む。
func (g *Gate) Require(policy Policy) gin.HandlerFunc {
	if policy == PolicyPublic {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		verdict, err := g.Decide(c.Request.Context(), c.GetHeader("Authorization"), policy)
		if err != nil {
			g.logger.ErrorContext(c.Request.Context(), "アクセス判定中にストレージ障害が発生しました",
				slog.String("path", c.Request.URL.Path),
				slog.String("policy", policy.String()),
				slog.Any("error", err),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": messageInternal})
			return
		}

		switch verdict.Decision {
		case DecisionAllowed:
			c.Set(contextKeyEmail, verdict.Email)
			c.Next()
			return
		case DecisionUnauthenticated:
			if errors.Is(verdict.Reason, ErrMissingCredentials) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": messageUnauthenticated})
			} else {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": messageBadCredential})
			}
		default:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": messageUnauthorized})
		}

		g.logger.DebugContext(c.Request.Context(), "アクセスを拒否しました",
			slog.String("path", c.Request.URL.Path),
			slog.String("policy", policy.String()),
			slog.String("decision", verdict.Decision.String()),
			slog.String("email", verdict.Email),
			slog.Any("reason", verdict.Reason),
		)
	}
}
