// Package logging はslogベースの構造化ログの設定を提供する。
package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"
)

// ParseLevel はLOG_LEVEL形式の文字列をslog.Levelに変換する。
// 未知の値はINFOとして扱う。
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New は出力先・レベル・形式からロガーを生成する。
// formatが "text" の場合はテキスト形式、それ以外はJSON形式で出力する。
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With(slog.String("app", "marketplace"))
}

// Middleware はリクエストごとにアクセスログを出力するGinミドルウェアを返す。
// Authorizationヘッダーは記録しない。
func Middleware(logger *slog.Logger) gin.HandlerFunc {
	return sloggin.NewWithConfig(logger.WithGroup("http"), sloggin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		WithRequestID:    true,
	})
}
