package marketplace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/marketplace/internal/store"
	"github.com/nao1215/marketplace/pkg/logging"
	"github.com/nao1215/marketplace/pkg/middleware"
)

// Server はマーケットプレイス管理APIのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はサーバー設定。
	cfg Config
	// db はSQLiteデータベース接続。
	db *sql.DB
	// principals はユーザーのストア。
	principals *store.PrincipalStore
	// documents はコレクション単位のドキュメントストア。
	documents *store.DocumentStore
	// codec はアクセストークンの発行と検証を行う。
	codec *middleware.TokenCodec
	// gate はルートごとのアクセス判定を行う。
	gate *middleware.Gate
	// logger は構造化ロガー。
	logger *slog.Logger
}

// NewServer は新しいサーバーを生成する。
// データベースへの接続とマイグレーション、管理者の初期登録までを行う。
func NewServer(ctx context.Context, cfg Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	codec, err := middleware.NewTokenCodec(cfg.AccessTokenSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("トークンコーデックの生成に失敗: %w", err)
	}

	db, err := store.Open(ctx, cfg.DBURI, logger)
	if err != nil {
		return nil, err
	}

	principals := store.NewPrincipalStore(db)

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(logging.Middleware(logger))
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	s := &Server{
		router:     router,
		cfg:        cfg,
		db:         db,
		principals: principals,
		documents:  store.NewDocumentStore(db),
		codec:      codec,
		gate:       middleware.NewGate(codec, principals, logger),
		logger:     logger,
	}
	s.setupRoutes()

	if err := s.bootstrapAdmins(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Handler はサーバーのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run は設定されたポートでHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", ":"+s.cfg.Port)
	if err != nil {
		return fmt.Errorf("ポートのリッスンに失敗: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve はlnでリクエストを受け付け、ctxがキャンセルされるとグレースフルシャットダウンする。
// 正常にシャットダウンした場合はnilを返す。lnはServeが閉じる。
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.InfoContext(ctx, "サーバーを起動しました", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("サーバーの起動に失敗: %w", err)
	case <-ctx.Done():
	}

	s.logger.InfoContext(ctx, "シャットダウンを開始します")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("シャットダウンに失敗: %w", err)
	}
	return nil
}

// Close はデータベース接続を閉じる。
func (s *Server) Close() error {
	return s.db.Close()
}

// bootstrapAdmins は設定されたメールアドレスを管理者として登録する。
// 空のデータベースでも管理画面を操作できるようにするためのもの。
func (s *Server) bootstrapAdmins(ctx context.Context) error {
	for _, email := range s.cfg.BootstrapAdmins {
		result, err := s.principals.EnsureRole(ctx, email, middleware.RoleAdmin)
		if err != nil {
			return fmt.Errorf("管理者の初期登録に失敗: email=%s: %w", email, err)
		}
		s.logger.InfoContext(ctx, "管理者を登録しました",
			slog.String("email", email),
			slog.Bool("created", result.UpsertedCount > 0),
		)
	}
	return nil
}

// respondError はストアのエラーをHTTPレスポンスに変換する。
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Not Found"})
	case errors.Is(err, store.ErrInvalidField), errors.Is(err, errInvalidBody):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	default:
		s.logger.ErrorContext(c.Request.Context(), "リクエストの処理に失敗",
			slog.String("path", c.FullPath()),
			slog.Any("error", err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal Server Error"})
	}
}
