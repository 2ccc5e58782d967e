package marketplace

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/marketplace/internal/store"
	"github.com/nao1215/marketplace/pkg/middleware"
	"github.com/samber/lo"
)

// handleLogin はログイン時のプロフィール登録とアクセストークン発行を行うハンドラを返す。
// レスポンスは {"result": 更新結果, "token": アクセストークン}。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		email := c.Param("email")
		fields, err := readDocument(c)
		if err != nil {
			s.respondError(c, err)
			return
		}

		result, err := s.principals.UpsertProfile(c.Request.Context(), email, fields)
		if err != nil {
			s.respondError(c, err)
			return
		}

		token, err := s.codec.Issue(email)
		if err != nil {
			s.respondError(c, fmt.Errorf("トークン発行に失敗: %w", err))
			return
		}

		c.JSON(http.StatusOK, gin.H{"result": result, "token": token})
	}
}

// handleUpdateProfile はパスで指定したユーザーのプロフィールを更新するハンドラを返す。
func (s *Server) handleUpdateProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.upsertProfile(c, c.Param("email"))
	}
}

// handleUpdateOwnProfile は呼び出し元のプロフィールを更新するハンドラを返す。
func (s *Server) handleUpdateOwnProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.upsertProfile(c, middleware.GetEmail(c))
	}
}

// upsertProfile はボディの内容でプロフィールを更新する。
func (s *Server) upsertProfile(c *gin.Context, email string) {
	fields, err := readDocument(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	result, err := s.principals.UpsertProfile(c.Request.Context(), email, fields)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleGetOwnProfile は呼び出し元のユーザー情報を返すハンドラを返す。
func (s *Server) handleGetOwnProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := s.principals.Get(c.Request.Context(), middleware.GetEmail(c))
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, p.Document())
	}
}

// handleAddBalance は呼び出し元の残高にボディのbalanceを加算するハンドラを返す。
func (s *Server) handleAddBalance() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := readDocument(c)
		if err != nil {
			s.respondError(c, err)
			return
		}
		amount, ok := body["balance"].(float64)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"message": "balanceは数値である必要があります"})
			return
		}

		result, err := s.principals.AddBalance(c.Request.Context(), middleware.GetEmail(c), amount)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleAdminUpdateUser は管理者がユーザー情報を更新するハンドラを返す。
// roleとbalanceも更新できる。
func (s *Server) handleAdminUpdateUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		fields, err := readDocument(c)
		if err != nil {
			s.respondError(c, err)
			return
		}

		result, err := s.principals.UpsertAsAdmin(c.Request.Context(), c.Param("email"), fields)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleListPrincipals は全ユーザーを返すハンドラを返す。
func (s *Server) handleListPrincipals() gin.HandlerFunc {
	return func(c *gin.Context) {
		principals, err := s.principals.List(c.Request.Context())
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, lo.Map(principals, func(p store.Principal, _ int) store.Document {
			return p.Document()
		}))
	}
}

// handleSetRole はボディで指定したIDのユーザーにロールを付与するハンドラを返す。
func (s *Server) handleSetRole(role middleware.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := readID(c)
		if err != nil {
			s.respondError(c, err)
			return
		}

		result, err := s.principals.SetRoleByID(c.Request.Context(), id, role)
		if err != nil {
			s.respondError(c, err)
			return
		}
		s.logger.InfoContext(c.Request.Context(), "ロールを変更しました",
			slog.String("id", id),
			slog.String("role", role.String()),
			slog.String("by", middleware.GetEmail(c)),
			slog.Int64("modified", result.ModifiedCount),
		)
		c.JSON(http.StatusOK, result)
	}
}
