package marketplace

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/marketplace/internal/store"
	"github.com/nao1215/marketplace/pkg/middleware"
)

// handleList はコレクションの全ドキュメントを返すハンドラを返す。
func (s *Server) handleList(collection string) gin.HandlerFunc {
	return func(c *gin.Context) {
		docs, err := s.documents.List(c.Request.Context(), collection)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, docs)
	}
}

// handleGet はパスパラメータidのドキュメントを返すハンドラを返す。
func (s *Server) handleGet(collection string) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := s.documents.Get(c.Request.Context(), collection, c.Param("id"))
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

// handleInsert はリクエストボディをドキュメントとして挿入するハンドラを返す。
func (s *Server) handleInsert(collection string) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := readDocument(c)
		if err != nil {
			s.respondError(c, err)
			return
		}

		result, err := s.documents.Insert(c.Request.Context(), collection, doc)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleOwnOrders は呼び出し元の注文一覧を返すハンドラを返す。
func (s *Server) handleOwnOrders() gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := s.documents.ListByEmail(c.Request.Context(), collectionOrder, middleware.GetEmail(c))
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"allOrder": orders})
	}
}

// handleSetField はボディの {"id": ..., src: 値} を受け取り、
// 対象ドキュメントのdstフィールドに値を設定するハンドラを返す。
func (s *Server) handleSetField(collection, src, dst string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := readDocument(c)
		if err != nil {
			s.respondError(c, err)
			return
		}
		id, err := idOf(body)
		if err != nil {
			s.respondError(c, err)
			return
		}

		result, err := s.documents.Set(c.Request.Context(), collection, id, store.Document{dst: body[src]})
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleSetByParam はパスパラメータidのドキュメントにボディのフィールドを上書きするハンドラを返す。
func (s *Server) handleSetByParam(collection string) gin.HandlerFunc {
	return func(c *gin.Context) {
		fields, err := readDocument(c)
		if err != nil {
			s.respondError(c, err)
			return
		}

		result, err := s.documents.Set(c.Request.Context(), collection, c.Param("id"), fields)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleDelete はボディで指定したIDのドキュメントを削除するハンドラを返す。
func (s *Server) handleDelete(collection string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := readID(c)
		if err != nil {
			s.respondError(c, err)
			return
		}

		result, err := s.documents.Delete(c.Request.Context(), collection, id)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
