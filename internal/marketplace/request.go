package marketplace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/marketplace/internal/store"
)

// errInvalidBody はリクエストボディが不正であることを示す。
var errInvalidBody = errors.New("invalid request body")

// readDocument はリクエストボディをJSONオブジェクトとして読み取る。
// ボディが空またはnullの場合は空のドキュメントを返す。
func readDocument(c *gin.Context) (store.Document, error) {
	raw, err := c.GetRawData()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidBody, err)
	}

	doc := store.Document{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: JSONオブジェクトである必要があります", errInvalidBody)
	}
	if doc == nil {
		doc = store.Document{}
	}
	return doc, nil
}

// readID はリクエストボディからIDを読み取る。
// ボディはJSON文字列 "id" または {"id": "..."} のどちらでもよい。
func readID(c *gin.Context) (string, error) {
	raw, err := c.GetRawData()
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidBody, err)
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("%w: idを読み取れません", errInvalidBody)
	}

	var id string
	switch body := v.(type) {
	case string:
		id = body
	case map[string]any:
		id, _ = body["id"].(string)
	}
	if id == "" {
		return "", fmt.Errorf("%w: idが指定されていません", errInvalidBody)
	}
	return id, nil
}

// idOf はドキュメントのidフィールドを文字列として返す。
func idOf(doc store.Document) (string, error) {
	id, _ := doc["id"].(string)
	if id == "" {
		return "", fmt.Errorf("%w: idが指定されていません", errInvalidBody)
	}
	return id, nil
}
