package store

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Document はスキーマを持たないJSONオブジェクト。
type Document map[string]any

// idField はレスポンスでIDを表すフィールド名。
const idField = "_id"

// merge はsrcの各フィールドをdstに上書きし、内容が変わったかどうかを返す。
func merge(dst, src Document) bool {
	changed := false
	for k, v := range src {
		if old, ok := dst[k]; ok && reflect.DeepEqual(old, v) {
			continue
		}
		dst[k] = v
		changed = true
	}
	return changed
}

// without はkeysを取り除いたコピーを返す。
func without(doc Document, keys ...string) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// encode はドキュメントをJSON文字列に変換する。
func encode(doc Document) (string, error) {
	if doc == nil {
		doc = Document{}
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("ドキュメントのシリアライズに失敗: %w", err)
	}
	return string(b), nil
}

// decode はJSON文字列をドキュメントに変換する。
func decode(s string) (Document, error) {
	doc := Document{}
	if s == "" {
		return doc, nil
	}
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return nil, fmt.Errorf("ドキュメントのデシリアライズに失敗: %w", err)
	}
	return doc, nil
}

// stringField はフィールドが文字列の場合にその値を返す。
func stringField(doc Document, key string) string {
	if s, ok := doc[key].(string); ok {
		return s
	}
	return ""
}
