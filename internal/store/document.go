package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// DocumentStore はコレクション単位のJSONドキュメントを永続化する。
type DocumentStore struct {
	db *sql.DB
}

// NewDocumentStore は新しいDocumentStoreを生成する。
func NewDocumentStore(db *sql.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Insert はドキュメントを新しいIDで挿入する。本文の_idは無視する。
func (s *DocumentStore) Insert(ctx context.Context, collection string, doc Document) (InsertResult, error) {
	body := without(doc, idField)
	encoded, err := encode(body)
	if err != nil {
		return InsertResult{}, err
	}

	id := uuid.New().String()
	if _, err := s.db.ExecContext(ctx,
		"INSERT INTO documents (id, collection, email, body) VALUES (?, ?, ?, ?)",
		id, collection, stringField(body, "email"), encoded,
	); err != nil {
		return InsertResult{}, fmt.Errorf("ドキュメントの挿入に失敗: collection=%s: %w", collection, err)
	}
	return InsertResult{Acknowledged: true, InsertedID: id}, nil
}

// List はコレクション内の全ドキュメントを作成順に返す。
func (s *DocumentStore) List(ctx context.Context, collection string) ([]Document, error) {
	return s.query(ctx,
		"SELECT id, body FROM documents WHERE collection = ? ORDER BY created_at, rowid",
		collection,
	)
}

// ListByEmail はemailフィールドが一致するドキュメントを作成順に返す。
func (s *DocumentStore) ListByEmail(ctx context.Context, collection, email string) ([]Document, error) {
	return s.query(ctx,
		"SELECT id, body FROM documents WHERE collection = ? AND email = ? ORDER BY created_at, rowid",
		collection, email,
	)
}

// query は(id, body)を返すクエリを実行してドキュメントに変換する。
func (s *DocumentStore) query(ctx context.Context, query string, args ...any) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ドキュメント一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := []Document{}
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("ドキュメント行の読み取りに失敗: %w", err)
		}
		doc, err := decode(body)
		if err != nil {
			return nil, err
		}
		doc[idField] = id
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Get はIDでドキュメントを取得する。存在しない場合はErrNotFoundを返す。
func (s *DocumentStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ドキュメントの取得に失敗: %w", err)
	}

	doc, err := decode(body)
	if err != nil {
		return nil, err
	}
	doc[idField] = id
	return doc, nil
}

// Set はドキュメントのフィールドを上書きする。存在しなければ指定IDで作成する。
func (s *DocumentStore) Set(ctx context.Context, collection, id string, fields Document) (UpdateResult, error) {
	if id == "" {
		return UpdateResult{}, fmt.Errorf("%w: idが空です", ErrInvalidField)
	}
	fields = without(fields, idField)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var body string
	err = tx.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		encoded, err := encode(fields)
		if err != nil {
			return UpdateResult{}, err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO documents (id, collection, email, body) VALUES (?, ?, ?, ?)",
			id, collection, stringField(fields, "email"), encoded,
		); err != nil {
			return UpdateResult{}, fmt.Errorf("ドキュメントの作成に失敗: %w", err)
		}
		return upserted(id), tx.Commit()
	}
	if err != nil {
		return UpdateResult{}, fmt.Errorf("ドキュメントの取得に失敗: %w", err)
	}

	current, err := decode(body)
	if err != nil {
		return UpdateResult{}, err
	}
	if !merge(current, fields) {
		return matched(false), tx.Commit()
	}

	encoded, err := encode(current)
	if err != nil {
		return UpdateResult{}, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE documents SET email = ?, body = ?, updated_at = datetime('now') WHERE collection = ? AND id = ?",
		stringField(current, "email"), encoded, collection, id,
	); err != nil {
		return UpdateResult{}, fmt.Errorf("ドキュメントの更新に失敗: %w", err)
	}
	return matched(true), tx.Commit()
}

// Delete はIDでドキュメントを削除する。
func (s *DocumentStore) Delete(ctx context.Context, collection, id string) (DeleteResult, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("ドキュメントの削除に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return DeleteResult{}, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return DeleteResult{Acknowledged: true, DeletedCount: n}, nil
}
