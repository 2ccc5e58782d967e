package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/nao1215/marketplace/pkg/migration"
	"github.com/samber/lo"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound は対象のレコードが存在しないことを示す。
var ErrNotFound = errors.New("store: not found")

// ErrInvalidField はフィールドの値が不正であることを示す。
var ErrInvalidField = errors.New("store: invalid field")

// busyTimeout は書き込みロックの待ち時間（ミリ秒）。
const busyTimeout = "busy_timeout(5000)"

// Open はSQLiteデータベースに接続し、マイグレーションを適用する。
// 呼び出し側はプロセス終了時にCloseすること。
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*sql.DB, error) {
	dsn, inMemory, err := configureDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	// インメモリDBは接続ごとに別のデータベースになる
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}

	if err := migration.Run(ctx, db, migrationsFS, "migrations", logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("マイグレーションに失敗: %w", err)
	}

	return db, nil
}

// configureDSN はDSNがインメモリDBを指すかどうかを判定し、
// ファイルDBの場合は書き込みトランザクションを即時ロックで開始するよう設定を補う。
// 読み取り後に書き込むトランザクションが並行して走るとSQLITE_BUSYになるため、
// _txlock=immediate とbusy_timeoutを既定で付与する。明示された値は上書きしない。
func configureDSN(dsn string) (string, bool, error) {
	base, rawQuery, _ := strings.Cut(dsn, "?")
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", false, fmt.Errorf("DSNのクエリを解析できません: %w", err)
	}

	name := strings.TrimPrefix(base, "file:")
	if name == ":memory:" || name == "" || query.Get("mode") == "memory" {
		return dsn, true, nil
	}

	if query.Get("_txlock") == "" {
		query.Set("_txlock", "immediate")
	}
	hasBusyTimeout := lo.ContainsBy(query["_pragma"], func(p string) bool {
		return strings.HasPrefix(strings.ToLower(p), "busy_timeout")
	})
	if !hasBusyTimeout {
		query.Add("_pragma", busyTimeout)
	}
	return base + "?" + query.Encode(), false, nil
}

// InsertResult は挿入結果。
type InsertResult struct {
	// Acknowledged は書き込みが受理されたかどうか。
	Acknowledged bool `json:"acknowledged"`
	// InsertedID は挿入したレコードのID。
	InsertedID string `json:"insertedId"`
}

// UpdateResult は更新（アップサート）結果。
type UpdateResult struct {
	// Acknowledged は書き込みが受理されたかどうか。
	Acknowledged bool `json:"acknowledged"`
	// MatchedCount は条件に一致したレコード数。
	MatchedCount int64 `json:"matchedCount"`
	// ModifiedCount は実際に内容が変わったレコード数。
	ModifiedCount int64 `json:"modifiedCount"`
	// UpsertedCount は新規作成したレコード数。
	UpsertedCount int64 `json:"upsertedCount"`
	// UpsertedID は新規作成したレコードのID。作成しなかった場合はnull。
	UpsertedID *string `json:"upsertedId"`
}

// DeleteResult は削除結果。
type DeleteResult struct {
	// Acknowledged は書き込みが受理されたかどうか。
	Acknowledged bool `json:"acknowledged"`
	// DeletedCount は削除したレコード数。
	DeletedCount int64 `json:"deletedCount"`
}

// matched は既存レコードを更新したときの結果を返す。
func matched(modified bool) UpdateResult {
	r := UpdateResult{Acknowledged: true, MatchedCount: 1}
	if modified {
		r.ModifiedCount = 1
	}
	return r
}

// upserted は新規作成したときの結果を返す。
func upserted(id string) UpdateResult {
	return UpdateResult{Acknowledged: true, UpsertedCount: 1, UpsertedID: &id}
}
