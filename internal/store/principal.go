package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nao1215/marketplace/pkg/middleware"
)

// reservedPrincipalFields はプロフィール更新で利用者が直接書き換えられないフィールド。
var reservedPrincipalFields = []string{idField, "email", "role", "balance"}

// Principal はメールアドレスで識別されるユーザー。
type Principal struct {
	// ID はユーザーの一意識別子。
	ID string
	// Email はメールアドレス。
	Email string
	// Role は現在のロール。
	Role middleware.Role
	// Balance は残高。未設定の場合はnil。
	Balance *float64
	// Profile はその他のプロフィール項目。
	Profile Document
	// CreatedAt は作成日時。
	CreatedAt string
	// UpdatedAt は更新日時。
	UpdatedAt string
}

// Document はユーザーをレスポンス用のドキュメントに変換する。
// ロール未割り当て・残高未設定の場合、それぞれのフィールドは含めない。
func (p Principal) Document() Document {
	doc := make(Document, len(p.Profile)+4)
	for k, v := range p.Profile {
		doc[k] = v
	}
	doc[idField] = p.ID
	doc["email"] = p.Email
	if p.Role != middleware.RoleUnassigned {
		doc["role"] = string(p.Role)
	}
	if p.Balance != nil {
		doc["balance"] = *p.Balance
	}
	return doc
}

// PrincipalStore はユーザーの永続化を担う。
// ResolveRoleによりmiddleware.RoleResolverを満たす。
type PrincipalStore struct {
	db *sql.DB
}

// NewPrincipalStore は新しいPrincipalStoreを生成する。
func NewPrincipalStore(db *sql.DB) *PrincipalStore {
	return &PrincipalStore{db: db}
}

var _ middleware.RoleResolver = (*PrincipalStore)(nil)

// ResolveRole はメールアドレスに対応するユーザーの現在のロールを返す。
// 参照は1回のポイントルックアップのみで、キャッシュはしない。
func (s *PrincipalStore) ResolveRole(ctx context.Context, email string) (middleware.Role, error) {
	var stored string
	err := s.db.QueryRowContext(ctx, "SELECT role FROM principals WHERE email = ?", email).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return middleware.RoleUnassigned, middleware.ErrPrincipalNotFound
	}
	if err != nil {
		return middleware.RoleUnassigned, fmt.Errorf("ロールの取得に失敗: %w", err)
	}
	return middleware.ParseRole(stored)
}

// principalColumns はSELECT時の列の並び。scanPrincipalと一致させること。
const principalColumns = "id, email, role, balance, profile, created_at, updated_at"

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanPrincipal は1行をPrincipalに変換する。
// 保存されているロールが不正な場合は未割り当てとして扱う。
func scanPrincipal(row rowScanner) (Principal, error) {
	var (
		p       Principal
		role    string
		balance sql.NullFloat64
		profile string
	)
	if err := row.Scan(&p.ID, &p.Email, &role, &balance, &profile, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Principal{}, err
	}

	if r, err := middleware.ParseRole(role); err == nil {
		p.Role = r
	}
	if balance.Valid {
		v := balance.Float64
		p.Balance = &v
	}

	doc, err := decode(profile)
	if err != nil {
		return Principal{}, err
	}
	p.Profile = doc
	return p, nil
}

// Get はメールアドレスでユーザーを取得する。存在しない場合はErrNotFoundを返す。
func (s *PrincipalStore) Get(ctx context.Context, email string) (Principal, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+principalColumns+" FROM principals WHERE email = ?", email)
	p, err := scanPrincipal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Principal{}, ErrNotFound
	}
	if err != nil {
		return Principal{}, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	return p, nil
}

// List は全ユーザーを作成順に返す。
func (s *PrincipalStore) List(ctx context.Context) ([]Principal, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+principalColumns+" FROM principals ORDER BY created_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	principals := []Principal{}
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, fmt.Errorf("ユーザー行の読み取りに失敗: %w", err)
		}
		principals = append(principals, p)
	}
	return principals, rows.Err()
}

// principalUpdate はアップサートで書き換える内容。
type principalUpdate struct {
	profile Document
	role    *middleware.Role
	balance *float64
}

// UpsertProfile はプロフィール項目をユーザーに上書きする。ユーザーが存在しなければ作成する。
// _id・email・role・balance は無視するため、利用者が自分のロールを変更することはできない。
func (s *PrincipalStore) UpsertProfile(ctx context.Context, email string, fields Document) (UpdateResult, error) {
	return s.upsert(ctx, email, principalUpdate{
		profile: without(fields, reservedPrincipalFields...),
	})
}

// UpsertAsAdmin は管理者によるユーザー情報の更新を行う。
// roleとbalanceも書き換えられるが、値は検証し、不正な場合はErrInvalidFieldを返す。
func (s *PrincipalStore) UpsertAsAdmin(ctx context.Context, email string, fields Document) (UpdateResult, error) {
	update := principalUpdate{
		profile: without(fields, reservedPrincipalFields...),
	}

	if v, ok := fields["role"]; ok {
		str, isString := v.(string)
		if !isString {
			return UpdateResult{}, fmt.Errorf("%w: roleは文字列である必要があります", ErrInvalidField)
		}
		role, err := middleware.ParseRole(str)
		if err != nil {
			return UpdateResult{}, fmt.Errorf("%w: %v", ErrInvalidField, err)
		}
		update.role = &role
	}

	if v, ok := fields["balance"]; ok {
		amount, isNumber := v.(float64)
		if !isNumber {
			return UpdateResult{}, fmt.Errorf("%w: balanceは数値である必要があります", ErrInvalidField)
		}
		update.balance = &amount
	}

	return s.upsert(ctx, email, update)
}

// EnsureRole はユーザーのロールを設定する。ユーザーが存在しなければ作成する。
func (s *PrincipalStore) EnsureRole(ctx context.Context, email string, role middleware.Role) (UpdateResult, error) {
	if !role.IsValid() {
		return UpdateResult{}, fmt.Errorf("%w: role=%q", ErrInvalidField, string(role))
	}
	return s.upsert(ctx, email, principalUpdate{role: &role})
}

// upsert はメールアドレスをキーにユーザーを作成または更新する。
func (s *PrincipalStore) upsert(ctx context.Context, email string, update principalUpdate) (UpdateResult, error) {
	if email == "" {
		return UpdateResult{}, fmt.Errorf("%w: emailが空です", ErrInvalidField)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	row := tx.QueryRowContext(ctx, "SELECT "+principalColumns+" FROM principals WHERE email = ?", email)
	current, err := scanPrincipal(row)
	if errors.Is(err, sql.ErrNoRows) {
		result, err := insertPrincipal(ctx, tx, email, update)
		if err != nil {
			return UpdateResult{}, err
		}
		return result, tx.Commit()
	}
	if err != nil {
		return UpdateResult{}, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}

	changed := merge(current.Profile, update.profile)
	if update.role != nil && *update.role != current.Role {
		current.Role = *update.role
		changed = true
	}
	if update.balance != nil && (current.Balance == nil || *current.Balance != *update.balance) {
		current.Balance = update.balance
		changed = true
	}
	if !changed {
		return matched(false), tx.Commit()
	}

	profile, err := encode(current.Profile)
	if err != nil {
		return UpdateResult{}, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE principals SET role = ?, balance = ?, profile = ?, updated_at = datetime('now') WHERE id = ?",
		string(current.Role), nullableFloat(current.Balance), profile, current.ID,
	); err != nil {
		return UpdateResult{}, fmt.Errorf("ユーザーの更新に失敗: %w", err)
	}

	return matched(true), tx.Commit()
}

// insertPrincipal は新しいユーザーを作成する。
func insertPrincipal(ctx context.Context, tx *sql.Tx, email string, update principalUpdate) (UpdateResult, error) {
	id := uuid.New().String()
	role := middleware.RoleUnassigned
	if update.role != nil {
		role = *update.role
	}

	profile, err := encode(update.profile)
	if err != nil {
		return UpdateResult{}, err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO principals (id, email, role, balance, profile) VALUES (?, ?, ?, ?, ?)",
		id, email, string(role), nullableFloat(update.balance), profile,
	); err != nil {
		return UpdateResult{}, fmt.Errorf("ユーザーの作成に失敗: %w", err)
	}
	return upserted(id), nil
}

// SetRoleByID はIDで指定したユーザーのロールを変更する。
// 存在しないIDの場合はユーザーを作成せず、MatchedCountが0の結果を返す。
func (s *PrincipalStore) SetRoleByID(ctx context.Context, id string, role middleware.Role) (UpdateResult, error) {
	if !role.IsValid() {
		return UpdateResult{}, fmt.Errorf("%w: role=%q", ErrInvalidField, string(role))
	}

	res, err := s.db.ExecContext(ctx,
		"UPDATE principals SET role = ?, updated_at = datetime('now') WHERE id = ? AND role <> ?",
		string(role), id, string(role),
	)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("ロールの更新に失敗: %w", err)
	}
	modified, err := res.RowsAffected()
	if err != nil {
		return UpdateResult{}, fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if modified > 0 {
		return matched(true), nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM principals WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return UpdateResult{Acknowledged: true}, nil
	}
	if err != nil {
		return UpdateResult{}, fmt.Errorf("ユーザーの存在確認に失敗: %w", err)
	}
	return matched(false), nil
}

// AddBalance はユーザーの残高に金額を加算する。残高が未設定の場合は金額をそのまま設定する。
// 加算は1文のUPDATEで行うため、並行リクエストでも加算が失われない。
func (s *PrincipalStore) AddBalance(ctx context.Context, email string, amount float64) (UpdateResult, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE principals SET balance = COALESCE(balance, 0) + ?, updated_at = datetime('now') WHERE email = ?",
		amount, email,
	)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("残高の更新に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return UpdateResult{}, fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if n == 0 {
		return UpdateResult{Acknowledged: true}, nil
	}
	return matched(amount != 0), nil
}

// nullableFloat はnilをSQLのNULLに変換する。
func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
