package middleware

import "errors"

// 認証・認可で使用するセンチネルエラー。
// 呼び出し側は errors.Is で判定する。
var (
	// ErrMissingCredentials はAuthorizationヘッダーが無いことを示す。
	ErrMissingCredentials = errors.New("middleware: missing credentials")
	// ErrMalformedToken はトークンを解析できないことを示す。
	ErrMalformedToken = errors.New("middleware: malformed token")
	// ErrInvalidSignature はトークンの署名が一致しないことを示す。
	ErrInvalidSignature = errors.New("middleware: invalid signature")
	// ErrTokenExpired はトークンの有効期限切れを示す。
	ErrTokenExpired = errors.New("middleware: token expired")
	// ErrEmptySecret は署名用シークレットが空であることを示す。
	ErrEmptySecret = errors.New("middleware: empty signing secret")

	// ErrPrincipalNotFound はメールアドレスに対応するユーザーが存在しないことを示す。
	ErrPrincipalNotFound = errors.New("middleware: principal not found")
	// ErrInvalidRole は保存されているロールが既知の値ではないことを示す。
	ErrInvalidRole = errors.New("middleware: invalid role")
	// ErrRoleNotPermitted はロールがポリシーの許可リストに含まれないことを示す。
	ErrRoleNotPermitted = errors.New("middleware: role not permitted")
)
