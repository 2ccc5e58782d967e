// Package middleware はマーケットプレイスAPIのGinミドルウェアと認証・認可の中核を提供する。
//
// TokenCodecによるBearerトークンの発行・検証、Gateによるロールベースの
// アクセス判定、パニックリカバリ、CORS設定を含む。ロールはトークンに
// 含めず、リクエストごとにRoleResolverから取得し直す。
package middleware
