// Package marketplace はマーケットプレイス管理APIのHTTPサーバーを提供する。
//
// すべてのルートは公開・会員以上・管理者のいずれかのポリシーに紐づき、
// 会員以上と管理者のルートはアクセスゲートを通過した場合のみハンドラが実行される。
// ハンドラはそれぞれ1つのストア操作を行い、その結果をそのまま返す。
package marketplace
