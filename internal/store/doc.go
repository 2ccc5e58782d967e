// Package store はマーケットプレイスAPIの永続化層を提供する。
//
// ユーザー（プリンシパル）はprincipalsテーブルに、注文・レポート・通知などの
// 業務データはコレクション名付きのJSONドキュメントとしてdocumentsテーブルに
// 保存する。業務データの中身は解釈せず、そのまま保存・返却する。
package store
