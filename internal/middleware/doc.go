// Package middleware 提供了 HTTP 請求處理的中間件。
//
// 目前包含附件下載連結的簽名驗證。
package middleware
