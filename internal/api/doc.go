// Package api 處理 HTTP 請求路由和處理。
//
// 聊天事件走 /ws 的 WebSocket 連線，附件經由簽名連結 /files/:id 下載，
// /api 底下則是健康檢查與房間查詢。
package api
