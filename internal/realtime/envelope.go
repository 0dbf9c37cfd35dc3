// Package realtime 即時事件推送：房間式的 websocket 會話註冊表與跨實例廣播。
//
// 房間名稱為 "group:<id>" 或 "user:<id>"。事件先編碼成 JSON frame，
// 再包在 Envelope 中交給 Broker，由各實例的 Hub 投遞給本機會話。
package realtime

import (
	"encoding/json"
	"strings"
)

// EventMemberRemoved 成員被移出群組的事件
const EventMemberRemoved = "member-removed"

// EventError 通知客戶端請求失敗
const EventError = "error"

const (
	groupRoomPrefix = "group:"
	userRoomPrefix  = "user:"
)

// GroupRoom 群組房間名稱
func GroupRoom(groupID string) string { return groupRoomPrefix + groupID }

// UserRoom 用戶房間名稱
func UserRoom(userID string) string { return userRoomPrefix + userID }

// isGroupRoom 判斷是否為群組房間
func isGroupRoom(room string) bool { return strings.HasPrefix(room, groupRoomPrefix) }

// Frame 客戶端收發的訊框
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// inboundFrame 客戶端送來的訊框，data 延後解析
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EncodeFrame 編碼訊框
func EncodeFrame(event string, data any) ([]byte, error) {
	return json.Marshal(Frame{Event: event, Data: data})
}

// Eviction 將用戶的所有會話移出群組房間
type Eviction struct {
	GroupID string `msgpack:"g"`
	UserID  string `msgpack:"u"`
}

// Envelope 跨實例傳遞的事件
type Envelope struct {
	Room  string    `msgpack:"r"`
	Event string    `msgpack:"e"`
	Frame []byte    `msgpack:"f"`
	Evict *Eviction `msgpack:"x,omitempty"`
}
