package realtime

import (
	"context"
	"errors"
	"sync"

	"groupchat-gateway/internal/platform/logger"
	"groupchat-gateway/internal/platform/metrics"

	"github.com/google/uuid"
)

var (
	// ErrTooManyConnections 超過連線上限
	ErrTooManyConnections = errors.New("realtime: too many connections")
	// ErrSessionClosed 會話已關閉
	ErrSessionClosed = errors.New("realtime: session closed")
)

// Session 一條 websocket 連線在 Hub 中的狀態。rooms 和 closed 由 Hub 的鎖保護。
type Session struct {
	ID     string
	UserID string
	send   chan []byte

	rooms  map[string]struct{}
	closed bool
}

// NewSession 創建會話
func NewSession(userID string, buffer int) *Session {
	if buffer <= 0 {
		buffer = 1
	}
	return &Session{
		ID:     uuid.NewString(),
		UserID: userID,
		send:   make(chan []byte, buffer),
		rooms:  make(map[string]struct{}),
	}
}

// Send 待寫出的訊框，會話被移除後關閉
func (s *Session) Send() <-chan []byte { return s.send }

// Hub 本實例的會話註冊表
type Hub struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	rooms      map[string]map[string]*Session
	perUser    map[string]int
	maxPerUser int
	maxTotal   int
}

// NewHub 創建 Hub；上限小於等於 0 表示不限制
func NewHub(maxPerUser, maxTotal int) *Hub {
	return &Hub{
		sessions:   make(map[string]*Session),
		rooms:      make(map[string]map[string]*Session),
		perUser:    make(map[string]int),
		maxPerUser: maxPerUser,
		maxTotal:   maxTotal,
	}
}

// Register 註冊會話並加入用戶房間
func (h *Hub) Register(s *Session) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.maxTotal > 0 && len(h.sessions) >= h.maxTotal {
		return ErrTooManyConnections
	}
	if h.maxPerUser > 0 && h.perUser[s.UserID] >= h.maxPerUser {
		return ErrTooManyConnections
	}

	h.sessions[s.ID] = s
	h.perUser[s.UserID]++
	h.joinLocked(s, UserRoom(s.UserID))
	metrics.RealtimeConnections.Inc()
	return nil
}

// Unregister 移除會話並關閉其寫入通道，可重複呼叫
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *Session) {
	if _, ok := h.sessions[s.ID]; !ok {
		return
	}
	for room := range s.rooms {
		h.leaveLocked(s, room)
	}
	delete(h.sessions, s.ID)
	if h.perUser[s.UserID] <= 1 {
		delete(h.perUser, s.UserID)
	} else {
		h.perUser[s.UserID]--
	}
	if !s.closed {
		s.closed = true
		close(s.send)
	}
	metrics.RealtimeConnections.Dec()
}

// Join 加入房間
func (h *Hub) Join(s *Session, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s.ID]; !ok {
		return ErrSessionClosed
	}
	h.joinLocked(s, room)
	return nil
}

// Leave 離開房間
func (h *Hub) Leave(s *Session, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(s, room)
}

func (h *Hub) joinLocked(s *Session, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Session)
		h.rooms[room] = members
	}
	members[s.ID] = s
	s.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(s *Session, room string) {
	delete(s.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, s.ID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Deliver 投遞到本機房間內的會話，返回成功寫入的數量。
// 寫入通道已滿的會話視為失效並移除。
func (h *Hub) Deliver(ctx context.Context, env Envelope) int {
	if env.Evict != nil {
		h.evict(env.Evict.GroupID, env.Evict.UserID)
	}
	if env.Room == "" || len(env.Frame) == 0 {
		return 0
	}

	var stale []*Session
	sent := 0

	h.mu.RLock()
	for _, s := range h.rooms[env.Room] {
		if s.closed {
			continue
		}
		select {
		case s.send <- env.Frame:
			sent++
		default:
			stale = append(stale, s)
		}
	}
	h.mu.RUnlock()

	if len(stale) > 0 {
		h.mu.Lock()
		for _, s := range stale {
			h.removeLocked(s)
		}
		h.mu.Unlock()
		metrics.RealtimeDropped.Add(float64(len(stale)))
		logger.Warning(ctx, "移除寫入緩衝已滿的連線",
			logger.WithAction("realtime_deliver"),
			logger.WithDetails(map[string]interface{}{"room": env.Room, "dropped": len(stale)}))
	}
	return sent
}

// evict 將用戶的所有會話移出群組房間
func (h *Hub) evict(groupID, userID string) {
	room := GroupRoom(groupID)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.rooms[room] {
		if s.UserID == userID {
			h.leaveLocked(s, room)
		}
	}
}

// InRoom 會話是否在房間內
func (h *Hub) InRoom(s *Session, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := s.rooms[room]
	return ok
}

// Stats 統計信息
func (h *Hub) Stats() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	groupRooms := 0
	for room := range h.rooms {
		if isGroupRoom(room) {
			groupRooms++
		}
	}
	return map[string]interface{}{
		"connections":  len(h.sessions),
		"unique_users": len(h.perUser),
		"group_rooms":  groupRooms,
		"max_total":    h.maxTotal,
		"max_per_user": h.maxPerUser,
	}
}

// Close 關閉所有會話
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.sessions {
		h.removeLocked(s)
	}
}

// sendTo 直接寫入單一會話，緩衝已滿時放棄
func (h *Hub) sendTo(s *Session, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}
