package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"groupchat-gateway/internal/constants"
	"groupchat-gateway/internal/platform/logger"

	"github.com/gorilla/websocket"
)

// 客戶端可發送的事件
const (
	eventJoinUserRoom = "join-user-room"
	eventJoinGroup    = "join-group"
	eventLeaveGroup   = "leave-group"
)

// MembershipChecker 檢查用戶在群組中的身份
type MembershipChecker interface {
	IsGroupMember(ctx context.Context, groupID, userID string) (bool, error)
	// IsGroupManager 管理員或版主
	IsGroupManager(ctx context.Context, groupID, userID string) (bool, error)
}

// Options websocket 連線參數
type Options struct {
	SendBuffer     int
	MaxMessageSize int64
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	// AllowedOrigins 為空時允許所有來源
	AllowedOrigins []string
}

func (o *Options) applyDefaults() {
	if o.SendBuffer <= 0 {
		o.SendBuffer = constants.DefaultWSSendBuffer
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = constants.DefaultWSMaxMessageSize
	}
	if o.PongWait <= 0 {
		o.PongWait = constants.DefaultWSPongWait * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = constants.DefaultWSWriteWait * time.Second
	}
}

// Server 處理 websocket 升級與客戶端事件
type Server struct {
	hub      *Hub
	broker   Broker
	members  MembershipChecker
	upgrader websocket.Upgrader
	opts     Options
}

// NewServer 創建 websocket 服務
func NewServer(hub *Hub, broker Broker, members MembershipChecker, opts Options) *Server {
	opts.applyDefaults()
	s := &Server{hub: hub, broker: broker, members: members, opts: opts}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 || slices.Contains(s.opts.AllowedOrigins, "*") {
		return true
	}
	if slices.Contains(s.opts.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// Serve 升級連線並為已認證的用戶建立會話，用戶自動加入自己的房間
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()
	sess := NewSession(userID, s.opts.SendBuffer)
	if err := s.hub.Register(sess); err != nil {
		logger.Warning(ctx, "拒絕 websocket 連線",
			logger.WithUserID(userID),
			logger.WithError(err))
		http.Error(w, "Trop de connexions", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.hub.Unregister(sess)
		logger.Warning(ctx, "websocket 升級失敗", logger.WithUserID(userID), logger.WithError(err))
		return
	}

	// 連線的生命週期與 HTTP 請求脫鉤，保留 trace id 以便追蹤
	connCtx := logger.WithTraceID(context.Background(), logger.GetTraceID(ctx))
	c := &client{server: s, conn: conn, sess: sess}
	logger.Info(connCtx, "websocket 連線建立",
		logger.WithUserID(userID),
		logger.WithConnID(sess.ID))

	go c.writePump(connCtx)
	go c.readPump(connCtx)
}

// client 一條 websocket 連線
type client struct {
	server *Server
	conn   *websocket.Conn
	sess   *Session
}

func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.server.hub.Unregister(c.sess)
		_ = c.conn.Close()
		logger.Info(ctx, "websocket 連線關閉",
			logger.WithUserID(c.sess.UserID),
			logger.WithConnID(c.sess.ID))
	}()

	opts := c.server.opts
	c.conn.SetReadLimit(opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warning(ctx, "websocket 讀取錯誤",
					logger.WithConnID(c.sess.ID),
					logger.WithError(err))
			}
			return
		}

		var in inboundFrame
		if err := json.Unmarshal(data, &in); err != nil {
			c.server.replyError(ctx, c.sess, "", "Format de message invalide")
			continue
		}
		c.server.handle(ctx, c.sess, in)
	}
}

func (c *client) writePump(ctx context.Context) {
	opts := c.server.opts
	ticker := time.NewTicker(opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.sess.Send():
			_ = c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Debug(ctx, "websocket 寫入失敗",
					logger.WithConnID(c.sess.ID),
					logger.WithError(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// memberRemoval member-removed 事件內容
type memberRemoval struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
}

// handle 處理客戶端事件
func (s *Server) handle(ctx context.Context, sess *Session, in inboundFrame) {
	switch in.Event {
	case eventJoinUserRoom:
		userID := decodeID(in.Data, "userId")
		if userID != sess.UserID {
			s.replyError(ctx, sess, in.Event, "Accès refusé")
			return
		}
		_ = s.hub.Join(sess, UserRoom(userID))

	case eventJoinGroup:
		groupID := decodeID(in.Data, "groupId")
		if groupID == "" {
			s.replyError(ctx, sess, in.Event, "Identifiant de groupe requis")
			return
		}
		if !s.isMember(ctx, groupID, sess.UserID) {
			s.replyError(ctx, sess, in.Event, "Vous n'êtes pas membre de ce groupe")
			return
		}
		_ = s.hub.Join(sess, GroupRoom(groupID))

	case eventLeaveGroup:
		if groupID := decodeID(in.Data, "groupId"); groupID != "" {
			s.hub.Leave(sess, GroupRoom(groupID))
		}

	case EventMemberRemoved:
		var m memberRemoval
		if err := json.Unmarshal(in.Data, &m); err != nil || m.GroupID == "" || m.UserID == "" {
			s.replyError(ctx, sess, in.Event, "Données invalides")
			return
		}
		if msg := s.checkRemoval(ctx, sess.UserID, m); msg != "" {
			s.replyError(ctx, sess, in.Event, msg)
			return
		}
		s.relayRemoval(ctx, m)

	default:
		s.replyError(ctx, sess, in.Event, "Événement inconnu")
	}
}

func (s *Server) isMember(ctx context.Context, groupID, userID string) bool {
	ok, err := s.members.IsGroupMember(ctx, groupID, userID)
	if err != nil {
		logger.Warning(ctx, "檢查群組成員失敗",
			logger.WithGroupID(groupID),
			logger.WithUserID(userID),
			logger.WithError(err))
		return false
	}
	return ok
}

// checkRemoval 目標必須已不在群組中，且發送者是目標本人或群組管理者。
// 返回空字串表示允許轉發.
func (s *Server) checkRemoval(ctx context.Context, senderID string, m memberRemoval) string {
	stillMember, err := s.members.IsGroupMember(ctx, m.GroupID, m.UserID)
	if err != nil {
		logger.Warning(ctx, "檢查被移除用戶失敗",
			logger.WithGroupID(m.GroupID),
			logger.WithUserID(m.UserID),
			logger.WithError(err))
		return "Erreur interne"
	}
	if stillMember {
		return "Cet utilisateur est toujours membre du groupe"
	}
	if m.UserID == senderID {
		return ""
	}

	manager, err := s.members.IsGroupManager(ctx, m.GroupID, senderID)
	if err != nil {
		logger.Warning(ctx, "檢查群組管理權限失敗",
			logger.WithGroupID(m.GroupID),
			logger.WithUserID(senderID),
			logger.WithError(err))
		return "Erreur interne"
	}
	if !manager {
		return "Accès refusé"
	}
	return ""
}

// relayRemoval 先將被移除用戶的會話移出群組房間並通知該用戶，再通知群組其他成員
func (s *Server) relayRemoval(ctx context.Context, m memberRemoval) {
	frame, err := EncodeFrame(EventMemberRemoved, m)
	if err != nil {
		return
	}
	envs := []Envelope{
		{Room: UserRoom(m.UserID), Event: EventMemberRemoved, Frame: frame, Evict: &Eviction{GroupID: m.GroupID, UserID: m.UserID}},
		{Room: GroupRoom(m.GroupID), Event: EventMemberRemoved, Frame: frame},
	}
	for _, env := range envs {
		if err := s.broker.Publish(ctx, env); err != nil {
			logger.Warning(ctx, "轉發 member-removed 失敗",
				logger.WithGroupID(m.GroupID),
				logger.WithError(err))
		}
	}
}

// errorPayload error 事件內容
type errorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

// replyError 只送給發出請求的會話
func (s *Server) replyError(ctx context.Context, sess *Session, event, message string) {
	frame, err := EncodeFrame(EventError, errorPayload{Event: event, Message: message})
	if err != nil {
		return
	}
	if !s.hub.sendTo(sess, frame) {
		logger.Debug(ctx, "無法送出錯誤事件", logger.WithConnID(sess.ID))
	}
}

// decodeID 接受字串或 {"<key>": "..."} 兩種格式
func decodeID(raw json.RawMessage, key string) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	if v, ok := obj[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
