// Package chat 群組消息服務：發送、刪除、表情回應、可見性過濾與讀取補充。
package chat

import (
	"context"
	"errors"
	"time"

	"groupchat-gateway/internal/apperr"
	"groupchat-gateway/internal/constants"
	"groupchat-gateway/internal/platform/logger"
)

// 用戶可見的錯誤訊息
const (
	msgGroupNotFound    = "Groupe non trouvé"
	msgMessageNotFound  = "Message non trouvé"
	msgContentRequired  = "Le contenu du message est requis"
	msgContentTooLong   = "Le message est trop long"
	msgNotMember        = "Vous n'êtes pas membre de ce groupe"
	msgDeleteForbidden  = "Vous n'êtes pas autorisé à supprimer ce message"
	msgEditForbidden    = "Seul l'auteur peut modifier ce message"
	msgEmojiRequired    = "Emoji requis"
	msgReactionNotFound = "Réaction non trouvée"
	msgInternal         = "Erreur interne du serveur"
)

// Dependencies 服務依賴
type Dependencies struct {
	Messages  MessageRepository
	Reactions ReactionRepository
	Groups    GroupRepository
	Users     UserDirectory
	Contents  ContentDirectory
	Notifier  Notifier
	Auditor   Auditor
}

// Options 服務限制
type Options struct {
	MaxContentLength int
	DefaultPageSize  int
	MaxPageSize      int
	// RefreshBatch messages-updated 重新載入全部消息時每批讀取的數量
	RefreshBatch int
}

// Option 服務選項
type Option func(*Service)

// WithClock 替換時鐘（測試用）
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.clock = now }
}

// WithOptions 設定限制
func WithOptions(o Options) Option {
	return func(s *Service) {
		if o.MaxContentLength > 0 {
			s.opts.MaxContentLength = o.MaxContentLength
		}
		if o.DefaultPageSize > 0 {
			s.opts.DefaultPageSize = o.DefaultPageSize
		}
		if o.MaxPageSize > 0 {
			s.opts.MaxPageSize = o.MaxPageSize
		}
		if o.RefreshBatch > 0 {
			s.opts.RefreshBatch = o.RefreshBatch
		}
	}
}

// Service 群組消息服務
type Service struct {
	messages  MessageRepository
	reactions ReactionRepository
	groups    GroupRepository
	users     UserDirectory
	contents  ContentDirectory
	notifier  Notifier
	auditor   Auditor
	clock     func() time.Time
	opts      Options
}

// NewService 創建消息服務
func NewService(deps Dependencies, options ...Option) *Service {
	s := &Service{
		messages:  deps.Messages,
		reactions: deps.Reactions,
		groups:    deps.Groups,
		users:     deps.Users,
		contents:  deps.Contents,
		notifier:  deps.Notifier,
		auditor:   deps.Auditor,
		clock:     time.Now,
		opts: Options{
			MaxContentLength: constants.DefaultMaxMessageLength,
			DefaultPageSize:  constants.DefaultPageSize,
			MaxPageSize:      constants.DefaultMaxPageSize,
			RefreshBatch:     constants.DefaultRefreshBatch,
		},
	}
	if s.notifier == nil {
		s.notifier = noopNotifier{}
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// now 截斷到毫秒，與 MongoDB 的時間精度一致
func (s *Service) now() time.Time {
	return s.clock().UTC().Truncate(time.Millisecond)
}

// memberGroup 載入群組並確認成員身份；群組不存在與非成員一律返回 NotFound
func (s *Service) memberGroup(ctx context.Context, groupID, userID string) (*Group, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound(msgGroupNotFound)
		}
		return nil, apperr.Internal(msgInternal, err)
	}
	if !g.IsMember(userID) {
		return nil, apperr.NotFound(msgGroupNotFound)
	}
	return g, nil
}

// liveMessage 載入未刪除的消息
func (s *Service) liveMessage(ctx context.Context, messageID string) (*Message, error) {
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound(msgMessageNotFound)
		}
		return nil, apperr.Internal(msgInternal, err)
	}
	if m.IsDeleted() {
		return nil, apperr.NotFound(msgMessageNotFound)
	}
	return m, nil
}

// IsGroupMember 供即時通道檢查 join-group 權限
func (s *Service) IsGroupMember(ctx context.Context, groupID, userID string) (bool, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return g.IsMember(userID), nil
}

// IsGroupManager 供即時通道檢查 member-removed 權限
func (s *Service) IsGroupManager(ctx context.Context, groupID, userID string) (bool, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return g.IsAdmin(userID) || g.IsModerator(userID), nil
}

// groupView 解析成員資料，失敗時只返回 ID
func (s *Service) groupView(ctx context.Context, g *Group) GroupView {
	users, err := s.users.GetByIDs(ctx, g.Members)
	if err != nil {
		logger.Warning(ctx, "載入群組成員資料失敗",
			logger.WithGroupID(g.ID),
			logger.WithError(err))
	}

	members := make([]UserProfile, 0, len(g.Members))
	for _, id := range g.Members {
		if err != nil {
			members = append(members, *unresolvedProfile(id))
			continue
		}
		members = append(members, *resolveProfile(id, users))
	}

	hidden := g.HiddenFor
	if hidden == nil {
		hidden = []string{}
	}
	return GroupView{
		ID:           g.ID,
		Name:         g.Name,
		Members:      members,
		AdminID:      g.AdminID,
		ModeratorIDs: g.ModeratorIDs,
		HiddenFor:    hidden,
		UpdatedAt:    g.UpdatedAt,
	}
}

type noopNotifier struct{}

func (noopNotifier) ToGroup(context.Context, string, string, any) {}
func (noopNotifier) ToUser(context.Context, string, string, any)  {}
