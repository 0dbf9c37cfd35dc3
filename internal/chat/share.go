package chat

import (
	"context"
	"errors"
	"strings"

	"groupchat-gateway/internal/apperr"
)

const msgSharedNotFound = "Contenu partagé non trouvé"

// 分享時未附文字的預設內容
var defaultShareContent = map[SharedKind]string{
	SharedPost:   "Publication partagée",
	SharedFolder: "Dossier partagé",
	SharedPdf:    "PDF partagé",
}

// ShareInput 分享參數
type ShareInput struct {
	Kind    SharedKind
	GroupID string
	UserID  string
	ItemID  string
	Content string
}

// Share 在群組中分享貼文、資料夾或 PDF，內容在分享時擷取快照
func (s *Service) Share(ctx context.Context, in ShareInput) (*MessageView, error) {
	if !in.Kind.Valid() {
		return nil, apperr.InvalidArgument(msgSharedNotFound)
	}
	if strings.TrimSpace(in.ItemID) == "" {
		return nil, apperr.InvalidArgument(msgSharedNotFound)
	}

	group, err := s.memberGroup(ctx, in.GroupID, in.UserID)
	if err != nil {
		return nil, err
	}

	snap, err := s.contents.Snapshot(ctx, in.Kind, in.ItemID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound(msgSharedNotFound)
		}
		return nil, apperr.Internal(msgInternal, err)
	}

	content := strings.TrimSpace(in.Content)
	if content == "" {
		content = defaultShareContent[in.Kind]
	}
	content, err = s.normalizeContent(content)
	if err != nil {
		return nil, err
	}

	msg := NewUserMessage(group.ID, in.UserID, content, s.now())
	msg.Shared = snap
	return s.persistAndBroadcast(ctx, group, msg, "shared")
}
