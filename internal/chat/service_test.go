package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"groupchat-gateway/internal/apperr"
)

func TestSendRejectsNonMember(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Send(context.Background(), SendInput{GroupID: "g1", AuthorID: "eve", Content: "bonjour"})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("非成員發送應返回 NotFound，得到 %v", err)
	}
	if len(f.store.messages) != 0 {
		t.Errorf("非成員發送不應寫入消息，實際 %d 則", len(f.store.messages))
	}

	_, err = f.svc.Send(context.Background(), SendInput{GroupID: "missing", AuthorID: "alice", Content: "bonjour"})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("群組不存在應返回 NotFound，得到 %v", err)
	}
}

func TestSendValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    apperr.Kind
	}{
		{name: "空內容", content: "", want: apperr.KindInvalidArgument},
		{name: "只有空白", content: "  \n\t ", want: apperr.KindInvalidArgument},
		{name: "超過長度", content: strings.Repeat("é", 5001), want: apperr.KindInvalidArgument},
		{name: "前綴後為空", content: "[REPLY:m1]   ", want: apperr.KindInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.svc.Send(context.Background(), SendInput{GroupID: "g1", AuthorID: "bob", Content: tt.content})
			if !apperr.Is(err, tt.want) {
				t.Fatalf("期望 %v，得到 %v", tt.want, err)
			}
			if len(f.store.messages) != 0 {
				t.Errorf("驗證失敗不應寫入消息")
			}
		})
	}
}

func TestSendTrimsAndBroadcasts(t *testing.T) {
	f := newFixture()

	v := f.send(t, "g1", "bob", "  Bonjour à tous  ")
	if v.Content != "Bonjour à tous" {
		t.Errorf("內容應去除首尾空白，得到 %q", v.Content)
	}
	if v.Author == nil || v.Author.FirstName != "Bob" {
		t.Errorf("作者資料未解析: %+v", v.Author)
	}

	events := f.notifier.named(EventNewMessage)
	if len(events) != 1 || events[0].Room != "group:g1" {
		t.Fatalf("應推送一次 new-message 到群組房間，得到 %+v", events)
	}
	if got := f.store.groups["g1"].UpdatedAt; !got.Equal(v.CreatedAt) {
		t.Errorf("群組 updatedAt 應更新為 %v，得到 %v", v.CreatedAt, got)
	}
	if len(f.notifier.named(EventGroupUpdated)) != 0 {
		t.Errorf("沒有隱藏用戶時不應推送 groupUpdated")
	}
}

func TestParseLegacyReply(t *testing.T) {
	tests := []struct {
		in        string
		wantReply string
		wantText  string
	}{
		{in: "[REPLY:abc123] merci", wantReply: "abc123", wantText: "merci"},
		{in: "[REPLY:abc123]merci", wantReply: "abc123", wantText: "merci"},
		{in: "[REPLY:abc]\nligne 1\nligne 2", wantReply: "abc", wantText: "ligne 1\nligne 2"},
		{in: "pas de préfixe", wantText: "pas de préfixe"},
		{in: "texte [REPLY:abc] milieu", wantText: "texte [REPLY:abc] milieu"},
		{in: "[REPLY:] vide", wantText: "[REPLY:] vide"},
	}

	for _, tt := range tests {
		reply, text := parseLegacyReply(tt.in)
		if reply != tt.wantReply || text != tt.wantText {
			t.Errorf("parseLegacyReply(%q) = (%q, %q)，期望 (%q, %q)", tt.in, reply, text, tt.wantReply, tt.wantText)
		}
	}
}

func TestSendReplyResolution(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	target := f.send(t, "g1", "alice", "Question sur l'article 1103")
	other := f.send(t, "g2", "alice", "Autre groupe")

	tests := []struct {
		name      string
		in        SendInput
		wantReply string
		wantText  string
	}{
		{
			name:      "明確指定回覆",
			in:        SendInput{GroupID: "g1", AuthorID: "bob", Content: "Réponse", ReplyToID: target.ID},
			wantReply: target.ID,
			wantText:  "Réponse",
		},
		{
			name:      "舊版前綴",
			in:        SendInput{GroupID: "g1", AuthorID: "bob", Content: "[REPLY:" + target.ID + "] Réponse"},
			wantReply: target.ID,
			wantText:  "Réponse",
		},
		{
			name:     "目標不存在時照常發送",
			in:       SendInput{GroupID: "g1", AuthorID: "bob", Content: "Réponse", ReplyToID: "nope"},
			wantText: "Réponse",
		},
		{
			name:     "目標在其他群組時忽略",
			in:       SendInput{GroupID: "g1", AuthorID: "bob", Content: "Réponse", ReplyToID: other.ID},
			wantText: "Réponse",
		},
		{
			name:     "明確指定時不解析前綴",
			in:       SendInput{GroupID: "g1", AuthorID: "bob", Content: "[REPLY:xyz] Réponse", ReplyToID: "nope"},
			wantText: "[REPLY:xyz] Réponse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := f.svc.Send(ctx, tt.in)
			if err != nil {
				t.Fatalf("發送失敗: %v", err)
			}
			if v.Content != tt.wantText {
				t.Errorf("內容 = %q，期望 %q", v.Content, tt.wantText)
			}
			stored := f.store.messages[v.ID]
			if stored.ReplyToID != tt.wantReply {
				t.Errorf("回覆目標 = %q，期望 %q", stored.ReplyToID, tt.wantReply)
			}
			if tt.wantReply == "" && v.ReplyTo != nil {
				t.Errorf("不應帶回覆預覽: %+v", v.ReplyTo)
			}
		})
	}
}

func TestReplyPreviewResolvedAtReadTime(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	x := f.send(t, "g1", "alice", "Version originale")
	reply, err := f.svc.Send(ctx, SendInput{GroupID: "g1", AuthorID: "bob", Content: "Je réponds", ReplyToID: x.ID})
	if err != nil {
		t.Fatalf("發送回覆失敗: %v", err)
	}
	if reply.ReplyTo == nil || reply.ReplyTo.ID != x.ID || reply.ReplyTo.Content != "Version originale" {
		t.Fatalf("回覆預覽錯誤: %+v", reply.ReplyTo)
	}

	if _, err := f.svc.Edit(ctx, EditInput{MessageID: x.ID, UserID: "alice", Content: "Version corrigée"}); err != nil {
		t.Fatalf("編輯失敗: %v", err)
	}

	page, err := f.svc.ListMessages(ctx, ListInput{GroupID: "g1", UserID: "carol"})
	if err != nil {
		t.Fatalf("讀取失敗: %v", err)
	}
	got := findView(page.Messages, reply.ID)
	if got == nil || got.ReplyTo == nil {
		t.Fatalf("找不到回覆消息或預覽")
	}
	if got.ReplyTo.ID != x.ID || got.ReplyTo.Content != "Version corrigée" {
		t.Errorf("預覽應反映編輯後內容，得到 %+v", got.ReplyTo)
	}
	if got.ReplyTo.Author == nil || got.ReplyTo.Author.ID != "alice" {
		t.Errorf("預覽作者錯誤: %+v", got.ReplyTo.Author)
	}

	// 目標被刪除後預覽標記為已刪除
	if _, err := f.svc.Delete(ctx, x.ID, "alice"); err != nil {
		t.Fatalf("刪除失敗: %v", err)
	}
	page, _ = f.svc.ListMessages(ctx, ListInput{GroupID: "g1", UserID: "carol"})
	got = findView(page.Messages, reply.ID)
	if got == nil || got.ReplyTo == nil || !got.ReplyTo.IsDeleted || got.ReplyTo.Content != "" {
		t.Errorf("目標刪除後預覽應標記 isDeleted，得到 %+v", got)
	}
}

func TestEditMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	m := f.send(t, "g1", "bob", "Brouillon")

	if _, err := f.svc.Edit(ctx, EditInput{MessageID: m.ID, UserID: "alice", Content: "x"}); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("非作者編輯應返回 Forbidden，得到 %v", err)
	}
	if _, err := f.svc.Edit(ctx, EditInput{MessageID: m.ID, UserID: "bob", Content: "   "}); !apperr.Is(err, apperr.KindInvalidArgument) {
		t.Errorf("空內容應返回 InvalidArgument，得到 %v", err)
	}
	if _, err := f.svc.Edit(ctx, EditInput{MessageID: "missing", UserID: "bob", Content: "x"}); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("消息不存在應返回 NotFound，得到 %v", err)
	}

	f.notifier.reset()
	v, err := f.svc.Edit(ctx, EditInput{MessageID: m.ID, UserID: "bob", Content: "Version finale"})
	if err != nil {
		t.Fatalf("編輯失敗: %v", err)
	}
	if !v.IsEdited || v.EditedAt == nil || v.Content != "Version finale" {
		t.Errorf("編輯結果錯誤: %+v", v)
	}
	if len(f.notifier.named(EventMessageUpdated)) != 1 {
		t.Errorf("應推送一次 message-updated")
	}
}

func TestEditByRemovedAuthor(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	m := f.send(t, "g1", "bob", "Brouillon")
	f.store.groups["g1"].Members = []string{"alice", "carol", "dave"}
	f.notifier.reset()

	_, err := f.svc.Edit(ctx, EditInput{MessageID: m.ID, UserID: "bob", Content: "Modifié après départ"})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("已離開群組的作者編輯應返回 NotFound，得到 %v", err)
	}
	if got := f.store.messages[m.ID].Content; got != "Brouillon" {
		t.Errorf("內容不應被修改，得到 %q", got)
	}
	if len(f.notifier.named(EventMessageUpdated)) != 0 {
		t.Errorf("不應推送 message-updated")
	}
}

func TestDeleteByAuthor(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	m := f.send(t, "g1", "bob", "Oups")
	f.notifier.reset()

	res, err := f.svc.Delete(ctx, m.ID, "bob")
	if err != nil {
		t.Fatalf("作者刪除失敗: %v", err)
	}
	if res.SystemMessage != nil {
		t.Errorf("作者刪除不應產生系統消息")
	}
	if n := countSystem(f.store); n != 0 {
		t.Errorf("系統消息數量 = %d，期望 0", n)
	}

	events := f.notifier.named(EventMessageDeleted)
	if len(events) != 1 {
		t.Fatalf("應推送一次 message-deleted，得到 %d", len(events))
	}
	payload := events[0].Payload.(MessageDeletedPayload)
	if payload.MessageID != m.ID || payload.GroupID != "g1" || events[0].Room != "group:g1" {
		t.Errorf("message-deleted 內容錯誤: %+v", events[0])
	}
	if len(f.notifier.named(EventMessagesUpdated)) != 0 {
		t.Errorf("作者刪除不應推送 messages-updated")
	}

	stored := f.store.messages[m.ID]
	if stored.Deletion == nil || stored.Deletion.Reason != DeletedByAuthor || stored.Deletion.By != "bob" {
		t.Errorf("應軟刪除並記錄原因，得到 %+v", stored.Deletion)
	}
	if _, err := f.svc.Delete(ctx, m.ID, "bob"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("重複刪除應返回 NotFound，得到 %v", err)
	}
}

func TestDeleteByModeratorOrAdmin(t *testing.T) {
	tests := []struct {
		name       string
		actor      string
		wantReason DeletionReason
		wantText   string
	}{
		{
			name:       "版主刪除",
			actor:      "carol",
			wantReason: DeletedByModerator,
			wantText:   "Message de Bob supprimé par le modérateur Carol",
		},
		{
			name:       "管理員刪除",
			actor:      "alice",
			wantReason: DeletedByAdmin,
			wantText:   "Message de Bob supprimé par l'administrateur Alice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture()
			m := f.send(t, "g1", "bob", "Contenu à modérer")
			f.notifier.reset()

			res, err := f.svc.Delete(ctx, m.ID, tt.actor)
			if err != nil {
				t.Fatalf("刪除失敗: %v", err)
			}
			if res.SystemMessage == nil {
				t.Fatalf("非作者刪除應產生系統消息")
			}
			if res.SystemMessage.Content != tt.wantText {
				t.Errorf("系統消息 = %q，期望 %q", res.SystemMessage.Content, tt.wantText)
			}
			if !res.SystemMessage.IsSystemMessage || res.SystemMessage.Author != nil {
				t.Errorf("系統消息不應有作者: %+v", res.SystemMessage)
			}
			if countSystem(f.store) != 1 {
				t.Errorf("應只寫入一則系統消息")
			}
			if res.Reason != string(tt.wantReason) {
				t.Errorf("刪除原因 = %q，期望 %q", res.Reason, tt.wantReason)
			}
			if len(f.auditor.deletions) != 1 || f.auditor.deletions[0] != tt.wantReason {
				t.Errorf("審計記錄錯誤: %v", f.auditor.deletions)
			}

			updates := f.notifier.named(EventMessagesUpdated)
			if len(updates) != 4 {
				t.Fatalf("應推送 messages-updated 給四位成員，得到 %d", len(updates))
			}
			for _, e := range updates {
				if !strings.HasPrefix(e.Room, "user:") {
					t.Errorf("messages-updated 應推送到用戶房間，得到 %s", e.Room)
				}
				p := e.Payload.(MessagesUpdatedPayload)
				if findView(p.Messages, m.ID) != nil {
					t.Errorf("重新載入的列表不應包含已刪除消息")
				}
				if findView(p.Messages, res.SystemMessage.ID) == nil {
					t.Errorf("重新載入的列表應包含系統消息")
				}
			}
			if len(f.notifier.named(EventMessageDeleted)) != 0 {
				t.Errorf("非作者刪除不應推送 message-deleted")
			}
		})
	}
}

func TestDeleteAuthorizationAndSystemMessages(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	m := f.send(t, "g1", "bob", "Message de Bob")

	if _, err := f.svc.Delete(ctx, m.ID, "dave"); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("一般成員刪除他人消息應返回 Forbidden，得到 %v", err)
	}
	if _, err := f.svc.Delete(ctx, m.ID, "eve"); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("非成員刪除應返回 Forbidden，得到 %v", err)
	}
	if _, err := f.svc.Delete(ctx, "missing", "alice"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("消息不存在應返回 NotFound，得到 %v", err)
	}

	// 刪除系統消息不再產生新的系統消息
	res, err := f.svc.Delete(ctx, m.ID, "carol")
	if err != nil {
		t.Fatalf("版主刪除失敗: %v", err)
	}
	before := countSystem(f.store)
	if _, err := f.svc.Delete(ctx, res.SystemMessage.ID, "alice"); err != nil {
		t.Fatalf("刪除系統消息失敗: %v", err)
	}
	if countSystem(f.store) != before {
		t.Errorf("刪除系統消息不應產生新的系統消息")
	}
}

func TestDeleteNoticeUsesPlaceholderForDeletedAuthor(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.store.groups["g1"].Members = append(f.store.groups["g1"].Members, "gone")
	m := f.send(t, "g1", "gone", "Ancien message")

	res, err := f.svc.Delete(ctx, m.ID, "carol")
	if err != nil {
		t.Fatalf("刪除失敗: %v", err)
	}
	want := "Message de Utilisateur supprimé par le modérateur Carol"
	if res.SystemMessage == nil || res.SystemMessage.Content != want {
		t.Errorf("系統消息 = %+v，期望 %q", res.SystemMessage, want)
	}
}

func TestMessagesUpdatedRespectsMemberCutoff(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	early := f.send(t, "g1", "bob", "Avant masquage")
	if _, err := f.svc.HideConversation(ctx, "g1", "dave"); err != nil {
		t.Fatalf("隱藏失敗: %v", err)
	}
	target := f.send(t, "g1", "bob", "Après masquage")
	f.notifier.reset()

	if _, err := f.svc.Delete(ctx, target.ID, "alice"); err != nil {
		t.Fatalf("刪除失敗: %v", err)
	}

	for _, e := range f.notifier.named(EventMessagesUpdated) {
		p := e.Payload.(MessagesUpdatedPayload)
		hasEarly := findView(p.Messages, early.ID) != nil
		switch e.Room {
		case "user:dave":
			if hasEarly {
				t.Errorf("dave 不應收到隱藏前的消息")
			}
		default:
			if !hasEarly {
				t.Errorf("%s 應收到完整列表", e.Room)
			}
		}
	}
}

func TestMessagesUpdatedCarriesFullHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	// 超過單批讀取數量
	const total = 120
	var ids []string
	for i := 0; i < total; i++ {
		ids = append(ids, f.send(t, "g1", "bob", fmt.Sprintf("Message %d", i)).ID)
	}
	f.notifier.reset()

	if _, err := f.svc.Delete(ctx, ids[total-1], "alice"); err != nil {
		t.Fatalf("刪除失敗: %v", err)
	}

	updates := f.notifier.named(EventMessagesUpdated)
	if len(updates) != 4 {
		t.Fatalf("應推送給四位成員，得到 %d", len(updates))
	}
	for _, e := range updates {
		p := e.Payload.(MessagesUpdatedPayload)
		// 剩餘 119 則加上系統通知
		if len(p.Messages) != total {
			t.Errorf("%s 收到 %d 則消息，期望 %d", e.Room, len(p.Messages), total)
			continue
		}
		if p.Messages[0].ID != ids[0] {
			t.Errorf("%s 列表應從最早的消息開始", e.Room)
		}
		for i := 1; i < len(p.Messages); i++ {
			if p.Messages[i].CreatedAt.Before(p.Messages[i-1].CreatedAt) {
				t.Errorf("%s 列表未按時間排序", e.Room)
				break
			}
		}
	}
}

func TestIsGroupManager(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	tests := []struct {
		groupID string
		userID  string
		want    bool
	}{
		{groupID: "g1", userID: "alice", want: true},
		{groupID: "g1", userID: "carol", want: true},
		{groupID: "g1", userID: "bob", want: false},
		{groupID: "missing", userID: "alice", want: false},
	}

	for _, tt := range tests {
		got, err := f.svc.IsGroupManager(ctx, tt.groupID, tt.userID)
		if err != nil {
			t.Fatalf("檢查失敗: %v", err)
		}
		if got != tt.want {
			t.Errorf("IsGroupManager(%s, %s) = %v，期望 %v", tt.groupID, tt.userID, got, tt.want)
		}
	}
}

func TestReplyPreviewRespectsReaderCutoff(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	old := f.send(t, "g1", "bob", "Ancien secret")
	if _, err := f.svc.DeleteHistory(ctx, "g1", "carol"); err != nil {
		t.Fatalf("刪除歷史失敗: %v", err)
	}
	reply, err := f.svc.Send(ctx, SendInput{GroupID: "g1", AuthorID: "dave", Content: "Je réponds", ReplyToID: old.ID})
	if err != nil {
		t.Fatalf("發送回覆失敗: %v", err)
	}

	tests := []struct {
		reader      string
		wantContent string
	}{
		{reader: "carol", wantContent: ""},
		{reader: "alice", wantContent: "Ancien secret"},
	}
	for _, tt := range tests {
		page, err := f.svc.ListMessages(ctx, ListInput{GroupID: "g1", UserID: tt.reader})
		if err != nil {
			t.Fatalf("%s 讀取失敗: %v", tt.reader, err)
		}
		v := findView(page.Messages, reply.ID)
		if v == nil || v.ReplyTo == nil {
			t.Fatalf("%s 應看到回覆及其預覽", tt.reader)
		}
		if v.ReplyTo.ID != old.ID || v.ReplyTo.Content != tt.wantContent {
			t.Errorf("%s 的回覆預覽 = %+v，期望內容 %q", tt.reader, v.ReplyTo, tt.wantContent)
		}
		if tt.wantContent == "" && (v.ReplyTo.Author != nil || v.ReplyTo.IsDeleted) {
			t.Errorf("截止時間前的回覆目標不應暴露作者或刪除狀態")
		}
	}

	// messages-updated 同樣按成員過濾
	other := f.send(t, "g1", "bob", "À supprimer")
	f.notifier.reset()
	if _, err := f.svc.Delete(ctx, other.ID, "alice"); err != nil {
		t.Fatalf("刪除失敗: %v", err)
	}
	for _, e := range f.notifier.named(EventMessagesUpdated) {
		p := e.Payload.(MessagesUpdatedPayload)
		v := findView(p.Messages, reply.ID)
		if v == nil || v.ReplyTo == nil {
			t.Fatalf("%s 應收到回覆", e.Room)
		}
		leaked := v.ReplyTo.Content != ""
		if e.Room == "user:carol" && leaked {
			t.Errorf("carol 不應透過回覆看到已刪除的歷史")
		}
		if e.Room != "user:carol" && !leaked {
			t.Errorf("%s 應看到回覆預覽內容", e.Room)
		}
	}
}

func TestReactionIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	m := f.send(t, "g1", "bob", "Bravo")
	f.notifier.reset()

	for i := 0; i < 2; i++ {
		if _, err := f.svc.AddReaction(ctx, m.ID, "alice", "👍"); err != nil {
			t.Fatalf("添加表情失敗: %v", err)
		}
	}

	if got := f.store.reactionsOf(m.ID); len(got) != 1 || got[0].Emoji != "👍" {
		t.Errorf("重複添加應只保留一筆，得到 %+v", got)
	}
	if n := len(f.notifier.named(EventReactionAdded)); n != 1 {
		t.Errorf("reaction-added 推送 %d 次，期望 1", n)
	}
	if n := len(f.notifier.named(EventReactionRemoved)); n != 0 {
		t.Errorf("不應推送 reaction-removed")
	}
}

func TestReactionReplace(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	m := f.send(t, "g1", "bob", "Bravo")

	if _, err := f.svc.AddReaction(ctx, m.ID, "alice", "👍"); err != nil {
		t.Fatalf("添加表情失敗: %v", err)
	}
	f.notifier.reset()

	change, err := f.svc.AddReaction(ctx, m.ID, "alice", "❤️")
	if err != nil {
		t.Fatalf("替換表情失敗: %v", err)
	}
	if change.Added != "❤️" || change.Removed != "👍" {
		t.Errorf("變更結果錯誤: %+v", change)
	}

	got := f.store.reactionsOf(m.ID)
	if len(got) != 1 || got[0].Emoji != "❤️" {
		t.Fatalf("應只剩一筆新表情，得到 %+v", got)
	}

	if len(f.notifier.events) != 2 {
		t.Fatalf("應推送兩個事件，得到 %+v", f.notifier.events)
	}
	if f.notifier.events[0].Event != EventReactionRemoved || f.notifier.events[1].Event != EventReactionAdded {
		t.Errorf("事件順序應為 removed 然後 added，得到 %s, %s", f.notifier.events[0].Event, f.notifier.events[1].Event)
	}
	removed := f.notifier.events[0].Payload.(ReactionPayload)
	if removed.Emoji != "👍" || removed.UserID != "alice" {
		t.Errorf("reaction-removed 內容錯誤: %+v", removed)
	}
}

func TestReactionErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	m := f.send(t, "g1", "bob", "Bravo")

	tests := []struct {
		name string
		call func() error
		want apperr.Kind
	}{
		{
			name: "空表情",
			call: func() error { _, err := f.svc.AddReaction(ctx, m.ID, "alice", " "); return err },
			want: apperr.KindInvalidArgument,
		},
		{
			name: "非成員",
			call: func() error { _, err := f.svc.AddReaction(ctx, m.ID, "eve", "👍"); return err },
			want: apperr.KindForbidden,
		},
		{
			name: "消息不存在",
			call: func() error { _, err := f.svc.AddReaction(ctx, "missing", "alice", "👍"); return err },
			want: apperr.KindNotFound,
		},
		{
			name: "移除不存在的表情",
			call: func() error { _, err := f.svc.RemoveReaction(ctx, m.ID, "alice", "👍"); return err },
			want: apperr.KindInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !apperr.Is(err, tt.want) {
				t.Errorf("期望 %v，得到 %v", tt.want, err)
			}
		})
	}
}

func TestRemoveReaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	m := f.send(t, "g1", "bob", "Bravo")
	if _, err := f.svc.AddReaction(ctx, m.ID, "alice", "👍"); err != nil {
		t.Fatalf("添加表情失敗: %v", err)
	}
	if _, err := f.svc.AddReaction(ctx, m.ID, "carol", "👍"); err != nil {
		t.Fatalf("添加表情失敗: %v", err)
	}

	change, err := f.svc.RemoveReaction(ctx, m.ID, "alice", "👍")
	if err != nil {
		t.Fatalf("移除表情失敗: %v", err)
	}
	if sum := change.Reactions["👍"]; sum.Count != 1 || sum.Users[0] != "carol" {
		t.Errorf("移除後聚合錯誤: %+v", change.Reactions)
	}
	if _, err := f.svc.RemoveReaction(ctx, m.ID, "alice", "👍"); !apperr.Is(err, apperr.KindInvalidArgument) {
		t.Errorf("重複移除應返回 InvalidArgument，得到 %v", err)
	}
}

func TestListMessagesPagination(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, f.send(t, "g1", "bob", "message").ID)
	}

	page, err := f.svc.ListMessages(ctx, ListInput{GroupID: "g1", UserID: "alice", Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("讀取失敗: %v", err)
	}
	if len(page.Messages) != 2 || page.Messages[0].ID != ids[3] || page.Messages[1].ID != ids[4] {
		t.Errorf("第一頁應為最新兩則且由舊到新，得到 %v", viewIDs(page.Messages))
	}
	if !page.Pagination.HasMore || page.Pagination.Total != 5 {
		t.Errorf("分頁資訊錯誤: %+v", page.Pagination)
	}

	page, _ = f.svc.ListMessages(ctx, ListInput{GroupID: "g1", UserID: "alice", Page: 3, Limit: 2})
	if len(page.Messages) != 1 || page.Messages[0].ID != ids[0] || page.Pagination.HasMore {
		t.Errorf("最後一頁錯誤: %v %+v", viewIDs(page.Messages), page.Pagination)
	}

	if _, err := f.svc.ListMessages(ctx, ListInput{GroupID: "g1", UserID: "eve"}); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("非成員讀取應返回 NotFound，得到 %v", err)
	}
}

func TestListMessagesNeverReturnsBelowCutoff(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	// 交錯發送消息與隱藏、刪除歷史
	steps := []func(){
		func() { f.send(t, "g1", "alice", "1") },
		func() { f.send(t, "g1", "bob", "2") },
		func() { _, _ = f.svc.HideConversation(ctx, "g1", "bob") },
		func() { f.send(t, "g1", "carol", "3") },
		func() { _, _ = f.svc.DeleteHistory(ctx, "g1", "carol") },
		func() { f.send(t, "g1", "dave", "4") },
		func() { _, _ = f.svc.DeleteHistory(ctx, "g1", "dave") },
		func() { _, _ = f.svc.HideConversation(ctx, "g1", "dave") },
		func() { f.send(t, "g1", "alice", "5") },
	}
	for _, step := range steps {
		step()
	}

	group := f.store.groups["g1"]
	for _, user := range group.Members {
		page, err := f.svc.ListMessages(ctx, ListInput{GroupID: "g1", UserID: user, Limit: 100})
		if err != nil {
			t.Fatalf("%s 讀取失敗: %v", user, err)
		}
		cutoff, has := Cutoff(group, user, PolicyFull)
		for _, m := range page.Messages {
			if has && !m.CreatedAt.After(cutoff) {
				t.Errorf("%s 收到截止時間 %v 之前的消息 %s (%v)", user, cutoff, m.ID, m.CreatedAt)
			}
		}
	}
}

func TestHideConversationScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	old := f.send(t, "g2", "bob", "Ancien")
	if _, err := f.svc.HideConversation(ctx, "g2", "alice"); err != nil {
		t.Fatalf("隱藏失敗: %v", err)
	}
	if got := f.store.groups["g2"].HiddenFor; len(got) != 1 || got[0] != "alice" {
		t.Fatalf("hiddenFor 應包含 alice，得到 %v", got)
	}
	f.notifier.reset()

	fresh := f.send(t, "g2", "bob", "Nouveau")

	g := f.store.groups["g2"]
	if len(g.HiddenFor) != 0 {
		t.Errorf("發送後 hiddenFor 應清空，得到 %v", g.HiddenFor)
	}
	if len(g.HiddenForWithTimestamp) != 1 {
		t.Errorf("hiddenForWithTimestamp 應保留，得到 %v", g.HiddenForWithTimestamp)
	}

	rooms := map[string]bool{}
	for _, e := range f.notifier.named(EventGroupUpdated) {
		rooms[e.Room] = true
	}
	if !rooms["group:g2"] || !rooms["user:alice"] {
		t.Errorf("groupUpdated 應推送到群組房間和 alice 的房間，得到 %v", rooms)
	}

	page, err := f.svc.ListMessages(ctx, ListInput{GroupID: "g2", UserID: "alice"})
	if err != nil {
		t.Fatalf("讀取失敗: %v", err)
	}
	if findView(page.Messages, fresh.ID) == nil {
		t.Errorf("alice 應看到新消息")
	}
	if findView(page.Messages, old.ID) != nil {
		t.Errorf("alice 不應看到隱藏前的消息")
	}

	rows, _, err := f.svc.LastMessages(ctx, "alice")
	if err != nil {
		t.Fatalf("讀取最後消息失敗: %v", err)
	}
	if row := findRow(rows, "g2"); row == nil || row.LastMessage.ID != fresh.ID {
		t.Errorf("g2 應重新出現在 alice 的對話列表，得到 %+v", rows)
	}
}

func TestDeleteHistoryScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	f.send(t, "g2", "alice", "Bonjour")
	f.send(t, "g1", "alice", "Salut")
	if _, err := f.svc.DeleteHistory(ctx, "g2", "bob"); err != nil {
		t.Fatalf("刪除歷史失敗: %v", err)
	}

	rows, _, err := f.svc.LastMessages(ctx, "bob")
	if err != nil {
		t.Fatalf("讀取最後消息失敗: %v", err)
	}
	if findRow(rows, "g2") != nil {
		t.Errorf("刪除歷史後沒有新消息的群組應被略過")
	}
	if findRow(rows, "g1") == nil {
		t.Errorf("其他群組不受影響")
	}

	// alice 不受 bob 的標記影響
	rows, _, _ = f.svc.LastMessages(ctx, "alice")
	if findRow(rows, "g2") == nil {
		t.Errorf("alice 應仍看到 g2")
	}

	// 新消息後重新出現
	f.send(t, "g2", "alice", "Relance")
	rows, _, _ = f.svc.LastMessages(ctx, "bob")
	if findRow(rows, "g2") == nil {
		t.Errorf("新消息後 g2 應重新出現")
	}
}

func TestLastMessagesIgnoresHiddenMarker(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	m := f.send(t, "g2", "bob", "Avant")
	if _, err := f.svc.HideConversation(ctx, "g2", "alice"); err != nil {
		t.Fatalf("隱藏失敗: %v", err)
	}

	rows, _, err := f.svc.LastMessages(ctx, "alice")
	if err != nil {
		t.Fatalf("讀取失敗: %v", err)
	}
	if row := findRow(rows, "g2"); row == nil || row.LastMessage.ID != m.ID {
		t.Errorf("最後消息摘要只依刪除歷史過濾，得到 %+v", rows)
	}
}

func TestLastMessagesOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.send(t, "g1", "alice", "premier")
	f.send(t, "g2", "alice", "second")

	rows, _, err := f.svc.LastMessages(ctx, "alice")
	if err != nil {
		t.Fatalf("讀取失敗: %v", err)
	}
	if len(rows) != 2 || rows[0].GroupID != "g2" || rows[1].GroupID != "g1" {
		t.Errorf("應按最後消息時間倒序，得到 %+v", rows)
	}
	if rows[0].GroupName != "Procédure civile" {
		t.Errorf("群組名稱錯誤: %q", rows[0].GroupName)
	}
}

func TestDegradedEnrichment(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	m := f.send(t, "g1", "bob", "Bonjour")
	if _, err := f.svc.AddReaction(ctx, m.ID, "alice", "👍"); err != nil {
		t.Fatalf("添加表情失敗: %v", err)
	}

	f.store.failReactions = true
	f.store.failUsers = true
	page, err := f.svc.ListMessages(ctx, ListInput{GroupID: "g1", UserID: "alice"})
	if err != nil {
		t.Fatalf("補充失敗不應讓讀取失敗: %v", err)
	}
	if len(page.Messages) != 1 {
		t.Fatalf("應返回消息本身，得到 %d", len(page.Messages))
	}
	steps := WarningSteps(page.Warnings)
	if len(steps) != 2 || steps[0] != StepAuthors || steps[1] != StepReactions {
		t.Errorf("warnings = %v", steps)
	}
	v := page.Messages[0]
	if v.Author == nil || v.Author.ID != "bob" || v.Author.IsDeleted {
		t.Errorf("用戶服務失敗時應只返回 ID，不標記為已刪除: %+v", v.Author)
	}
	if len(v.Reactions) != 0 {
		t.Errorf("表情不可用時應為空: %+v", v.Reactions)
	}
}

func TestDeletedAuthorPlaceholder(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	at := f.clock.Now()
	_ = f.store.Insert(ctx, NewUserMessage("g1", "gone", "Message orphelin", at))
	_ = f.store.Insert(ctx, NewUserMessage("g1", "vanished", "Auteur introuvable", at))

	page, err := f.svc.ListMessages(ctx, ListInput{GroupID: "g1", UserID: "alice"})
	if err != nil {
		t.Fatalf("讀取失敗: %v", err)
	}
	for _, v := range page.Messages {
		a := v.Author
		if a == nil || !a.IsDeleted || a.Username != DeletedUsername || a.ProfilePicture != nil {
			t.Fatalf("應替換為佔位資料: %+v", a)
		}
		if a.DisplayName() != "Utilisateur Supprimé" {
			t.Errorf("顯示名稱 = %q", a.DisplayName())
		}
		if a.ID != "gone" && a.ID != "vanished" {
			t.Errorf("應保留原始 ID，得到 %q", a.ID)
		}
	}
}

func TestShare(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.store.contents["post:p1"] = &SharedContent{Kind: SharedPost, ItemID: "p1", Title: "Réforme du droit", AuthorID: "carol"}
	f.store.contents["pdf:d1"] = &SharedContent{Kind: SharedPdf, ItemID: "d1", Title: "arret.pdf", AuthorID: "gone"}

	v, err := f.svc.Share(ctx, ShareInput{Kind: SharedPost, GroupID: "g1", UserID: "bob", ItemID: "p1"})
	if err != nil {
		t.Fatalf("分享失敗: %v", err)
	}
	if v.Content != "Publication partagée" {
		t.Errorf("預設內容 = %q", v.Content)
	}
	if v.SharedPost == nil || v.SharedPost.Title != "Réforme du droit" || v.SharedPost.Author.FirstName != "Carol" {
		t.Errorf("分享快照錯誤: %+v", v.SharedPost)
	}
	if v.SharedFolder != nil || v.SharedPdf != nil {
		t.Errorf("只應有一種分享內容")
	}

	v, err = f.svc.Share(ctx, ShareInput{Kind: SharedPdf, GroupID: "g1", UserID: "bob", ItemID: "d1", Content: "À lire"})
	if err != nil {
		t.Fatalf("分享 PDF 失敗: %v", err)
	}
	if v.Content != "À lire" || v.SharedPdf == nil || !v.SharedPdf.Author.IsDeleted {
		t.Errorf("PDF 分享錯誤: %+v", v)
	}

	if _, err := f.svc.Share(ctx, ShareInput{Kind: SharedFolder, GroupID: "g1", UserID: "bob", ItemID: "nope"}); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("分享不存在的內容應返回 NotFound，得到 %v", err)
	}
	if _, err := f.svc.Share(ctx, ShareInput{Kind: SharedPost, GroupID: "g1", UserID: "eve", ItemID: "p1"}); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("非成員分享應返回 NotFound，得到 %v", err)
	}
}

func TestNowTruncatesToMillisecond(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 123456789, time.UTC)
	svc := NewService(Dependencies{}, WithClock(func() time.Time { return at }))
	if got := svc.now(); got.Nanosecond() != 123000000 {
		t.Errorf("時間應截斷到毫秒，得到 %d", got.Nanosecond())
	}
}

func findView(views []MessageView, id string) *MessageView {
	for i := range views {
		if views[i].ID == id {
			return &views[i]
		}
	}
	return nil
}

func findRow(rows []LastMessage, groupID string) *LastMessage {
	for i := range rows {
		if rows[i].GroupID == groupID {
			return &rows[i]
		}
	}
	return nil
}

func viewIDs(views []MessageView) []string {
	ids := make([]string, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.ID)
	}
	return ids
}

func countSystem(s *memStore) int {
	n := 0
	for _, m := range s.messages {
		if m.IsSystem() {
			n++
		}
	}
	return n
}
