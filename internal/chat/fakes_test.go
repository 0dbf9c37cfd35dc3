package chat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"
)

// memStore 記憶體實作的倉儲，供服務測試使用
type memStore struct {
	mu        sync.Mutex
	seq       int
	messages  map[string]*Message
	order     map[string]int
	reactions map[string]Reaction // key: messageID|userID
	groups    map[string]*Group
	users     map[string]*User
	contents  map[string]*SharedContent

	failReactions bool
	failUsers     bool
}

func newMemStore() *memStore {
	return &memStore{
		messages:  make(map[string]*Message),
		order:     make(map[string]int),
		reactions: make(map[string]Reaction),
		groups:    make(map[string]*Group),
		users:     make(map[string]*User),
		contents:  make(map[string]*SharedContent),
	}
}

func cloneMessage(m *Message) *Message {
	c := *m
	return &c
}

func (s *memStore) Insert(_ context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if m.ID == "" {
		m.ID = fmt.Sprintf("m%d", s.seq)
	}
	s.order[m.ID] = s.seq
	s.messages[m.ID] = cloneMessage(m)
	return nil
}

func (s *memStore) GetByID(_ context.Context, id string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMessage(m), nil
}

func (s *memStore) GetByIDs(_ context.Context, ids []string) (map[string]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*Message)
	for _, id := range ids {
		if m, ok := s.messages[id]; ok {
			out[id] = cloneMessage(m)
		}
	}
	return out, nil
}

// sortedDesc 按 created_at 倒序，時間相同時以寫入順序倒序
func (s *memStore) sortedDesc(groupID string) []*Message {
	var list []*Message
	for _, m := range s.messages {
		if m.GroupID == groupID && !m.IsDeleted() {
			list = append(list, m)
		}
	}
	slices.SortFunc(list, func(a, b *Message) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return s.order[b.ID] - s.order[a.ID]
	})
	return list
}

func (s *memStore) ListVisible(_ context.Context, q MessageQuery) ([]*Message, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []*Message
	for _, m := range s.sortedDesc(q.GroupID) {
		if q.After != nil && !m.CreatedAt.After(*q.After) {
			continue
		}
		matched = append(matched, m)
	}
	total := int64(len(matched))
	if q.Skip >= len(matched) {
		return []*Message{}, total, nil
	}
	matched = matched[q.Skip:]
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	out := make([]*Message, 0, len(matched))
	for _, m := range matched {
		out = append(out, cloneMessage(m))
	}
	return out, total, nil
}

func (s *memStore) UpdateContent(_ context.Context, id, content string, at time.Time) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.IsDeleted() {
		return nil, ErrNotFound
	}
	m.Content = content
	m.EditedAt = &at
	m.UpdatedAt = at
	return cloneMessage(m), nil
}

func (s *memStore) SoftDelete(_ context.Context, id string, d Deletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.IsDeleted() {
		return ErrNotFound
	}
	m.Deletion = &d
	m.UpdatedAt = d.At
	return nil
}

func (s *memStore) LastPerGroup(_ context.Context, groupIDs []string) (map[string]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*Message)
	for _, gid := range groupIDs {
		if list := s.sortedDesc(gid); len(list) > 0 {
			out[gid] = cloneMessage(list[0])
		}
	}
	return out, nil
}

// 表情

func reactionKey(messageID, userID string) string { return messageID + "|" + userID }

func (s *memStore) Upsert(_ context.Context, r Reaction) (*Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := reactionKey(r.MessageID, r.UserID)
	prev, ok := s.reactions[key]
	if ok {
		r.CreatedAt = prev.CreatedAt
	}
	s.reactions[key] = r
	if !ok {
		return nil, nil
	}
	return &prev, nil
}

func (s *memStore) Remove(_ context.Context, messageID, userID, emoji string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := reactionKey(messageID, userID)
	r, ok := s.reactions[key]
	if !ok || r.Emoji != emoji {
		return false, nil
	}
	delete(s.reactions, key)
	return true, nil
}

func (s *memStore) ListByMessages(_ context.Context, ids []string) ([]Reaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failReactions {
		return nil, errors.New("reactions unavailable")
	}
	var out []Reaction
	for _, r := range s.reactions {
		if slices.Contains(ids, r.MessageID) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b Reaction) int {
		if a.UserID < b.UserID {
			return -1
		}
		if a.UserID > b.UserID {
			return 1
		}
		return 0
	})
	return out, nil
}

func (s *memStore) reactionsOf(messageID string) []Reaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Reaction
	for _, r := range s.reactions {
		if r.MessageID == messageID {
			out = append(out, r)
		}
	}
	return out
}

// 群組

type groupStore struct{ *memStore }

func (g groupStore) GetByID(_ context.Context, id string) (*Group, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp, ok := g.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *grp
	c.HiddenFor = slices.Clone(grp.HiddenFor)
	c.HiddenForWithTimestamp = slices.Clone(grp.HiddenForWithTimestamp)
	c.HistoryDeletedFor = slices.Clone(grp.HistoryDeletedFor)
	return &c, nil
}

func (g groupStore) ListForMember(ctx context.Context, userID string) ([]*Group, error) {
	g.mu.Lock()
	var ids []string
	for id, grp := range g.groups {
		if grp.IsMember(userID) {
			ids = append(ids, id)
		}
	}
	g.mu.Unlock()
	slices.Sort(ids)

	out := make([]*Group, 0, len(ids))
	for _, id := range ids {
		grp, _ := g.GetByID(ctx, id)
		out = append(out, grp)
	}
	return out, nil
}

func (g groupStore) Touch(_ context.Context, id string, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if grp, ok := g.groups[id]; ok {
		grp.UpdatedAt = at
		return nil
	}
	return ErrNotFound
}

func (g groupStore) ClearHiddenFor(_ context.Context, id string, at time.Time) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp, ok := g.groups[id]
	if !ok {
		return nil, ErrNotFound
	}
	prev := grp.HiddenFor
	grp.HiddenFor = nil
	grp.UpdatedAt = at
	return prev, nil
}

func (g groupStore) Hide(_ context.Context, groupID, userID string, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp, ok := g.groups[groupID]
	if !ok {
		return ErrNotFound
	}
	if !slices.Contains(grp.HiddenFor, userID) {
		grp.HiddenFor = append(grp.HiddenFor, userID)
	}
	grp.HiddenForWithTimestamp = slices.DeleteFunc(grp.HiddenForWithTimestamp, func(h HiddenMarker) bool {
		return h.UserID == userID
	})
	grp.HiddenForWithTimestamp = append(grp.HiddenForWithTimestamp, HiddenMarker{UserID: userID, HiddenAt: at})
	return nil
}

func (g groupStore) DeleteHistory(_ context.Context, groupID, userID string, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	grp, ok := g.groups[groupID]
	if !ok {
		return ErrNotFound
	}
	grp.HistoryDeletedFor = slices.DeleteFunc(grp.HistoryDeletedFor, func(h HistoryMarker) bool {
		return h.UserID == userID
	})
	grp.HistoryDeletedFor = append(grp.HistoryDeletedFor, HistoryMarker{UserID: userID, DeletedAt: at})
	return nil
}

// 用戶與分享內容

type userStore struct{ *memStore }

func (u userStore) GetByIDs(_ context.Context, ids []string) (map[string]*User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.failUsers {
		return nil, errors.New("users unavailable")
	}
	out := make(map[string]*User)
	for _, id := range ids {
		if usr, ok := u.users[id]; ok {
			c := *usr
			out[id] = &c
		}
	}
	return out, nil
}

type contentStore struct{ *memStore }

func (c contentStore) Snapshot(_ context.Context, kind SharedKind, itemID string) (*SharedContent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sc, ok := c.contents[string(kind)+":"+itemID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sc
	return &cp, nil
}

// recordingNotifier 記錄所有推送事件
type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

type sentEvent struct {
	Room    string
	Event   string
	Payload any
}

func (n *recordingNotifier) ToGroup(_ context.Context, groupID, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{Room: "group:" + groupID, Event: event, Payload: payload})
}

func (n *recordingNotifier) ToUser(_ context.Context, userID, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{Room: "user:" + userID, Event: event, Payload: payload})
}

func (n *recordingNotifier) named(event string) []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentEvent
	for _, e := range n.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

type recordingAuditor struct {
	deletions []DeletionReason
}

func (a *recordingAuditor) LogMessageDeleted(_ context.Context, _, _, _ string, reason DeletionReason) {
	a.deletions = append(a.deletions, reason)
}

// stepClock 每次呼叫前進一秒
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	svc      *Service
	store    *memStore
	notifier *recordingNotifier
	auditor  *recordingAuditor
	clock    *stepClock
}

// newFixture 群組 g1：成員 alice、bob、carol、dave；管理員 alice；版主 carol；dave 不在任何角色
func newFixture() *fixture {
	store := newMemStore()
	clock := &stepClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	store.groups["g1"] = &Group{
		ID:           "g1",
		Name:         "Droit des contrats",
		Members:      []string{"alice", "bob", "carol", "dave"},
		AdminID:      "alice",
		ModeratorIDs: []string{"carol"},
		CreatedAt:    clock.now,
		UpdatedAt:    clock.now,
	}
	store.groups["g2"] = &Group{
		ID:        "g2",
		Name:      "Procédure civile",
		Members:   []string{"alice", "bob"},
		AdminID:   "bob",
		CreatedAt: clock.now,
		UpdatedAt: clock.now,
	}
	for _, u := range []*User{
		{ID: "alice", Username: "alice", FirstName: "Alice", LastName: "Martin"},
		{ID: "bob", Username: "bob", FirstName: "Bob", LastName: "Durand"},
		{ID: "carol", Username: "carol", FirstName: "Carol", LastName: "Petit"},
		{ID: "dave", Username: "dave", FirstName: "Dave", LastName: "Moreau"},
		{ID: "gone", Username: "gone", FirstName: "Ancien", LastName: "Membre", IsDeleted: true},
	} {
		store.users[u.ID] = u
	}

	notifier := &recordingNotifier{}
	auditor := &recordingAuditor{}
	svc := NewService(Dependencies{
		Messages:  store,
		Reactions: store,
		Groups:    groupStore{store},
		Users:     userStore{store},
		Contents:  contentStore{store},
		Notifier:  notifier,
		Auditor:   auditor,
	}, WithClock(clock.Now), WithOptions(Options{RefreshBatch: 50}))

	return &fixture{svc: svc, store: store, notifier: notifier, auditor: auditor, clock: clock}
}

func (f *fixture) send(t *testing.T, groupID, author, content string) *MessageView {
	t.Helper()
	v, err := f.svc.Send(context.Background(), SendInput{GroupID: groupID, AuthorID: author, Content: content})
	if err != nil {
		t.Fatalf("發送消息失敗: %v", err)
	}
	return v
}
