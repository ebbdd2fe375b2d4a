package service

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/sortie-social/sortie-api/internal/dto"
	"github.com/sortie-social/sortie-api/internal/models"
	"github.com/sortie-social/sortie-api/pkg/push"
)

func pairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

type stubSocialRepo struct {
	friends map[string]bool
	users   map[string]string
	venues  map[uint]string
	events  map[uint]string
}

func newStubSocialRepo() *stubSocialRepo {
	return &stubSocialRepo{
		friends: map[string]bool{},
		users:   map[string]string{},
		venues:  map[uint]string{},
		events:  map[uint]string{},
	}
}

func (s *stubSocialRepo) befriend(a, b string) {
	s.friends[pairKey(a, b)] = true
}

func (s *stubSocialRepo) IsFriend(_ context.Context, userA, userB string) (bool, error) {
	return s.friends[pairKey(userA, userB)], nil
}

func (s *stubSocialRepo) UserExists(_ context.Context, userID string) (bool, error) {
	_, ok := s.users[userID]
	return ok, nil
}

func (s *stubSocialRepo) DisplayName(_ context.Context, userID string) (string, error) {
	if name, ok := s.users[userID]; ok && name != "" {
		return name, nil
	}
	return userID, nil
}

func (s *stubSocialRepo) VenueName(_ context.Context, venueID uint) (string, error) {
	name, ok := s.venues[venueID]
	if !ok {
		return "", gorm.ErrRecordNotFound
	}
	return name, nil
}

func (s *stubSocialRepo) EventName(_ context.Context, eventID uint) (string, error) {
	name, ok := s.events[eventID]
	if !ok {
		return "", gorm.ErrRecordNotFound
	}
	return name, nil
}

type stubDirectRepo struct {
	messages []models.DirectMessage
	nextID   uint
}

func (s *stubDirectRepo) Create(_ context.Context, message *models.DirectMessage) error {
	s.nextID++
	message.ID = s.nextID
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	s.messages = append(s.messages, *message)
	return nil
}

func (s *stubDirectRepo) FindRecentDuplicate(_ context.Context, senderID, receiverID, body string, since time.Time) (models.DirectMessage, bool, error) {
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.SenderID == senderID && m.ReceiverID == receiverID && m.Body == body && !m.CreatedAt.Before(since) {
			return m, true, nil
		}
	}
	return models.DirectMessage{}, false, nil
}

func (s *stubDirectRepo) ListBetween(_ context.Context, userA, userB string) ([]models.DirectMessage, error) {
	var result []models.DirectMessage
	for _, m := range s.messages {
		if (m.SenderID == userA && m.ReceiverID == userB) || (m.SenderID == userB && m.ReceiverID == userA) {
			result = append(result, m)
		}
	}
	return result, nil
}

func (s *stubDirectRepo) ListInvolving(_ context.Context, userID string) ([]models.DirectMessage, error) {
	var result []models.DirectMessage
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.SenderID == userID || m.ReceiverID == userID {
			result = append(result, m)
		}
	}
	return result, nil
}

func (s *stubDirectRepo) MarkRead(_ context.Context, receiverID, senderID string) (int64, error) {
	var marked int64
	for i := range s.messages {
		m := &s.messages[i]
		if m.ReceiverID == receiverID && m.SenderID == senderID && !m.IsRead {
			m.IsRead = true
			marked++
		}
	}
	return marked, nil
}

func (s *stubDirectRepo) CountUnread(_ context.Context, receiverID string) (int64, error) {
	var count int64
	for _, m := range s.messages {
		if m.ReceiverID == receiverID && !m.IsRead {
			count++
		}
	}
	return count, nil
}

type stubGroupRepo struct {
	nextGroupID  uint
	nextMemberID uint
	groups       map[uint]models.Group
	members      map[uint][]models.GroupMember
	createErr    error
}

func newStubGroupRepo() *stubGroupRepo {
	return &stubGroupRepo{
		groups:  map[uint]models.Group{},
		members: map[uint][]models.GroupMember{},
	}
}

func (s *stubGroupRepo) CreateWithMembers(_ context.Context, group *models.Group, members []models.GroupMember) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.nextGroupID++
	group.ID = s.nextGroupID
	group.CreatedAt = time.Now()
	s.groups[group.ID] = *group
	for i := range members {
		s.nextMemberID++
		members[i].ID = s.nextMemberID
		members[i].GroupID = group.ID
		members[i].JoinedAt = time.Now()
	}
	s.members[group.ID] = append([]models.GroupMember(nil), members...)
	return nil
}

func (s *stubGroupRepo) FindByID(_ context.Context, id uint) (models.Group, error) {
	group, ok := s.groups[id]
	if !ok {
		return models.Group{}, gorm.ErrRecordNotFound
	}
	return group, nil
}

func (s *stubGroupRepo) Update(_ context.Context, group *models.Group) error {
	s.groups[group.ID] = *group
	return nil
}

func (s *stubGroupRepo) DeleteCascade(_ context.Context, groupID uint) error {
	delete(s.groups, groupID)
	delete(s.members, groupID)
	return nil
}

func (s *stubGroupRepo) AddMember(_ context.Context, member *models.GroupMember) error {
	s.nextMemberID++
	member.ID = s.nextMemberID
	member.JoinedAt = time.Now()
	s.members[member.GroupID] = append(s.members[member.GroupID], *member)
	return nil
}

func (s *stubGroupRepo) FindMember(_ context.Context, groupID uint, userID string) (models.GroupMember, error) {
	for _, member := range s.members[groupID] {
		if member.UserID == userID {
			return member, nil
		}
	}
	return models.GroupMember{}, gorm.ErrRecordNotFound
}

func (s *stubGroupRepo) ListMembers(_ context.Context, groupID uint) ([]models.GroupMember, error) {
	members := append([]models.GroupMember(nil), s.members[groupID]...)
	for i := 1; i < len(members); i++ {
		for j := i; j > 0; j-- {
			a, b := members[j-1], members[j]
			if (b.IsAdmin && !a.IsAdmin) || (b.IsAdmin == a.IsAdmin && b.ID < a.ID) {
				members[j-1], members[j] = b, a
			}
		}
	}
	return members, nil
}

func (s *stubGroupRepo) CountMembers(_ context.Context, groupID uint) (int64, error) {
	return int64(len(s.members[groupID])), nil
}

func (s *stubGroupRepo) CountAdmins(_ context.Context, groupID uint) (int64, error) {
	var count int64
	for _, member := range s.members[groupID] {
		if member.IsAdmin {
			count++
		}
	}
	return count, nil
}

func (s *stubGroupRepo) ListGroupsForUser(_ context.Context, userID string) ([]models.Group, error) {
	var result []models.Group
	for groupID, members := range s.members {
		for _, member := range members {
			if member.UserID == userID {
				result = append(result, s.groups[groupID])
				break
			}
		}
	}
	for i := 1; i < len(result); i++ {
		for j := i; j > 0 && result[j].ID < result[j-1].ID; j-- {
			result[j], result[j-1] = result[j-1], result[j]
		}
	}
	return result, nil
}

func (s *stubGroupRepo) RemoveMemberPromoting(_ context.Context, groupID uint, userID string, promote bool) error {
	if promote {
		var successor *models.GroupMember
		for i := range s.members[groupID] {
			member := &s.members[groupID][i]
			if member.UserID != userID && (successor == nil || member.ID < successor.ID) {
				successor = member
			}
		}
		if successor == nil {
			return gorm.ErrRecordNotFound
		}
		successor.IsAdmin = true
	}
	return s.RemoveMember(context.Background(), groupID, userID)
}

func (s *stubGroupRepo) RemoveMember(_ context.Context, groupID uint, userID string) error {
	members := s.members[groupID]
	kept := members[:0]
	for _, member := range members {
		if member.UserID != userID {
			kept = append(kept, member)
		}
	}
	s.members[groupID] = kept
	return nil
}

type stubGroupMessageRepo struct {
	messages []models.GroupMessage
	reads    map[uint]map[string]bool
	nextID   uint
}

func newStubGroupMessageRepo() *stubGroupMessageRepo {
	return &stubGroupMessageRepo{reads: map[uint]map[string]bool{}}
}

func (s *stubGroupMessageRepo) CreateWithSenderRead(_ context.Context, message *models.GroupMessage) error {
	s.nextID++
	message.ID = s.nextID
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	s.messages = append(s.messages, *message)
	s.reads[message.ID] = map[string]bool{message.SenderID: true}
	return nil
}

func (s *stubGroupMessageRepo) FindRecentDuplicate(_ context.Context, groupID uint, senderID, body string, since time.Time) (models.GroupMessage, bool, error) {
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.GroupID == groupID && m.SenderID == senderID && m.Body == body && !m.CreatedAt.Before(since) {
			return m, true, nil
		}
	}
	return models.GroupMessage{}, false, nil
}

func (s *stubGroupMessageRepo) ListByGroup(_ context.Context, groupID uint) ([]models.GroupMessage, error) {
	var result []models.GroupMessage
	for _, m := range s.messages {
		if m.GroupID == groupID {
			result = append(result, m)
		}
	}
	return result, nil
}

func (s *stubGroupMessageRepo) LatestByGroup(_ context.Context, groupID uint) (models.GroupMessage, bool, error) {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].GroupID == groupID {
			return s.messages[i], true, nil
		}
	}
	return models.GroupMessage{}, false, nil
}

func (s *stubGroupMessageRepo) MarkAllRead(_ context.Context, groupID uint, userID string) (int64, error) {
	var marked int64
	for _, m := range s.messages {
		if m.GroupID != groupID {
			continue
		}
		if !s.reads[m.ID][userID] {
			s.reads[m.ID][userID] = true
			marked++
		}
	}
	return marked, nil
}

func (s *stubGroupMessageRepo) CountUnread(_ context.Context, groupID uint, userID string) (int64, error) {
	var count int64
	for _, m := range s.messages {
		if m.GroupID == groupID && !s.reads[m.ID][userID] {
			count++
		}
	}
	return count, nil
}

type stubNotificationRepo struct {
	mu     sync.Mutex
	rows   []models.Notification
	nextID uint
}

func (s *stubNotificationRepo) Create(_ context.Context, notification *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	notification.ID = s.nextID
	notification.CreatedAt = time.Now()
	s.rows = append(s.rows, *notification)
	return nil
}

func (s *stubNotificationRepo) CreateBatch(_ context.Context, notifications []models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range notifications {
		s.nextID++
		notifications[i].ID = s.nextID
		notifications[i].CreatedAt = time.Now()
		s.rows = append(s.rows, notifications[i])
	}
	return nil
}

func (s *stubNotificationRepo) ListByUser(_ context.Context, userID string, _, _ int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Notification
	for _, row := range s.rows {
		if row.UserID == userID {
			result = append(result, row)
		}
	}
	return result, nil
}

func (s *stubNotificationRepo) MarkRead(_ context.Context, id uint, userID string) (models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id && s.rows[i].UserID == userID {
			s.rows[i].Read = true
			return s.rows[i], nil
		}
	}
	return models.Notification{}, gorm.ErrRecordNotFound
}

type stubDeviceRegistry struct {
	mu      sync.Mutex
	tokens  map[string]string
	evicted []string
}

func newStubDeviceRegistry(tokens map[string]string) *stubDeviceRegistry {
	if tokens == nil {
		tokens = map[string]string{}
	}
	return &stubDeviceRegistry{tokens: tokens}
}

func (s *stubDeviceRegistry) Register(_ context.Context, userID, token string) (dto.DeviceTokenResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[userID] = token
	return dto.DeviceTokenResponse{UserID: userID, Token: token}, nil
}

func (s *stubDeviceRegistry) Resolve(_ context.Context, userID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[userID]
	return token, ok, nil
}

func (s *stubDeviceRegistry) ResolveBatch(_ context.Context, userIDs []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resolved := map[string]string{}
	for _, userID := range userIDs {
		if token, ok := s.tokens[userID]; ok {
			resolved[userID] = token
		}
	}
	return resolved, nil
}

func (s *stubDeviceRegistry) ListActiveUsers(_ context.Context, _ time.Duration) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0, len(s.tokens))
	for userID := range s.tokens {
		users = append(users, userID)
	}
	return users, nil
}

func (s *stubDeviceRegistry) Evict(_ context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens[userID] == token {
		delete(s.tokens, userID)
	}
	s.evicted = append(s.evicted, userID)
	return nil
}

type fakeSend struct {
	token string
	note  push.Notification
	data  map[string]string
}

type fakeGateway struct {
	mu       sync.Mutex
	outcomes map[string]push.Outcome
	sends    []fakeSend
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{outcomes: map[string]push.Outcome{}}
}

func (g *fakeGateway) Send(_ context.Context, token string, note push.Notification, data map[string]string) (push.Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sends = append(g.sends, fakeSend{token: token, note: note, data: data})
	if outcome, ok := g.outcomes[token]; ok {
		return outcome, nil
	}
	return push.Delivered, nil
}

func (g *fakeGateway) sentTokens() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	tokens := make([]string, 0, len(g.sends))
	for _, send := range g.sends {
		tokens = append(tokens, send.token)
	}
	return tokens
}
