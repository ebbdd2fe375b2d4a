package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/sortie-social/sortie-api/internal/apperr"
	"github.com/sortie-social/sortie-api/internal/dto"
	"github.com/sortie-social/sortie-api/internal/models"
	"github.com/sortie-social/sortie-api/internal/observability"
	"github.com/sortie-social/sortie-api/internal/repository"
)

// dedupWindow is the interval within which an identical resend
// collapses onto the original row. Fixed, not configurable per call.
const dedupWindow = 10 * time.Second

const defaultSummaryCacheTTL = 30 * time.Second

// ConversationService owns message identity, ordering and read state
// for both direct and group conversations.
type ConversationService interface {
	AppendDirect(ctx context.Context, senderID, receiverID, body string) (dto.DirectMessageResponse, error)
	AppendGroup(ctx context.Context, groupID uint, senderID, body string) (dto.GroupMessageResponse, error)
	History(ctx context.Context, userID, peerID string) ([]dto.DirectMessageResponse, error)
	GroupHistory(ctx context.Context, groupID uint, requesterID string) ([]dto.GroupMessageResponse, error)
	MarkDirectRead(ctx context.Context, receiverID, senderID string) (int64, error)
	MarkGroupRead(ctx context.Context, groupID uint, userID string) (int64, error)
	UnreadDirectCount(ctx context.Context, userID string) (int64, error)
	ConversationSummaries(ctx context.Context, userID string) ([]dto.ConversationSummary, error)
	GroupSummaries(ctx context.Context, userID string) ([]dto.GroupSummary, error)
}

type conversationService struct {
	direct    repository.DirectMessageRepository
	groups    repository.GroupRepository
	groupMsgs repository.GroupMessageRepository
	social    repository.SocialRepository
	cache     *redis.Client
	cacheTTL  time.Duration
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewConversationService constructs the conversation store. The Redis
// client is optional and only backs the summary cache.
func NewConversationService(
	direct repository.DirectMessageRepository,
	groups repository.GroupRepository,
	groupMsgs repository.GroupMessageRepository,
	social repository.SocialRepository,
	cache *redis.Client,
	cacheTTL time.Duration,
	logger zerolog.Logger,
) ConversationService {
	if cacheTTL <= 0 {
		cacheTTL = defaultSummaryCacheTTL
	}
	return &conversationService{
		direct:    direct,
		groups:    groups,
		groupMsgs: groupMsgs,
		social:    social,
		cache:     cache,
		cacheTTL:  cacheTTL,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "conversation_service").Logger(),
		tracer:    otel.Tracer("github.com/sortie-social/sortie-api/internal/service/conversations"),
	}
}

func (s *conversationService) AppendDirect(ctx context.Context, senderID, receiverID, body string) (dto.DirectMessageResponse, error) {
	clean := strings.TrimSpace(s.sanitizer.Sanitize(body))
	if clean == "" {
		return dto.DirectMessageResponse{}, apperr.Validation("message body must not be empty")
	}

	friends, err := s.social.IsFriend(ctx, senderID, receiverID)
	if err != nil {
		return dto.DirectMessageResponse{}, apperr.Transient(err, "failed to check friendship")
	}
	if !friends {
		return dto.DirectMessageResponse{}, apperr.Authorization("sender and receiver are not friends")
	}

	ctx, span := s.tracer.Start(ctx, "conversations.append_direct", trace.WithAttributes(
		attribute.String("message.sender_id", senderID),
		attribute.String("message.receiver_id", receiverID),
	))
	defer span.End()

	existing, found, err := s.direct.FindRecentDuplicate(ctx, senderID, receiverID, clean, time.Now().Add(-dedupWindow))
	if err != nil {
		span.RecordError(err)
		return dto.DirectMessageResponse{}, apperr.Transient(err, "failed to check for duplicate send")
	}
	if found {
		s.logger.Debug().Uint("message_id", existing.ID).Msg("suppressed duplicate direct message")
		response := dto.NewDirectMessageResponse(existing)
		response.Duplicate = true
		return response, nil
	}

	message := models.DirectMessage{SenderID: senderID, ReceiverID: receiverID, Body: clean}
	if err := s.direct.Create(ctx, &message); err != nil {
		span.RecordError(err)
		return dto.DirectMessageResponse{}, apperr.Transient(err, "failed to append direct message")
	}

	observability.MessagesSent().WithLabelValues("direct").Inc()
	s.dropSummaryCache(ctx, senderID, receiverID)

	return dto.NewDirectMessageResponse(message), nil
}

func (s *conversationService) AppendGroup(ctx context.Context, groupID uint, senderID, body string) (dto.GroupMessageResponse, error) {
	clean := strings.TrimSpace(s.sanitizer.Sanitize(body))
	if clean == "" {
		return dto.GroupMessageResponse{}, apperr.Validation("message body must not be empty")
	}

	if _, err := s.groups.FindMember(ctx, groupID, senderID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GroupMessageResponse{}, apperr.Authorization("sender is not a member of the group")
		}
		return dto.GroupMessageResponse{}, apperr.Transient(err, "failed to check group membership")
	}

	ctx, span := s.tracer.Start(ctx, "conversations.append_group", trace.WithAttributes(
		attribute.Int("message.group_id", int(groupID)),
		attribute.String("message.sender_id", senderID),
	))
	defer span.End()

	existing, found, err := s.groupMsgs.FindRecentDuplicate(ctx, groupID, senderID, clean, time.Now().Add(-dedupWindow))
	if err != nil {
		span.RecordError(err)
		return dto.GroupMessageResponse{}, apperr.Transient(err, "failed to check for duplicate send")
	}
	if found {
		s.logger.Debug().Uint("message_id", existing.ID).Msg("suppressed duplicate group message")
		response := dto.NewGroupMessageResponse(existing)
		response.Duplicate = true
		return response, nil
	}

	message := models.GroupMessage{GroupID: groupID, SenderID: senderID, Body: clean}
	if err := s.groupMsgs.CreateWithSenderRead(ctx, &message); err != nil {
		span.RecordError(err)
		return dto.GroupMessageResponse{}, apperr.Transient(err, "failed to append group message")
	}

	observability.MessagesSent().WithLabelValues("group").Inc()

	return dto.NewGroupMessageResponse(message), nil
}

// History returns the full exchange between the caller and a peer in
// chronological order. Viewing history marks every message addressed to
// the caller as read; messages the caller sent are untouched.
func (s *conversationService) History(ctx context.Context, userID, peerID string) ([]dto.DirectMessageResponse, error) {
	messages, err := s.direct.ListBetween(ctx, userID, peerID)
	if err != nil {
		return nil, apperr.Transient(err, "failed to load history")
	}

	marked, err := s.direct.MarkRead(ctx, userID, peerID)
	if err != nil {
		return nil, apperr.Transient(err, "failed to mark history as read")
	}
	if marked > 0 {
		s.dropSummaryCache(ctx, userID)
		for i := range messages {
			if messages[i].ReceiverID == userID {
				messages[i].IsRead = true
			}
		}
	}

	return dto.NewDirectMessageResponseSlice(messages), nil
}

// GroupHistory returns the group's messages in chronological order and
// records a read marker for everything the requester had not yet seen.
func (s *conversationService) GroupHistory(ctx context.Context, groupID uint, requesterID string) ([]dto.GroupMessageResponse, error) {
	if _, err := s.groups.FindMember(ctx, groupID, requesterID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Authorization("requester is not a member of the group")
		}
		return nil, apperr.Transient(err, "failed to check group membership")
	}

	messages, err := s.groupMsgs.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, apperr.Transient(err, "failed to load group history")
	}

	if _, err := s.groupMsgs.MarkAllRead(ctx, groupID, requesterID); err != nil {
		return nil, apperr.Transient(err, "failed to mark group history as read")
	}

	return dto.NewGroupMessageResponseSlice(messages), nil
}

func (s *conversationService) MarkDirectRead(ctx context.Context, receiverID, senderID string) (int64, error) {
	marked, err := s.direct.MarkRead(ctx, receiverID, senderID)
	if err != nil {
		return 0, apperr.Transient(err, "failed to mark messages read")
	}
	if marked > 0 {
		s.dropSummaryCache(ctx, receiverID)
	}
	return marked, nil
}

func (s *conversationService) MarkGroupRead(ctx context.Context, groupID uint, userID string) (int64, error) {
	if _, err := s.groups.FindMember(ctx, groupID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperr.Authorization("user is not a member of the group")
		}
		return 0, apperr.Transient(err, "failed to check group membership")
	}

	marked, err := s.groupMsgs.MarkAllRead(ctx, groupID, userID)
	if err != nil {
		return 0, apperr.Transient(err, "failed to mark group messages read")
	}
	return marked, nil
}

func (s *conversationService) UnreadDirectCount(ctx context.Context, userID string) (int64, error) {
	count, err := s.direct.CountUnread(ctx, userID)
	if err != nil {
		return 0, apperr.Transient(err, "failed to count unread messages")
	}
	return count, nil
}

// ConversationSummaries folds the user's direct messages into one row
// per peer, newest conversation first, restricted to current friends.
func (s *conversationService) ConversationSummaries(ctx context.Context, userID string) ([]dto.ConversationSummary, error) {
	if cached, ok := s.cachedSummaries(ctx, userID); ok {
		return cached, nil
	}

	ctx, span := s.tracer.Start(ctx, "conversations.summaries", trace.WithAttributes(
		attribute.String("user_id", userID),
	))
	defer span.End()

	messages, err := s.direct.ListInvolving(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Transient(err, "failed to load conversations")
	}

	order := make([]string, 0)
	latest := make(map[string]models.DirectMessage)
	unread := make(map[string]int64)
	for _, message := range messages {
		peer := message.SenderID
		if peer == userID {
			peer = message.ReceiverID
		}
		if _, seen := latest[peer]; !seen {
			latest[peer] = message
			order = append(order, peer)
		}
		if message.ReceiverID == userID && !message.IsRead {
			unread[peer]++
		}
	}

	summaries := make([]dto.ConversationSummary, 0, len(order))
	for _, peer := range order {
		friends, err := s.social.IsFriend(ctx, userID, peer)
		if err != nil {
			span.RecordError(err)
			return nil, apperr.Transient(err, "failed to check friendship")
		}
		if !friends {
			continue
		}

		name, err := s.social.DisplayName(ctx, peer)
		if err != nil {
			name = peer
		}

		last := latest[peer]
		summaries = append(summaries, dto.ConversationSummary{
			PeerID:          peer,
			PeerName:        name,
			LastMessage:     last.Body,
			LastMessageTime: last.CreatedAt,
			UnreadCount:     unread[peer],
		})
	}

	s.cacheSummaries(ctx, userID, summaries)
	return summaries, nil
}

// GroupSummaries returns one row per group the user belongs to. Groups
// without messages sort last; the rest sort by last message time
// descending.
func (s *conversationService) GroupSummaries(ctx context.Context, userID string) ([]dto.GroupSummary, error) {
	groups, err := s.groups.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Transient(err, "failed to load groups")
	}

	withMessages := make([]dto.GroupSummary, 0, len(groups))
	silent := make([]dto.GroupSummary, 0)
	for _, group := range groups {
		memberCount, err := s.groups.CountMembers(ctx, group.ID)
		if err != nil {
			return nil, apperr.Transient(err, "failed to count members")
		}

		summary := dto.GroupSummary{
			GroupID:     group.ID,
			Name:        group.Name,
			Avatar:      group.Avatar,
			MemberCount: memberCount,
		}

		last, found, err := s.groupMsgs.LatestByGroup(ctx, group.ID)
		if err != nil {
			return nil, apperr.Transient(err, "failed to load latest group message")
		}
		if !found {
			silent = append(silent, summary)
			continue
		}

		unreadCount, err := s.groupMsgs.CountUnread(ctx, group.ID, userID)
		if err != nil {
			return nil, apperr.Transient(err, "failed to count unread group messages")
		}

		senderName, err := s.social.DisplayName(ctx, last.SenderID)
		if err != nil {
			senderName = last.SenderID
		}

		lastAt := last.CreatedAt
		summary.LastMessage = last.Body
		summary.LastSenderID = last.SenderID
		summary.LastSenderName = senderName
		summary.LastMessageTime = &lastAt
		summary.UnreadCount = unreadCount
		withMessages = append(withMessages, summary)
	}

	// Insertion sort by last message time descending; group lists are small.
	for i := 1; i < len(withMessages); i++ {
		for j := i; j > 0 && withMessages[j].LastMessageTime.After(*withMessages[j-1].LastMessageTime); j-- {
			withMessages[j], withMessages[j-1] = withMessages[j-1], withMessages[j]
		}
	}

	return append(withMessages, silent...), nil
}

func (s *conversationService) cachedSummaries(ctx context.Context, userID string) ([]dto.ConversationSummary, bool) {
	if s.cache == nil {
		return nil, false
	}
	payload, err := s.cache.Get(ctx, summaryCacheKey(userID)).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read summary cache")
		}
		return nil, false
	}
	var summaries []dto.ConversationSummary
	if err := json.Unmarshal([]byte(payload), &summaries); err != nil {
		s.logger.Warn().Err(err).Msg("failed to unmarshal cached summaries")
		return nil, false
	}
	return summaries, true
}

func (s *conversationService) cacheSummaries(ctx context.Context, userID string, summaries []dto.ConversationSummary) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(summaries)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal summaries for cache")
		return
	}
	if err := s.cache.Set(ctx, summaryCacheKey(userID), payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store summary cache")
	}
}

func (s *conversationService) dropSummaryCache(ctx context.Context, userIDs ...string) {
	if s.cache == nil {
		return
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, summaryCacheKey(id))
	}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate summary cache")
	}
}

func summaryCacheKey(userID string) string {
	return fmt.Sprintf("conversations:summary:%s", userID)
}
