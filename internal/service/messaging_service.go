package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/sortie-social/sortie-api/internal/dto"
	"github.com/sortie-social/sortie-api/internal/middleware"
)

// MessagingService is the public operation surface for chat. It
// composes the conversation store with the dispatcher: mutations run
// synchronously, notification dispatch is spawned as a detached task
// the caller never waits on.
type MessagingService interface {
	SendDirectMessage(ctx context.Context, senderID string, payload dto.DirectSendRequest) (dto.DirectMessageResponse, error)
	SendGroupMessage(ctx context.Context, senderID string, payload dto.GroupSendRequest) (dto.GroupMessageResponse, error)
	FetchHistory(ctx context.Context, userID, peerID string) ([]dto.DirectMessageResponse, error)
	FetchGroupHistory(ctx context.Context, groupID uint, userID string) ([]dto.GroupMessageResponse, error)
	FetchConversations(ctx context.Context, userID string) ([]dto.ConversationSummary, error)
	FetchGroupSummaries(ctx context.Context, userID string) ([]dto.GroupSummary, error)
	MarkRead(ctx context.Context, receiverID, senderID string) (int64, error)
	MarkGroupRead(ctx context.Context, groupID uint, userID string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

type messagingService struct {
	conversations ConversationService
	dispatcher    Dispatcher
	logger        zerolog.Logger
}

// NewMessagingService constructs the messaging facade.
func NewMessagingService(conversations ConversationService, dispatcher Dispatcher, logger zerolog.Logger) MessagingService {
	return &messagingService{
		conversations: conversations,
		dispatcher:    dispatcher,
		logger:        logger.With().Str("component", "messaging_service").Logger(),
	}
}

// SendDirectMessage appends the message and, unless the append was a
// suppressed duplicate, schedules the push dispatch before returning.
// The response reflects only the store's outcome, never delivery.
func (s *messagingService) SendDirectMessage(ctx context.Context, senderID string, payload dto.DirectSendRequest) (dto.DirectMessageResponse, error) {
	message, err := s.conversations.AppendDirect(ctx, senderID, payload.ReceiverID, payload.Body)
	if err != nil {
		return dto.DirectMessageResponse{}, err
	}

	if !message.Duplicate && s.dispatcher != nil {
		go s.dispatcher.NotifyDirectMessage(dispatchContext(ctx), senderID, message.ReceiverID, message.Body, message.ID)
	}

	return message, nil
}

func (s *messagingService) SendGroupMessage(ctx context.Context, senderID string, payload dto.GroupSendRequest) (dto.GroupMessageResponse, error) {
	message, err := s.conversations.AppendGroup(ctx, payload.GroupID, senderID, payload.Body)
	if err != nil {
		return dto.GroupMessageResponse{}, err
	}

	if !message.Duplicate && s.dispatcher != nil {
		go s.dispatcher.NotifyGroupMessage(dispatchContext(ctx), senderID, message.GroupID, message.Body, message.ID)
	}

	return message, nil
}

// dispatchContext builds the context the detached dispatch goroutine
// runs under. It is rooted in Background rather than the request
// context, which the HTTP server recycles once the handler returns;
// only the correlation identifier is carried across.
func dispatchContext(ctx context.Context) context.Context {
	return middleware.ContextWithCorrelation(context.Background(), middleware.CorrelationIDFromContext(ctx))
}

func (s *messagingService) FetchHistory(ctx context.Context, userID, peerID string) ([]dto.DirectMessageResponse, error) {
	return s.conversations.History(ctx, userID, peerID)
}

func (s *messagingService) FetchGroupHistory(ctx context.Context, groupID uint, userID string) ([]dto.GroupMessageResponse, error) {
	return s.conversations.GroupHistory(ctx, groupID, userID)
}

func (s *messagingService) FetchConversations(ctx context.Context, userID string) ([]dto.ConversationSummary, error) {
	return s.conversations.ConversationSummaries(ctx, userID)
}

func (s *messagingService) FetchGroupSummaries(ctx context.Context, userID string) ([]dto.GroupSummary, error) {
	return s.conversations.GroupSummaries(ctx, userID)
}

func (s *messagingService) MarkRead(ctx context.Context, receiverID, senderID string) (int64, error) {
	return s.conversations.MarkDirectRead(ctx, receiverID, senderID)
}

func (s *messagingService) MarkGroupRead(ctx context.Context, groupID uint, userID string) (int64, error) {
	return s.conversations.MarkGroupRead(ctx, groupID, userID)
}

func (s *messagingService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.conversations.UnreadDirectCount(ctx, userID)
}
